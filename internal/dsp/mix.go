package dsp

import "math/rand"

// MixAccumulate adds src (interleaved int16, scaled by leftGain/rightGain
// applied per channel 0/1 respectively, any channel beyond 1 reuses
// rightGain) into acc (an int32 accumulation buffer sized the same frame
// count * channels as src) without overflowing — spec §4.3 "mixes,
// dithers, clamps". Accumulation is done in int32 headroom so multiple
// tracks can sum before the final Clamp pass saturates to int16.
func MixAccumulate(acc []int32, src []int16, channels int, leftGain, rightGain float64) {
	for i := 0; i < len(src); i++ {
		gain := leftGain
		if channels > 1 && i%channels >= 1 {
			gain = rightGain
		}
		acc[i] += int32(float64(src[i]) * gain)
	}
}

// DitherAndClamp converts an int32 accumulation buffer into the final
// interleaved int16 output, adding a small triangular dither to mask
// quantization distortion from the gain multiplies above, then saturating
// to the int16 range (spec §4.3's "dithers, clamps").
func DitherAndClamp(out []int16, acc []int32, rng *rand.Rand) {
	for i, v := range acc {
		d := int32(rng.Intn(2)) - int32(rng.Intn(2)) // -1, 0, or 1 LSB triangular dither
		out[i] = clampInt16(float64(v + d))
	}
}

// DuplicateMonoToStereo expands a mono interleaved int16 buffer into
// stereo by repeating each sample on both channels (spec §4.3 "Output
// mono is always delivered as stereo on the device; channel-duplication
// is performed internally").
func DuplicateMonoToStereo(dst, src []int16) {
	for i, s := range src {
		dst[2*i] = s
		dst[2*i+1] = s
	}
}

// AverageStereoToMono reduces an interleaved stereo buffer to mono by
// averaging channel pairs (spec §4.8 "Channel reductions average pairs").
func AverageStereoToMono(dst, src []int16) {
	frames := len(src) / 2
	for i := 0; i < frames; i++ {
		l := int32(src[2*i])
		r := int32(src[2*i+1])
		dst[i] = int16((l + r) / 2)
	}
}
