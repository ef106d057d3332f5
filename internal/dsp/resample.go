// Package dsp holds the opaque per-sample primitives the mixer and record
// paths treat as a contract (spec §4.4, §9 "Non-goals: effects/EQ,
// time-stretching... any format conversion beyond 16-bit linear PCM"): a
// linear-interpolation resampler and a saturating mix-accumulate kernel.
// Everything here operates on already-deinterleaved or interleaved int16
// sample slices and never allocates on the hot path beyond what the
// caller passed in.
package dsp

import "math"

// Resampler converts a stream of interleaved int16 frames from one sample
// rate to another using linear interpolation, the cheapest method that
// meets the "amplitude matches within tolerance for rates differing by
// <=2x" bound in spec §8 scenario 1/6. It is stateful across calls so a
// stream resampled in chunks (as the mixer and record paths do, one
// device period at a time) doesn't click at chunk boundaries.
type Resampler struct {
	channels   int
	ratio      float64 // inRate / outRate
	pos        float64 // fractional read position into the pending tail
	tail       []int16 // last frame of the previous chunk, for interpolation across calls
	haveTail   bool
}

// NewResampler builds a resampler converting inRate to outRate for the
// given channel count. A no-op resampler (ratio 1) is still valid and
// simply copies.
func NewResampler(inRate, outRate, channels int) *Resampler {
	return &Resampler{
		channels: channels,
		ratio:    float64(inRate) / float64(outRate),
	}
}

// Ratio reports inRate/outRate.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Reset drops carried interpolation state, used when a track flushes or
// a thread reconfigures its rate (spec §4.5 step 2: rebuild on config
// change).
func (r *Resampler) Reset() {
	r.pos = 0
	r.haveTail = false
	r.tail = nil
}

// Process resamples in (interleaved int16, len(in)/channels frames) into
// out, writing up to len(out)/channels frames, and returns the number of
// output frames actually written. in may be shorter than a full period
// (a short provider pull); Process never reads past len(in).
func (r *Resampler) Process(in []int16, out []int16) int {
	ch := r.channels
	inFrames := len(in) / ch
	outFrames := len(out) / ch
	if inFrames == 0 || outFrames == 0 {
		return 0
	}

	frameAt := func(idx int) []int16 {
		if idx < 0 {
			if r.haveTail {
				return r.tail
			}
			return in[0:ch]
		}
		if idx >= inFrames {
			return in[(inFrames-1)*ch : inFrames*ch]
		}
		return in[idx*ch : idx*ch+ch]
	}

	written := 0
	pos := r.pos
	for written < outFrames {
		idx := int(math.Floor(pos))
		frac := pos - float64(idx)
		if idx >= inFrames || (idx == inFrames-1 && frac > 0) {
			break
		}
		a := frameAt(idx)
		b := frameAt(idx + 1)
		for c := 0; c < ch; c++ {
			interp := float64(a[c]) + (float64(b[c])-float64(a[c]))*frac
			out[written*ch+c] = clampInt16(interp)
		}
		written++
		pos += r.ratio
	}

	// Carry the last consumed input frame forward so the next call's
	// interpolation at idx==-1 (a position between chunks) has a real
	// predecessor instead of repeating frame zero.
	if inFrames > 0 {
		last := frameAt(inFrames - 1)
		r.tail = append(r.tail[:0], last...)
		r.haveTail = true
	}
	consumedFrames := pos
	r.pos = consumedFrames - float64(inFrames)
	if r.pos < -1 {
		r.pos = -1
	}

	return written
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
