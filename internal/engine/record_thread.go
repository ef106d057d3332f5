package engine

import (
	"time"

	"github.com/doismellburning/samoyed-audioserver/internal/dsp"
	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// RecordThread is the input loop for a record endpoint, symmetric to
// MixerThread with at most one active RecordTrack and optional
// resampling/channel adaptation (spec §4.8, §2 item 8).
type RecordThread struct {
	*ThreadBase

	endpoint int
	device   hal.InputStream

	active *track.RecordTrack
	resamp *dsp.Resampler

	devBuf []byte
	pcm    []int16

	// lastAckedGen/requestedGen implement the synchronous start/stop
	// handshake (spec §4.8: "the caller blocks on a start/stop condition
	// variable until the thread acknowledges the transition"), reusing
	// ThreadBase's paramCond/workCond rather than adding a second pair.
	lastAckedGen int
	requestedGen int
}

// NewRecordThread constructs a RecordThread bound to device.
func NewRecordThread(endpoint int, device hal.InputStream, dispatcher Dispatcher) *RecordThread {
	return &RecordThread{
		ThreadBase: newThreadBase(dispatcher),
		endpoint:   endpoint,
		device:     device,
		devBuf:     make([]byte, device.BufferSize()),
	}
}

// StartL activates rt as the single active RecordTrack (spec §4.8 "at
// most one active RecordTrack"); any previously active track is
// implicitly stopped first. Blocks until the thread has acknowledged the
// transition by actually beginning to pull from the device for this
// track.
//
// Spec §9 Open Question (b): the original flags a state *comparison*
// used where an assignment was intended for this transition.
// track.RecordTrack.Start performs a real assignment, so captureCycle's
// next iteration actually observes ACTIVE rather than silently never
// starting.
func (r *RecordThread) StartL(rt *track.RecordTrack, inRate, channels int) {
	r.Lock()
	if r.active != nil && r.active != rt {
		r.active.Stop()
	}
	r.active = rt
	if inRate != r.device.SampleRate() || channels != r.device.Channels() {
		// The resampler always operates in the device's own channel
		// format: captureCycle feeds it raw, deinterleaved straight from
		// r.device.Read, before writeToTrack's later stage adapts channel
		// count to whatever the client actually requested.
		r.resamp = dsp.NewResampler(r.device.SampleRate(), inRate, r.device.Channels())
	} else {
		r.resamp = nil
	}
	r.requestedGen++
	gen := r.requestedGen
	r.Unlock()

	rt.Start()
	r.workCond.Signal()
	r.waitAcked(gen)
}

// StopL stops the active RecordTrack and blocks until acknowledged.
func (r *RecordThread) StopL(rt *track.RecordTrack) {
	r.Lock()
	if r.active == rt {
		r.active = nil
	}
	r.requestedGen++
	gen := r.requestedGen
	r.Unlock()

	rt.Stop()
	r.workCond.Signal()
	r.waitAcked(gen)
}

func (r *RecordThread) waitAcked(gen int) {
	r.Lock()
	for r.lastAckedGen < gen {
		r.paramCond.Wait()
	}
	r.Unlock()
}

func (r *RecordThread) ackGenLocked() {
	r.lastAckedGen = r.requestedGen
	r.paramCond.Broadcast()
}

// Run executes the RecordThread's loop (spec §4.8): pull from the
// device, resample/adapt channels if needed, and write into the active
// RecordTrack's ring.
func (r *RecordThread) Run() {
	for {
		r.drainAndDispatch()
		if r.exitRequested() {
			r.emitClosed()
			return
		}
		r.applyPendingParameters(func(map[string]string) {})

		wrote := r.captureCycle()

		r.Lock()
		r.ackGenLocked()
		r.Unlock()

		if !wrote {
			time.Sleep(2 * time.Millisecond)
		}

		if r.exitRequested() {
			r.emitClosed()
			return
		}
	}
}

func (r *RecordThread) emitClosed() {
	r.QueueConfigEvent(ConfigEvent{Kind: InputClosed, Endpoint: r.endpoint})
	r.drainAndDispatch()
}

func (r *RecordThread) captureCycle() bool {
	r.Lock()
	rt := r.active
	resamp := r.resamp
	buf := r.devBuf
	r.Unlock()

	if rt == nil || rt.State() != track.Active {
		return false
	}

	n, err := r.device.Read(buf)
	if err != nil || n == 0 {
		// On read error, sleep 1s and reset the input-side index; no
		// data is fabricated (spec §4.8).
		time.Sleep(time.Second)
		if resamp != nil {
			resamp.Reset()
		}
		return false
	}

	frameSize := r.device.FrameSize()
	frames := n / frameSize
	raw := bytesToInt16Samples(buf[:n])

	deviceChannels := r.device.Channels()
	samples := raw

	if resamp != nil {
		outLen := frames*2 + 8 // headroom for upsampling
		if cap(r.pcm) < outLen {
			r.pcm = make([]int16, outLen)
		}
		written := resamp.Process(raw, r.pcm[:outLen])
		samples = r.pcm[:written*deviceChannels]
	}

	r.writeToTrack(rt, samples, deviceChannels)
	return true
}

// writeToTrack adapts channel count (mono<->stereo per spec §4.8
// "Channel reductions average pairs... expansions duplicate") and writes
// the result into rt's ring by advancing the SCB user cursor directly —
// the server side of a record ring (spec §3's RecordTrack being the
// mirror image of Track).
func (r *RecordThread) writeToTrack(rt *track.RecordTrack, samples []int16, sourceChannels int) {
	ring := rt.Ring()
	targetChannels := int(ring.SCB.Channels)

	var out []int16
	switch {
	case sourceChannels == targetChannels:
		out = samples
	case sourceChannels == 2 && targetChannels == 1:
		out = make([]int16, len(samples)/2)
		dsp.AverageStereoToMono(out, samples)
	case sourceChannels == 1 && targetChannels == 2:
		out = make([]int16, len(samples)*2)
		dsp.DuplicateMonoToStereo(out, samples)
	default:
		out = samples
	}

	buf := int16SliceToBytes(out)
	n := ring.PutFrames(buf)
	ring.SCB.AdvanceUser(int64(n))
}

func bytesToInt16Samples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

func int16SliceToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	int16ToBytes(out, s)
	return out
}
