package track

import (
	"sync"

	"github.com/doismellburning/samoyed-audioserver/internal/provider"
	"github.com/doismellburning/samoyed-audioserver/internal/scb"
)

// RecordTrack is the symmetric counterpart of Track for an input endpoint
// (spec §3): the server writes captured frames into the ring, the client
// reads them out. At most one RecordTrack may be ACTIVE on a given
// RecordThread at a time (spec §4.8) — that exclusivity is enforced by
// the owning thread, not by RecordTrack itself.
type RecordTrack struct {
	mu sync.Mutex

	id         int
	channels   int
	frameCount int

	ring *scb.Ring

	state State
}

// NewRecord constructs a RecordTrack bound to a freshly allocated input
// SCB ring (out=false).
func NewRecord(id, frameCount, sampleRate, channels int) *RecordTrack {
	frameSize := channels * 2
	return &RecordTrack{
		id:         id,
		channels:   channels,
		frameCount: frameCount,
		ring:       scb.NewRing(frameCount, sampleRate, channels, frameSize, false),
		state:      Idle,
	}
}

func (r *RecordTrack) ID() int         { return r.id }
func (r *RecordTrack) Ring() *scb.Ring { return r.ring }

func (r *RecordTrack) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start activates the track for capture. Unlike playback Track, a
// RecordTrack has no fill-up gate: the thread begins writing captured
// frames as soon as the state is ACTIVE (spec §4.8).
func (r *RecordTrack) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Idle, Stopped, Flushed:
		r.state = Active
		return true
	default:
		return false
	}
}

// Stop halts capture and returns to STOPPED. RecordThread's contract
// (spec §4.8) is synchronous: the caller that issued stop blocks, via a
// condition variable owned by the thread, until the thread has actually
// left the capture loop for this track.
func (r *RecordTrack) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Idle || r.state == Terminated {
		return false
	}
	r.state = Stopped
	return true
}

func (r *RecordTrack) Flush() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Stopped {
		return false
	}
	r.ring.SCB.Reset()
	r.state = Flushed
	return true
}

func (r *RecordTrack) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Terminated
}

// GetNextBuffer/ReleaseBuffer let the client side pull captured frames
// out; the server side writes by calling Ring() directly and advancing
// the SCB's user cursor (the inverse roles from a playback Track).
func (r *RecordTrack) GetNextBuffer(maxFrames int) (provider.Buffer, error) {
	return r.ring.GetNextBuffer(maxFrames)
}

func (r *RecordTrack) ReleaseBuffer(consumedFrames int) {
	r.ring.ReleaseBuffer(consumedFrames)
}

var _ provider.BufferProvider = (*RecordTrack)(nil)
