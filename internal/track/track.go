// Package track implements the Track, RecordTrack, and OutputTrack
// lifecycle state machines (spec §4.2, §4.7): per-stream state, volume,
// fill status, and the buffer-provider glue over an SCB ring.
//
// Track deliberately holds no reference back to the endpoint thread that
// owns it (spec §9's "weak back-references from Track to Thread" design
// note). In Go the GC already collects reference cycles, so the concern
// that note addresses — an owning thread keeping a track alive forever via
// a strong cycle — does not apply; what *does* carry over is the shape:
// Track exposes state and retry bookkeeping as plain methods, and it is
// the thread (internal/engine) that decides when to evict and remove a
// track from its active list. Track never calls back into its thread.
package track

import (
	"sync"
	"time"

	"github.com/doismellburning/samoyed-audioserver/internal/provider"
	"github.com/doismellburning/samoyed-audioserver/internal/scb"
)

// StreamType categorises a track for volume/mute grouping (spec §4.2
// "master × streamType × trackCblk").
type StreamType int

const (
	StreamMusic StreamType = iota
	StreamRing
	StreamAlarm
	StreamNotification
	StreamSystem
	StreamVoiceCall
	StreamDTMF
)

// Format is the PCM sample format. Spec §1 restricts the core to 16-bit
// linear PCM; Format8Bit tracks are up-converted by the client before
// writing (spec §3).
type Format int

const (
	Format16Bit Format = iota
	Format8Bit
)

// Startup and steady-state retry budgets (spec §4.2 "Retry/eviction").
const (
	MaxStartupRetries = 50
	MaxSteadyRetries  = 3

	// MinBytesToWrite is the minimum a static-shared-buffer track must have
	// written before it is eligible for eviction, so short sounds always
	// play (spec §4.2).
	MinBytesToWrite = 0 // set per-track from frame size * one hardware period; 0 disables the floor.
)

// MaxGain clamps the effective volume computation (spec §4.2).
const MaxGain = 1 << 24

// Track is one audio stream attached to a playback endpoint.
type Track struct {
	mu sync.Mutex

	id         int
	streamType StreamType
	format     Format
	channels   int
	frameCount int

	ring *scb.Ring

	state      State
	fill       FillStatus
	retries    int
	mute       bool
	staticBuf  bool
	minBytesTW int

	// volume holds the client-suggested per-channel gain taken from the
	// SCB (Q4.12) each cycle; masterVol/streamVol are applied on top by
	// the mixer/server and stored here only for the volume-ramp decision.
	leftVol, rightVol float64
}

// New constructs a Track bound to a freshly allocated SCB ring. Creation
// happens under the server lock while holding the endpoint lock (spec
// §3); this constructor only allocates the object, it does not insert it
// into any endpoint's active list — the caller (internal/server) does
// that after also registering the track with the destination thread.
func New(id int, st StreamType, frameCount, sampleRate, channels int, format Format, staticBuf bool) *Track {
	frameSize := channels * 2
	return &Track{
		id:         id,
		streamType: st,
		format:     format,
		channels:   channels,
		frameCount: frameCount,
		ring:       scb.NewRing(frameCount, sampleRate, channels, frameSize, true),
		state:      Idle,
		fill:       Filling,
		leftVol:    1.0,
		rightVol:   1.0,
		staticBuf:  staticBuf,
	}
}

func (t *Track) ID() int             { return t.id }
func (t *Track) StreamType() StreamType { return t.streamType }
func (t *Track) Ring() *scb.Ring     { return t.ring }
func (t *Track) FrameCount() int     { return t.frameCount }

// State returns the current lifecycle state.
func (t *Track) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start transitions IDLE|STOPPED|PAUSED|FLUSHED into the active list
// (spec §4.2 start()). Returns false if the current state doesn't permit
// starting. If previously PAUSED, the new state is RESUMING rather than
// ACTIVE so the thread can apply a volume ramp instead of an instant jump.
func (t *Track) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Idle, Stopped, Flushed:
		t.state = Active
		t.fill = Filling
		t.retries = MaxStartupRetries
		return true
	case Paused:
		t.state = Resuming
		t.fill = Filling
		t.retries = MaxStartupRetries
		return true
	default:
		return false
	}
}

// Pause transitions ACTIVE|RESUMING to PAUSING. The thread loop observes
// PAUSING during mix preparation, emits silence for the track, and
// advances it to PAUSED (spec §4.2): that final step is AckPaused, called
// by the owning thread, not by Pause itself.
func (t *Track) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Active, Resuming:
		t.state = Pausing
		return true
	default:
		return false
	}
}

// AckPaused is called by the owning thread once it has emitted a silent
// cycle for a PAUSING track, completing the PAUSING → PAUSED transition.
func (t *Track) AckPaused() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Pausing {
		t.state = Paused
	}
}

// AckResumed is called by the owning thread once it has successfully
// mixed/written a RESUMING track's first post-resume cycle, completing
// the RESUMING → ACTIVE transition (spec §4.2).
func (t *Track) AckResumed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Resuming {
		t.state = Active
	}
}

// Stop transitions any state later than STOPPED to STOPPED (spec §4.2).
// If the track is not presently in the endpoint's active list the ring is
// reset immediately; otherwise the caller (the owning thread) must drain
// remaining frames and remove the track on its next pass — Stop itself
// does not know whether it's in an active list, so it always reports
// whether an immediate reset is warranted via inActiveList.
func (t *Track) Stop(inActiveList bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Idle || t.state == Terminated {
		return false
	}
	t.state = Stopped
	if !inActiveList {
		t.ring.SCB.Reset()
	}
	return true
}

// Flush resets cursors atomically under the SCB lock and re-enters
// FILLING on the next start (spec §4.2). Valid from STOPPED, PAUSED, or
// PAUSING.
func (t *Track) Flush() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Stopped, Paused, Pausing:
		t.ring.SCB.Reset()
		t.state = Flushed
		t.fill = Filling
		return true
	default:
		return false
	}
}

// Destroy transitions to TERMINATED from any state (spec §4.2), called
// when the client handle is released. The underlying object's lifetime
// ends only once the owning thread acknowledges (removes it from its
// active list) — that acknowledgement is out of Track's hands.
func (t *Track) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Terminated
}

// FillStatus returns the current fill-up phase.
func (t *Track) FillStatus() FillStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fill
}

// MarkFilled transitions FILLING → FILLED once framesReady has reached
// frameCount or forceReady was asserted: the one-cycle acknowledgement
// used to decide ramped vs instant volume (spec §4.2).
func (t *Track) MarkFilled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fill == Filling {
		t.fill = Filled
	}
}

// MarkActive transitions the one-cycle FILLED state into steady ACTIVE
// fill status, after the mixer has applied its FILLED→ACTIVE volume
// decision for this cycle.
func (t *Track) MarkActive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fill == Filled {
		t.fill = FillActive
	}
}

// ReadyToMix reports whether the track satisfies the fill-up gate: either
// framesReady >= frameCount, or the client has asserted forceReady (spec
// §4.2).
func (t *Track) ReadyToMix() bool {
	scbRef := t.ring.SCB
	if scbRef.ForceReady() {
		return true
	}
	return scbRef.FramesReady() >= int64(t.frameCount)
}

// ResetRetries restores the retry counter to its startup or steady-state
// budget (spec §4.2: "Startup uses a larger counter than steady state.
// The counter is reset on each successful mix.").
func (t *Track) ResetRetries(startup bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if startup {
		t.retries = MaxStartupRetries
	} else {
		t.retries = MaxSteadyRetries
	}
}

// DecrementRetry decrements the retry counter and reports whether the
// budget has been exhausted (i.e. the track should be evicted). A
// static-shared-buffer track that has not yet written MinBytesToWrite
// bytes is never evicted, so short one-shot sounds always play in full
// (spec §4.2).
func (t *Track) DecrementRetry(bytesWritten int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.staticBuf && bytesWritten < t.minBytesTW {
		return false
	}
	t.retries--
	return t.retries <= 0
}

// SetMinBytesToWrite configures the static-buffer eviction floor (spec
// §4.2 mMinBytesToWrite), approximately one hardware-latency period.
func (t *Track) SetMinBytesToWrite(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minBytesTW = n
}

// SetMute sets/clears the per-track mute flag.
func (t *Track) SetMute(m bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mute = m
}

// Muted reports the per-track mute flag.
func (t *Track) Muted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mute
}

// SetVolume sets per-channel linear gain in [0, 1], stored for ramp
// decisions; clamped to MaxGain after combination with master/stream
// gain is the caller's (mixer's) responsibility (spec §4.2).
func (t *Track) SetVolume(left, right float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leftVol, t.rightVol = left, right
}

// Volume returns the track's own suggested gain.
func (t *Track) Volume() (left, right float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leftVol, t.rightVol
}

// EffectiveGain computes master x streamType x track gain, clamped to
// MaxGain (spec §4.2).
func EffectiveGain(master, streamGain, trackGain float64) float64 {
	g := master * streamGain * trackGain
	if g > MaxGain {
		return MaxGain
	}
	if g < 0 {
		return 0
	}
	return g
}

// GetNextBuffer and ReleaseBuffer satisfy provider.BufferProvider,
// delegating straight to the backing ring. A PAUSING/PAUSED track is
// still a valid provider; it is the mixer's job (spec §4.5) to skip
// pulling from tracks that are paused or not ready, substituting silence.
func (t *Track) GetNextBuffer(maxFrames int) (provider.Buffer, error) {
	return t.ring.GetNextBuffer(maxFrames)
}

func (t *Track) ReleaseBuffer(consumedFrames int) {
	t.ring.ReleaseBuffer(consumedFrames)
}

var _ provider.BufferProvider = (*Track)(nil)

// WaitTimeout is exported for callers (e.g. OutputTrack) that need the
// canonical slow-path timeout without importing internal/scb directly.
const WaitTimeout = time.Second
