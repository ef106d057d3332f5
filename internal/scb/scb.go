// Package scb implements the Shared Control Block: the lock-free
// single-producer/single-consumer ring-buffer protocol that carries audio
// frames and flow-control state across the client/server trust boundary
// (spec §3, §4.1).
//
// The fast path (AdvanceUser / StepServer) never takes a lock: the producer
// publishes its cursor with a release store, the consumer reads it with an
// acquire load. The mutex and condition variable exist only for the slow
// path — a producer blocked on a full ring, or a virtual track's consumer
// blocked on an empty one (§4.1).
package scb

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWaitTimeout is the canonical bounded wait on the SCB condition
// variable (spec §4.1: "1 s canonical").
const DefaultWaitTimeout = time.Second

// SCB is the fixed-layout control block placed at the start of a track's
// shared-memory region. Exported fields mirror spec §3 exactly; cursors use
// int64 so wraparound over a buffer's lifetime is indistinguishable from a
// monotone increase, per spec's invariant note.
//
// int64 cursor fields are grouped first so they stay 8-byte aligned for
// atomic access even when SCB is embedded in a struct with a narrower base
// alignment — the same concern the ring buffer implementations in this
// domain call out for atomic fields on 32-bit targets.
type SCB struct {
	user   int64 // producer cursor (playback: client side)
	server int64 // consumer cursor (playback: server side)

	UserBase   int64
	ServerBase int64

	FrameCount int32
	SampleRate int32
	Channels   int16
	FrameSize  int16 // bytes per frame; 8-bit PCM is sized as if 16-bit (client up-converts)

	Volume [2]int32 // Q4.12, 0x1000 = unity

	LoopEnd int64 // optional early-wrap point; 0 disables looping

	flowControlFlag int32 // set on underrun/overrun, cleared after first frame
	forceReady      int32 // client can preempt the fill-up gate
	stepServerFails int32 // STEPSERVER_FAILED counter, observable by the track

	Out bool // true: playback layout, false: record layout

	mu       sync.Mutex
	notEmpty *sync.Cond // signalled when the producer advances user
	notFull  *sync.Cond // signalled when the consumer advances server
}

// New constructs an SCB for a ring of frameCount frames. The caller is
// responsible for backing PCM storage (see the Buffer type).
func New(frameCount int, sampleRate int, channels int, frameSize int, out bool) *SCB {
	s := &SCB{
		FrameCount: int32(frameCount),
		SampleRate: int32(sampleRate),
		Channels:   int16(channels),
		FrameSize:  int16(frameSize),
		Out:        out,
	}
	s.notEmpty = sync.NewCond(&s.mu)
	s.notFull = sync.NewCond(&s.mu)
	s.flowControlFlag = 1 // suppress spurious initial underrun callback, per §4.1
	return s
}

// User returns the producer cursor with acquire semantics.
func (s *SCB) User() int64 { return atomic.LoadInt64(&s.user) }

// Server returns the consumer cursor with acquire semantics.
func (s *SCB) Server() int64 { return atomic.LoadInt64(&s.server) }

// FramesReady returns the frames available to the consumer (playback) or
// the frames available to read (record): user - server. Spec invariant:
// this must never be negative.
func (s *SCB) FramesReady() int64 {
	return s.User() - s.Server()
}

// FramesFree returns the space available to the producer before it would
// overwrite unconsumed frames.
func (s *SCB) FramesFree() int64 {
	return int64(s.FrameCount) - s.FramesReady()
}

// AdvanceUser is the producer fast path: fill frames into the ring
// (handled by the caller via the backing Buffer), then publish the new
// cursor with a release store. It wakes any consumer blocked in WaitData.
func (s *SCB) AdvanceUser(frames int64) {
	atomic.AddInt64(&s.user, frames)
	s.clearFlowControlOnce()
	s.mu.Lock()
	s.notEmpty.Broadcast()
	s.mu.Unlock()
}

// StepServer is the consumer fast path: it attempts a non-blocking lock
// (to guard against a malicious or crashed producer holding the mutex
// indefinitely), and on success advances the consumer cursor by frames and
// wakes any producer waiting for space past its threshold. On failure it
// returns false; the caller records STEPSERVER_FAILED on the track and
// retries next cycle — the ring itself is never corrupted by a failed
// attempt (spec §4.1).
func (s *SCB) StepServer(frames int64) bool {
	if !s.mu.TryLock() {
		atomic.AddInt32(&s.stepServerFails, 1)
		return false
	}
	atomic.AddInt64(&s.server, frames)
	if frames > 0 {
		s.notFull.Broadcast()
	}
	s.mu.Unlock()
	return true
}

// StepServerFailures returns the number of times StepServer has failed to
// take the mutex since the SCB was created or last reset.
func (s *SCB) StepServerFailures() int32 {
	return atomic.LoadInt32(&s.stepServerFails)
}

// clearFlowControlOnce clears flowControlFlag the first time a frame is
// observed written, suppressing the spurious initial underrun callback
// (spec §4.1). Returns true the first time it actually clears the flag.
func (s *SCB) clearFlowControlOnce() bool {
	return atomic.CompareAndSwapInt32(&s.flowControlFlag, 1, 0)
}

// SetFlowControl sets flowControlFlag, signalling underrun (playback) or
// overrun (record) to the client.
func (s *SCB) SetFlowControl() { atomic.StoreInt32(&s.flowControlFlag, 1) }

// FlowControl reports the current flowControlFlag value.
func (s *SCB) FlowControl() bool { return atomic.LoadInt32(&s.flowControlFlag) != 0 }

// SetForceReady lets the client preempt the fill-up gate (spec §4.2).
func (s *SCB) SetForceReady(v bool) {
	if v {
		atomic.StoreInt32(&s.forceReady, 1)
	} else {
		atomic.StoreInt32(&s.forceReady, 0)
	}
}

// ForceReady reports whether the client has preempted the fill-up gate.
func (s *SCB) ForceReady() bool { return atomic.LoadInt32(&s.forceReady) != 0 }

// WaitSpace blocks the producer until at least one frame of space is free,
// the timeout elapses, or forceReady is asserted. Returns true if space is
// (probably) available. Used only on the slow path (spec §4.1).
func (s *SCB) WaitSpace(timeout time.Duration) bool {
	if s.FramesFree() > 0 || s.ForceReady() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for s.FramesFree() <= 0 && !s.ForceReady() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.FramesFree() > 0 || s.ForceReady()
		}
		waitWithTimeout(s.notFull, &s.mu, remaining)
	}
	return true
}

// WaitData blocks a virtual-track consumer (§4.1, DuplicatingThread) until
// frames are ready or the timeout elapses.
func (s *SCB) WaitData(timeout time.Duration) bool {
	if s.FramesReady() > 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for s.FramesReady() <= 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		waitWithTimeout(s.notEmpty, &s.mu, remaining)
		if time.Now().After(deadline) {
			return s.FramesReady() > 0
		}
	}
	return true
}

// Reset sets both cursors back to their bases, as flush() does (spec
// §4.2): "resets cursors atomically under the SCB lock". Re-arms the
// flow-control suppression so the next start doesn't report a spurious
// underrun.
func (s *SCB) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.StoreInt64(&s.user, s.UserBase)
	atomic.StoreInt64(&s.server, s.ServerBase)
	atomic.StoreInt32(&s.flowControlFlag, 1)
	atomic.StoreInt32(&s.stepServerFails, 0)
}

// EffectiveEnd returns the end-of-buffer frame index to use for the
// current fetch, honouring loop mode: when LoopEnd is set and falls before
// the natural end of the buffer, the effective end is LoopEnd, enabling
// sub-buffer looping for static one-shot clips (spec §4.1).
func (s *SCB) EffectiveEnd() int64 {
	natural := s.ServerBase + int64(s.FrameCount)
	if s.LoopEnd > 0 && s.LoopEnd < natural {
		return s.LoopEnd
	}
	return natural
}

// waitWithTimeout is a small helper isolating the only place this package
// blocks on a condition variable for a bounded duration: sync.Cond has no
// native timed wait, so we pair it with a timer goroutine that broadcasts
// on expiry. Extracted so both WaitSpace and WaitData can share it without
// duplicating the timer dance.
func waitWithTimeout(c *sync.Cond, mu *sync.Mutex, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		mu.Lock()
		c.Broadcast()
		mu.Unlock()
	})
	defer timer.Stop()
	c.Wait()
}
