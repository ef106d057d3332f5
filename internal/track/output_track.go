package track

import (
	"sync"
)

// MaxOverflowBuffers bounds the pending queue an OutputTrack keeps when
// its destination ring is momentarily full (spec §4.7): kMaxOverFlowBuffers.
const MaxOverflowBuffers = 8

// overflowBuf is one buffer the DuplicatingThread could not immediately
// write into the destination ring.
type overflowBuf struct {
	data   []byte
	frames int
}

// OutputTrack is the virtual Track a DuplicatingThread uses to feed a
// downstream MixerThread/DirectOutputThread (spec §4.7). From the
// downstream thread's point of view it is an ordinary playback track; from
// the DuplicatingThread's point of view it is a write-only sink that never
// blocks the duplication fan-out, because writes that would block are
// queued instead, up to MaxOverflowBuffers deep.
//
// A write of zero frames is the flush signal (spec §4.7): it drops any
// queued overflow and resets the destination ring without caring whether
// that destination is currently attached to a live downstream thread.
type OutputTrack struct {
	*Track

	mu       sync.Mutex
	overflow []overflowBuf

	// primed is cleared on construction and set once this OutputTrack's
	// destination ring has accepted its first write, so the duplicating
	// thread's front-padding logic (writing silence until the downstream
	// thread is actually consuming) only runs once per attach.
	primed bool
}

// NewOutputTrack wraps a freshly created downstream Track as an
// OutputTrack for duplication.
func NewOutputTrack(id int, st StreamType, frameCount, sampleRate, channels int) *OutputTrack {
	return &OutputTrack{
		Track: New(id, st, frameCount, sampleRate, channels, Format16Bit, false),
	}
}

// Write attempts to push frames into the destination ring without
// blocking. If the ring has insufficient free space, the data is queued
// as an overflow buffer instead of blocking the duplicating thread's
// caller; if the overflow queue is already at MaxOverflowBuffers, the
// oldest queued buffer is dropped to make room (spec §4.7: duplication is
// best-effort towards a slow downstream, never a stall of the source).
//
// A zero-length write is the flush signal: any queued overflow is
// discarded and the destination ring is reset.
func (o *OutputTrack) Write(data []byte, frames int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if frames == 0 {
		o.overflow = nil
		o.Ring().SCB.Reset()
		o.primed = false
		return
	}

	o.drainOverflowLocked()

	if !o.primed {
		o.padLocked(frames)
	}

	if !o.tryWriteLocked(data, frames) {
		o.queueLocked(data, frames)
	}
}

// padLocked front-pads the destination ring with silence equal to
// (destination frame count - first-write size) before the first real
// write lands, so the downstream mixer/direct thread doesn't immediately
// underrun while the duplicating thread is still filling up (spec §4.7
// "Priming"). No-op once the first write would already fill the
// destination (firstWriteFrames >= FrameCount()).
func (o *OutputTrack) padLocked(firstWriteFrames int) {
	pad := o.FrameCount() - firstWriteFrames
	if pad <= 0 {
		return
	}
	frameSize := int(o.Ring().SCB.FrameSize)
	silence := make([]byte, pad*frameSize)
	n := o.Ring().PutFrames(silence)
	o.Ring().SCB.AdvanceUser(int64(n))
}

// Pump is called periodically by the DuplicatingThread's own cycle (not
// by the producer of Write calls) to retry draining any queued overflow
// once the downstream thread has made room.
func (o *OutputTrack) Pump() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drainOverflowLocked()
}

// PendingOverflow reports how many buffers are presently queued, for
// diagnostics (spec §6.4 dump).
func (o *OutputTrack) PendingOverflow() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.overflow)
}

func (o *OutputTrack) drainOverflowLocked() {
	for len(o.overflow) > 0 {
		head := o.overflow[0]
		if !o.tryWriteLocked(head.data, head.frames) {
			return
		}
		o.overflow = o.overflow[1:]
	}
}

func (o *OutputTrack) tryWriteLocked(data []byte, frames int) bool {
	if o.Ring().SCB.FramesFree() < int64(frames) {
		return false
	}
	n := o.Ring().PutFrames(data)
	if n < frames {
		return false
	}
	o.Ring().SCB.AdvanceUser(int64(n))
	o.primed = true
	return true
}

func (o *OutputTrack) queueLocked(data []byte, frames int) {
	cp := make([]byte, len(data))
	copy(cp, data)
	o.overflow = append(o.overflow, overflowBuf{data: cp, frames: frames})
	if len(o.overflow) > MaxOverflowBuffers {
		o.overflow = o.overflow[1:]
	}
}

// Primed reports whether the destination ring has accepted at least one
// write since the last flush/attach.
func (o *OutputTrack) Primed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.primed
}
