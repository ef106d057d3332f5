package scb

import "errors"

// Buffer is the BufferProvider contract (spec §4.4): a pullable source of
// interleaved 16-bit PCM frames. GetNextBuffer never blocks longer than a
// consumer-side attempt to advance cursors; on failure the caller must
// treat the requested frames as silence.
type Buffer struct {
	FrameCount int    // actual frame count delivered, <= requested
	Data       []byte // contiguous view, FrameCount*frameSize bytes
}

// NotEnoughData is returned by GetNextBuffer when no frames are available.
var NotEnoughData = errors.New("scb: not enough data")

// Ring wraps an SCB and its backing PCM storage, implementing the
// BufferProvider pull contract (spec §4.4) directly over the shared-memory
// layout described in spec §6.3: SCB header immediately followed by the
// PCM buffer, (frameCount * channels * 2) bytes.
type Ring struct {
	SCB  *SCB
	Data []byte // frameCount * frameSize bytes, native-endian

	pendingFrames int64 // frames handed out by GetNextBuffer, not yet released
	pendingStart  int64 // absolute frame index pendingFrames started at
}

// NewRing allocates a Ring with its own backing storage. Production code
// typically instead places Data inside a client's shared-memory arena (see
// internal/scb/shm) and constructs the Ring over that slice directly.
func NewRing(frameCount, sampleRate, channels, frameSize int, out bool) *Ring {
	return &Ring{
		SCB:  New(frameCount, sampleRate, channels, frameSize, out),
		Data: make([]byte, frameCount*frameSize),
	}
}

// frameOffset returns the byte offset of absolute frame index idx within
// the ring, honouring wraparound.
func (r *Ring) frameOffset(idx int64) int {
	fc := int64(r.SCB.FrameCount)
	pos := (idx - r.SCB.ServerBase) % fc
	if pos < 0 {
		pos += fc
	}
	return int(pos) * int(r.SCB.FrameSize)
}

// GetNextBuffer implements the consumer side of the BufferProvider
// contract: pull up to maxFrames contiguous frames starting at the
// consumer cursor. Returns NotEnoughData if the ring is empty. The
// returned slice may be shorter than maxFrames if the ring wraps before
// maxFrames frames are available contiguously — the caller issues a
// second GetNextBuffer/ReleaseBuffer round to pick up the remainder, same
// as any bounded ring read.
func (r *Ring) GetNextBuffer(maxFrames int) (Buffer, error) {
	ready := r.SCB.FramesReady()
	if ready <= 0 {
		return Buffer{}, NotEnoughData
	}

	end := r.SCB.EffectiveEnd()
	server := r.SCB.Server()
	if r.SCB.LoopEnd > 0 && server >= end {
		// Wrapped past the loop point: restart from ServerBase without
		// touching the live cursor (the caller releases 0 and the thread
		// resets server to ServerBase on its next cycle for static loops).
		ready = end - server
		if ready <= 0 {
			return Buffer{}, NotEnoughData
		}
	}

	frames := maxFrames
	if int64(frames) > ready {
		frames = int(ready)
	}

	offset := r.frameOffset(server)
	frameSize := int(r.SCB.FrameSize)
	contiguous := (len(r.Data) - offset) / frameSize
	if frames > contiguous {
		frames = contiguous
	}
	if frames <= 0 {
		return Buffer{}, NotEnoughData
	}

	r.pendingFrames = int64(frames)
	r.pendingStart = server

	return Buffer{
		FrameCount: frames,
		Data:       r.Data[offset : offset+frames*frameSize],
	}, nil
}

// PutFrames implements the producer side of the ring: it copies as many
// whole frames from data as currently fit contiguously before the ring
// wraps or space runs out (whichever is smaller), returning the frame
// count actually copied. The caller is responsible for calling
// SCB.AdvanceUser with that count to commit the write and wake any
// waiting consumer; PutFrames itself never advances the cursor, mirroring
// the split between GetNextBuffer and ReleaseBuffer on the consumer side.
func (r *Ring) PutFrames(data []byte) int {
	frameSize := int(r.SCB.FrameSize)
	frames := len(data) / frameSize
	if frames <= 0 {
		return 0
	}

	free := r.SCB.FramesFree()
	if int64(frames) > free {
		frames = int(free)
	}
	if frames <= 0 {
		return 0
	}

	offset := r.frameOffset(r.SCB.User())
	contiguous := (len(r.Data) - offset) / frameSize
	if frames > contiguous {
		frames = contiguous
	}
	if frames <= 0 {
		return 0
	}

	n := copy(r.Data[offset:], data[:frames*frameSize])
	return n / frameSize
}

// ReleaseBuffer implements the consumer side's acknowledgement: it reports
// how many frames were actually consumed (<= the frames returned by the
// preceding GetNextBuffer) and advances the ring's consumer cursor via the
// SCB's guarded StepServer. If StepServer's non-blocking mutex attempt
// fails (spec §4.1 STEPSERVER_FAILED), the ring is left untouched and
// SCB.StepServerFailures() reflects the miss; the caller retries next
// cycle without having corrupted the ring.
func (r *Ring) ReleaseBuffer(consumedFrames int) {
	if consumedFrames > int(r.pendingFrames) {
		consumedFrames = int(r.pendingFrames)
	}
	r.pendingFrames = 0
	if consumedFrames <= 0 {
		return
	}
	r.SCB.StepServer(int64(consumedFrames))
}
