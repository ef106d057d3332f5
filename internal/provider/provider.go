// Package provider holds the BufferProvider contract (spec §4.4) shared by
// everything that can be pulled from: Track, RecordTrack and OutputTrack.
// RecordThread does not implement it; it passes device samples to its
// resampler directly. Split out of
// internal/scb so internal/track and internal/mixer can both depend on the
// interface without depending on each other.
package provider

import "github.com/doismellburning/samoyed-audioserver/internal/scb"

// Buffer is a pulled chunk of interleaved PCM frames.
type Buffer = scb.Buffer

// BufferProvider is any pullable audio source. Implementations never block
// longer than a consumer-side attempt to advance cursors; on failure the
// caller substitutes silence for the requested frames (spec §4.3 error
// policy).
type BufferProvider interface {
	// GetNextBuffer requests up to maxFrames frames. On success it returns
	// a contiguous buffer with FrameCount <= maxFrames. On failure it
	// returns scb.NotEnoughData.
	GetNextBuffer(maxFrames int) (Buffer, error)

	// ReleaseBuffer reports how many frames of the last GetNextBuffer
	// result were actually consumed, advancing the provider's read
	// cursor.
	ReleaseBuffer(consumedFrames int)
}
