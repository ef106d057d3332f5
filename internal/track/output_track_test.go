package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputTrackWriteAdvancesRing(t *testing.T) {
	ot := NewOutputTrack(1, StreamMusic, 8, 44100, 1)
	frameSize := 2
	data := make([]byte, 4*frameSize)
	ot.Write(data, 4)
	// The first write front-pads with FrameCount()-frames (4) silence
	// frames before the real 4, so the ring ends up full (spec §4.7
	// Priming), not holding just the 4 real frames.
	assert.EqualValues(t, 8, ot.Ring().SCB.FramesReady())
	assert.True(t, ot.Primed())
	assert.Zero(t, ot.PendingOverflow())
}

func TestOutputTrackQueuesOnFullRing(t *testing.T) {
	ot := NewOutputTrack(1, StreamMusic, 4, 44100, 1)
	frameSize := 2
	full := make([]byte, 4*frameSize)
	ot.Write(full, 4) // ring now full

	more := make([]byte, 2*frameSize)
	ot.Write(more, 2)
	assert.Equal(t, 1, ot.PendingOverflow(), "a write that can't fit must be queued, not dropped or blocked on")

	// Downstream consumes some frames, freeing room; Pump should drain it.
	_, err := ot.GetNextBuffer(2)
	require.NoError(t, err)
	ot.ReleaseBuffer(2)

	ot.Pump()
	assert.Zero(t, ot.PendingOverflow(), "pump must drain queued overflow once space frees up")
}

func TestOutputTrackOverflowQueueBounded(t *testing.T) {
	ot := NewOutputTrack(1, StreamMusic, 2, 44100, 1)
	frameSize := 2
	ot.Write(make([]byte, 2*frameSize), 2) // fill the ring so every further write queues

	for i := 0; i < MaxOverflowBuffers+5; i++ {
		ot.Write(make([]byte, 1*frameSize), 1)
	}
	assert.LessOrEqual(t, ot.PendingOverflow(), MaxOverflowBuffers)
}

func TestOutputTrackZeroFrameWriteIsFlush(t *testing.T) {
	ot := NewOutputTrack(1, StreamMusic, 4, 44100, 1)
	frameSize := 2
	ot.Write(make([]byte, 4*frameSize), 4)
	ot.Write(make([]byte, 1*frameSize), 1) // queues, ring already full

	ot.Write(nil, 0)
	assert.Zero(t, ot.PendingOverflow())
	assert.EqualValues(t, 0, ot.Ring().SCB.FramesReady())
	assert.False(t, ot.Primed())
}
