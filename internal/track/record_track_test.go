package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTrackStartStopFlush(t *testing.T) {
	rt := NewRecord(1, 64, 44100, 1)
	require.Equal(t, Idle, rt.State())

	assert.True(t, rt.Start())
	assert.Equal(t, Active, rt.State())

	assert.True(t, rt.Stop())
	assert.Equal(t, Stopped, rt.State())

	assert.True(t, rt.Flush())
	assert.Equal(t, Flushed, rt.State())
}

func TestRecordTrackFlushOnlyFromStopped(t *testing.T) {
	rt := NewRecord(1, 64, 44100, 1)
	assert.False(t, rt.Flush(), "flush is illegal before the track has ever been stopped")
}

func TestRecordTrackCapturePath(t *testing.T) {
	rt := NewRecord(1, 64, 44100, 2)
	rt.Start()

	// The server side writes captured frames by advancing the user
	// cursor directly; the client side pulls them via the provider
	// contract.
	rt.Ring().SCB.AdvanceUser(20)

	buf, err := rt.GetNextBuffer(20)
	require.NoError(t, err)
	assert.Equal(t, 20, buf.FrameCount)
	rt.ReleaseBuffer(20)
	assert.EqualValues(t, 0, rt.Ring().SCB.FramesReady())
}
