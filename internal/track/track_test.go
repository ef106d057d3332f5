package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrack() *Track {
	return New(1, StreamMusic, 64, 44100, 2, Format16Bit, false)
}

func TestTrackStartFromIdle(t *testing.T) {
	tr := newTestTrack()
	require.Equal(t, Idle, tr.State())
	ok := tr.Start()
	assert.True(t, ok)
	assert.Equal(t, Active, tr.State())
	assert.Equal(t, Filling, tr.FillStatus())
}

func TestTrackPausedResumeGoesThroughResuming(t *testing.T) {
	tr := newTestTrack()
	tr.Start()
	require.True(t, tr.Pause())
	assert.Equal(t, Pausing, tr.State())
	tr.AckPaused()
	assert.Equal(t, Paused, tr.State())

	ok := tr.Start()
	assert.True(t, ok)
	assert.Equal(t, Resuming, tr.State(), "resuming from PAUSED must not jump straight to ACTIVE")
}

func TestTrackPauseInvalidFromIdle(t *testing.T) {
	tr := newTestTrack()
	assert.False(t, tr.Pause(), "pause from IDLE is not a legal transition")
}

func TestTrackStopThenFlush(t *testing.T) {
	tr := newTestTrack()
	tr.Start()
	require.True(t, tr.Stop(false))
	assert.Equal(t, Stopped, tr.State())

	require.True(t, tr.Flush())
	assert.Equal(t, Flushed, tr.State())
	assert.Equal(t, Filling, tr.FillStatus())
	assert.EqualValues(t, 0, tr.Ring().SCB.FramesReady())
}

func TestTrackStopFromIdleFails(t *testing.T) {
	tr := newTestTrack()
	assert.False(t, tr.Stop(false))
}

func TestTrackDestroyFromAnyState(t *testing.T) {
	tr := newTestTrack()
	tr.Start()
	tr.Pause()
	tr.Destroy()
	assert.Equal(t, Terminated, tr.State())
}

func TestTrackFillStatusProgression(t *testing.T) {
	tr := newTestTrack()
	tr.Start()
	assert.Equal(t, Filling, tr.FillStatus())

	tr.Ring().SCB.AdvanceUser(64)
	assert.True(t, tr.ReadyToMix())

	tr.MarkFilled()
	assert.Equal(t, Filled, tr.FillStatus())
	tr.MarkActive()
	assert.Equal(t, FillActive, tr.FillStatus())
}

func TestTrackForceReadyShortCircuitsFillGate(t *testing.T) {
	tr := newTestTrack()
	tr.Start()
	assert.False(t, tr.ReadyToMix())
	tr.Ring().SCB.SetForceReady(true)
	assert.True(t, tr.ReadyToMix())
}

func TestTrackRetryEviction(t *testing.T) {
	tr := newTestTrack()
	tr.ResetRetries(false)
	for i := 0; i < MaxSteadyRetries-1; i++ {
		assert.False(t, tr.DecrementRetry(0))
	}
	assert.True(t, tr.DecrementRetry(0), "budget must be exhausted after MaxSteadyRetries decrements")
}

func TestTrackStaticBufferNeverEvictedBelowFloor(t *testing.T) {
	tr := New(2, StreamNotification, 64, 44100, 2, Format16Bit, true)
	tr.SetMinBytesToWrite(100)
	tr.ResetRetries(false)
	for i := 0; i < 1000; i++ {
		assert.False(t, tr.DecrementRetry(10), "below the static-buffer floor, eviction must never trigger")
	}
}

func TestEffectiveGainClampsToMaxGain(t *testing.T) {
	g := EffectiveGain(2.0, 2.0, float64(MaxGain))
	assert.Equal(t, float64(MaxGain), g)
	assert.Equal(t, 0.0, EffectiveGain(-1, 1, 1))
}

func TestTrackMuteAndVolume(t *testing.T) {
	tr := newTestTrack()
	assert.False(t, tr.Muted())
	tr.SetMute(true)
	assert.True(t, tr.Muted())

	tr.SetVolume(0.5, 0.75)
	l, r := tr.Volume()
	assert.Equal(t, 0.5, l)
	assert.Equal(t, 0.75, r)
}

func TestTrackSatisfiesBufferProvider(t *testing.T) {
	tr := newTestTrack()
	tr.Ring().SCB.AdvanceUser(32)
	buf, err := tr.GetNextBuffer(16)
	require.NoError(t, err)
	assert.Equal(t, 16, buf.FrameCount)
	tr.ReleaseBuffer(16)
	assert.EqualValues(t, 16, tr.Ring().SCB.FramesReady())
}
