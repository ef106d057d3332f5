package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

func newTestDirectOutputThread(t *testing.T) (*DirectOutputThread, *hal.FakeOutputStream) {
	t.Helper()
	out := hal.NewFakeOutputStream(testSampleRate, testChannels, 0)
	d := NewDirectOutputThread(1, out, nil)
	return d, out
}

func TestDirectOutputCycleWritesReadyTrack(t *testing.T) {
	d, out := newTestDirectOutputThread(t)

	frameCount := len(d.buf) / (testChannels * 2)
	tr := track.New(1, track.StreamMusic, frameCount, testSampleRate, testChannels, track.Format16Bit, false)
	fillTrack(t, tr, 0x44)
	require.True(t, tr.Start())

	d.Lock()
	d.SetTrackL(tr)
	d.Unlock()

	wrote := d.cycle()
	assert.True(t, wrote)
	assert.Len(t, out.Writes(), 1)
}

func TestDirectOutputCycleAcksPausingTrackAndWritesNothing(t *testing.T) {
	d, out := newTestDirectOutputThread(t)

	frameCount := len(d.buf) / (testChannels * 2)
	tr := track.New(2, track.StreamMusic, frameCount, testSampleRate, testChannels, track.Format16Bit, false)
	fillTrack(t, tr, 0x55)
	require.True(t, tr.Start())
	require.True(t, tr.Pause())

	d.Lock()
	d.SetTrackL(tr)
	d.Unlock()

	wrote := d.cycle()
	assert.False(t, wrote)
	assert.Equal(t, track.Paused, tr.State(), "cycle must ack PAUSING to PAUSED even though it wrote nothing")
	assert.Empty(t, out.Writes())
}

func TestDirectOutputCycleReturnsFalseWithNoTrack(t *testing.T) {
	d, _ := newTestDirectOutputThread(t)
	assert.False(t, d.cycle())
}

func TestSetVolumeStoresAppliedNormalizedValue(t *testing.T) {
	d, out := newTestDirectOutputThread(t)

	left := track.MaxGain / 4
	right := track.MaxGain / 2
	require.NoError(t, d.SetVolume(left, right))

	appliedLeft, appliedRight := d.AppliedVolume()
	assert.InDelta(t, 0.25, appliedLeft, 1e-9)
	assert.InDelta(t, 0.5, appliedRight, 1e-9)

	devLeft, devRight := out.Volume()
	assert.Equal(t, appliedLeft, devLeft)
	assert.Equal(t, appliedRight, devRight)
}

func TestApplyPendingParametersForwardsToDevice(t *testing.T) {
	d, out := newTestDirectOutputThread(t)

	done := make(chan struct{})
	go func() {
		d.QueueParameter(map[string]string{"routing": "speaker"})
		close(done)
	}()

	require.Eventually(t, func() bool {
		d.applyPendingParameters(d.applyParamLocked)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, map[string]string{"routing": "speaker"}, out.LastParameters(),
		"a direct-mode endpoint has no mixer stage of its own, so parameter changes must reach the hardware driver")
}

func TestDirectOutputCycleEvictsTrackAfterRetriesExhausted(t *testing.T) {
	d, _ := newTestDirectOutputThread(t)

	frameCount := len(d.buf) / (testChannels * 2)
	tr := track.New(3, track.StreamMusic, frameCount, testSampleRate, testChannels, track.Format16Bit, false)
	require.True(t, tr.Start()) // ring left empty
	tr.ResetRetries(false)      // bound the loop to MaxSteadyRetries

	d.Lock()
	d.SetTrackL(tr)
	d.Unlock()

	for i := 0; i < track.MaxSteadyRetries; i++ {
		d.cycle()
	}

	d.Lock()
	current := d.current
	d.Unlock()
	assert.Nil(t, current, "track should have been cleared once its retry budget was exhausted")
}
