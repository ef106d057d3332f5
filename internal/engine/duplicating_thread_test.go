package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

func TestDuplicatingThreadFansOutToDestination(t *testing.T) {
	dt := NewDuplicatingThread(1, 480, testSampleRate, nil)

	destOut := hal.NewFakeOutputStream(testSampleRate, testChannels, 0)
	dest := NewMixerThread(2, destOut, nil, nil)

	require.NoError(t, dt.AddDestination(100, dest, testSampleRate))
	assert.Len(t, dt.dests, 1)

	src := track.New(1, track.StreamMusic, dt.frameCount, testSampleRate, testChannels, track.Format16Bit, false)
	fillTrack(t, src, 0x66)
	require.True(t, src.Start())
	_, err := dt.CreateTrackL(src, track.StreamMusic, testSampleRate, testChannels)
	require.NoError(t, err)

	anyEnabled, _ := dt.mixCycle()
	require.True(t, anyEnabled)
	assert.Empty(t, destOut.Writes(), "fan-out reaches the destination's OutputTrack, not its device, until the destination mixes")

	anyEnabled, _ = dest.mixCycle()
	assert.True(t, anyEnabled)
	assert.Len(t, destOut.Writes(), 1)
}

func TestRemoveDestinationDetachesFromDestinationThread(t *testing.T) {
	dt := NewDuplicatingThread(1, 480, testSampleRate, nil)
	destOut := hal.NewFakeOutputStream(testSampleRate, testChannels, 0)
	dest := NewMixerThread(2, destOut, nil, nil)

	require.NoError(t, dt.AddDestination(100, dest, testSampleRate))
	require.Len(t, dest.tracks, 1)

	dt.RemoveDestination(100)
	assert.Len(t, dt.dests, 0)
	assert.Len(t, dest.tracks, 0)
}

func TestFlushDestinationsSendsZeroFrameWrite(t *testing.T) {
	dt := NewDuplicatingThread(1, 480, testSampleRate, nil)
	destOut := hal.NewFakeOutputStream(testSampleRate, testChannels, 0)
	dest := NewMixerThread(2, destOut, nil, nil)
	require.NoError(t, dt.AddDestination(100, dest, testSampleRate))

	d := dt.dests[100]
	d.out.Write([]byte{1, 2, 3, 4}, 1)
	assert.True(t, d.out.Primed())

	dt.flushDestinations()
	assert.False(t, d.out.Primed(), "zero-frame write resets the destination ring and clears primed")
}
