package mixer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/samoyed-audioserver/internal/aerr"
	"github.com/doismellburning/samoyed-audioserver/internal/scb"
)

type fakeProvider struct {
	data   []byte
	frames int
}

func (f *fakeProvider) GetNextBuffer(maxFrames int) (scb.Buffer, error) {
	if f.frames <= 0 {
		return scb.Buffer{}, scb.NotEnoughData
	}
	n := maxFrames
	if n > f.frames {
		n = f.frames
	}
	return scb.Buffer{FrameCount: n, Data: f.data[:n*4]}, nil
}

func (f *fakeProvider) ReleaseBuffer(consumed int) {
	f.frames -= consumed
}

func TestAllocateAndReleaseTrackName(t *testing.T) {
	m := New(64, 44100)
	id, err := m.AllocateTrackName()
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, m.Enable(id))
	m.Release(id)
	err = m.Enable(id)
	assert.ErrorIs(t, err, aerr.ErrBadIndex)
}

func TestSetParameterRejectsUnknownTrack(t *testing.T) {
	m := New(64, 44100)
	err := m.SetParameter(999, Params{Channels: 2, InRate: 44100, LeftVol: 1, RightVol: 1})
	assert.ErrorIs(t, err, aerr.ErrBadIndex)
}

func TestProcessWithNoEnabledTracksYieldsSilence(t *testing.T) {
	m := New(32, 44100)
	out := make([]int16, 32*2)
	m.Process(out)
	for _, s := range out {
		assert.Zero(t, s)
	}
}

func TestProcessMixesEnabledTrack(t *testing.T) {
	m := New(4, 44100)
	id, _ := m.AllocateTrackName()
	require.NoError(t, m.SetParameter(id, Params{Channels: 2, InRate: 44100, LeftVol: 1, RightVol: 1}))

	data := make([]byte, 4*4) // 4 frames * 2 channels * 2 bytes
	for i := 0; i < 4; i++ {
		data[i*4] = 0x10 // low byte of left sample
		data[i*4+2] = 0x20
	}
	fp := &fakeProvider{data: data, frames: 4}
	require.NoError(t, m.SetBufferProvider(id, fp))
	require.NoError(t, m.Enable(id))

	out := make([]int16, 4*2)
	m.Process(out)

	nonZero := false
	for _, s := range out {
		if s != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero, "enabled track with real data must contribute to the mix")
}

func TestProcessSubstitutesSilenceOnShortProvider(t *testing.T) {
	m := New(8, 44100)
	id, _ := m.AllocateTrackName()
	require.NoError(t, m.SetParameter(id, Params{Channels: 2, InRate: 44100, LeftVol: 1, RightVol: 1}))
	fp := &fakeProvider{data: make([]byte, 8*4), frames: 0}
	require.NoError(t, m.SetBufferProvider(id, fp))
	require.NoError(t, m.Enable(id))

	out := make([]int16, 8*2)
	assert.NotPanics(t, func() { m.Process(out) })
}

func TestSetParameterRateChangeRebuildsResampler(t *testing.T) {
	m := New(16, 48000)
	id, _ := m.AllocateTrackName()
	require.NoError(t, m.SetParameter(id, Params{Channels: 2, InRate: 44100, LeftVol: 1, RightVol: 1}))
	slot := m.tracks[id]
	first := slot.resamp
	require.NoError(t, m.SetParameter(id, Params{Channels: 2, InRate: 22050, LeftVol: 1, RightVol: 1}))
	assert.NotSame(t, first, m.tracks[id].resamp)
}
