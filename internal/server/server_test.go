package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/samoyed-audioserver/internal/aerr"
	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(hal.NewFakeDevice(), nil)
}

func TestSetParametersRejectsFrameCountChangeWithOpenTracks(t *testing.T) {
	s := newTestServer(t)

	handle, err := s.OpenOutput(nil, 48000, 2, 0, 0)
	require.NoError(t, err)

	_, err = s.CreateTrack(1, track.StreamMusic, 48000, 0, 2, 256, handle)
	require.NoError(t, err)

	err = s.SetParameters(handle, map[string]string{"frame_count": "512"})
	require.Error(t, err, "frame_count must be rejected while tracks are attached (spec §6.4)")

	var aerrErr *aerr.Error
	require.True(t, errors.As(err, &aerrErr))
	assert.Equal(t, aerr.InvalidOperation, aerrErr.Kind)
}

func TestSetParametersAllowsFrameCountChangeWithNoOpenTracks(t *testing.T) {
	s := newTestServer(t)

	handle, err := s.OpenOutput(nil, 48000, 2, 0, 0)
	require.NoError(t, err)

	err = s.SetParameters(handle, map[string]string{"frame_count": "512"})
	assert.NoError(t, err, "frame_count changes are fine on an endpoint with no attached tracks")
}
