package rpc

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/samoyed-audioserver/internal/engine"
	"github.com/doismellburning/samoyed-audioserver/internal/server"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// fakeBackend implements Backend without touching internal/server's real
// endpoint wiring, so this package's tests exercise only the wire
// protocol and dispatch switch.
type fakeBackend struct {
	openOutputCalls int
	obs             map[int]server.Observer
	nextObsID       int
}

func newFakeBackend() *fakeBackend { return &fakeBackend{obs: make(map[int]server.Observer)} }

func (f *fakeBackend) OpenOutput(devices []string, rate, channels, format int, latency time.Duration) (int, error) {
	f.openOutputCalls++
	return 42, nil
}
func (f *fakeBackend) OpenInput(devices []string, rate, channels, format int) (int, error) { return 7, nil }
func (f *fakeBackend) OpenDuplicateOutput(a, b int) (int, error)                          { return 9, nil }
func (f *fakeBackend) CloseOutput(handle int) error                                       { return nil }
func (f *fakeBackend) CloseInput(handle int) error                                        { return nil }
func (f *fakeBackend) SuspendOutput(handle int) error                                     { return nil }
func (f *fakeBackend) RestoreOutput(handle int) error                                     { return nil }
func (f *fakeBackend) SetStreamOutput(streamType track.StreamType, destination int) error  { return nil }
func (f *fakeBackend) SetMasterVolume(v float64) error                                    { return nil }
func (f *fakeBackend) SetMode(mode string) error                                          { return nil }
func (f *fakeBackend) SetMicMute(mute bool) error                                         { return nil }
func (f *fakeBackend) SetVoiceVolume(v float64) error                                     { return nil }
func (f *fakeBackend) SetMasterMute()                                                     {}
func (f *fakeBackend) SetParameters(endpoint int, kv map[string]string) error             { return nil }

func (f *fakeBackend) CreateTrack(pid int, streamType track.StreamType, rate, format, channels, frameCount, endpointHandle int) (int, error) {
	return 100, nil
}
func (f *fakeBackend) OpenRecord(pid int, endpointHandle int, rate, format, channels, frameCount int) (int, error) {
	return 101, nil
}
func (f *fakeBackend) StartTrack(handle int) error                    { return nil }
func (f *fakeBackend) StopTrack(handle int) error                     { return nil }
func (f *fakeBackend) PauseTrack(handle int) error                    { return nil }
func (f *fakeBackend) FlushTrack(handle int) error                    { return nil }
func (f *fakeBackend) MuteTrack(handle int, mute bool) error          { return nil }
func (f *fakeBackend) SetTrackVolume(handle int, left, right float64) error { return nil }

func (f *fakeBackend) RegisterClient(obs server.Observer) int {
	f.nextObsID++
	f.obs[f.nextObsID] = obs
	return f.nextObsID
}
func (f *fakeBackend) UnregisterClient(id int) { delete(f.obs, id) }

func startTestServer(t *testing.T) (*Listener, *fakeBackend, string) {
	t.Helper()
	backend := newFakeBackend()
	sock := filepath.Join(t.TempDir(), "audioserver.sock")
	ln, err := Listen(sock, backend, log.New(io.Discard))
	require.NoError(t, err)
	go ln.Serve()
	t.Cleanup(func() { ln.Close() })
	return ln, backend, sock
}

func TestCallRoundTrip(t *testing.T) {
	_, backend, sock := startTestServer(t)

	c, err := Dial(sock)
	require.NoError(t, err)
	defer c.Close()

	var handle int
	err = c.Call("openOutput", map[string]any{"devices": []string{"default"}}, &handle)
	require.NoError(t, err)
	require.Equal(t, 42, handle)
	require.Equal(t, 1, backend.openOutputCalls)
}

func TestCallUnknownMethod(t *testing.T) {
	_, _, sock := startTestServer(t)

	c, err := Dial(sock)
	require.NoError(t, err)
	defer c.Close()

	err = c.Call("bogus", nil, nil)
	require.Error(t, err)
}

func TestPushDelivered(t *testing.T) {
	_, backend, sock := startTestServer(t)

	c, err := Dial(sock)
	require.NoError(t, err)
	defer c.Close()

	received := make(chan Push, 1)
	c.OnPush(func(p Push) { received <- p })

	// Registering happens as a side effect of Dial's connection being
	// accepted; give the accept goroutine a moment to run, then force a
	// dummy call so the read loop is primed before we push.
	var handle int
	require.NoError(t, c.Call("openOutput", map[string]any{}, &handle))

	require.Len(t, backend.obs, 1)
	var obs server.Observer
	for _, o := range backend.obs {
		obs = o
	}
	go obs.IOConfigChanged(engine.OutputOpened, 1, nil)

	select {
	case p := <-received:
		require.Equal(t, "OUTPUT_OPENED", p.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
	}
}
