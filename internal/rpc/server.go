package rpc

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/samoyed-audioserver/internal/engine"
	"github.com/doismellburning/samoyed-audioserver/internal/server"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// Backend is the subset of *server.Server the RPC layer calls into. A
// narrow interface here keeps internal/rpc testable without a real
// hal.Device.
type Backend interface {
	OpenOutput(devices []string, rate, channels, format int, latency time.Duration) (int, error)
	OpenInput(devices []string, rate, channels, format int) (int, error)
	OpenDuplicateOutput(a, b int) (int, error)
	CloseOutput(handle int) error
	CloseInput(handle int) error
	SuspendOutput(handle int) error
	RestoreOutput(handle int) error
	SetStreamOutput(streamType track.StreamType, destination int) error
	SetMasterVolume(v float64) error
	SetMode(mode string) error
	SetMicMute(mute bool) error
	SetVoiceVolume(v float64) error
	SetMasterMute()
	SetParameters(endpoint int, kv map[string]string) error

	CreateTrack(pid int, streamType track.StreamType, rate, format, channels, frameCount, endpointHandle int) (int, error)
	OpenRecord(pid int, endpointHandle int, rate, format, channels, frameCount int) (int, error)
	StartTrack(handle int) error
	StopTrack(handle int) error
	PauseTrack(handle int) error
	FlushTrack(handle int) error
	MuteTrack(handle int, mute bool) error
	SetTrackVolume(handle int, left, right float64) error

	RegisterClient(obs server.Observer) int
	UnregisterClient(id int)
}

// Listener accepts unix-domain-socket RPC connections and dispatches
// Requests to a Backend, one goroutine per connection (spec §5's "no
// user-visible API suspends on the real-time path" — RPC handling never
// touches a thread lock directly; it goes through Backend's own
// locking).
type Listener struct {
	ln      net.Listener
	backend Backend
	log     *log.Logger

	wg sync.WaitGroup
}

// Listen binds a unix domain socket at socketPath (spec.md §1's "thin
// handle layer," concretised per SPEC_FULL.md §D.1).
func Listen(socketPath string, backend Backend, logger *log.Logger) (*Listener, error) {
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, backend: backend, log: logger}, nil
}

// Serve accepts connections until the listener is closed. Call in its
// own goroutine from cmd/audioserver.
func (l *Listener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections and waits for in-flight
// connection handlers to finish (cmd/audioserver's graceful shutdown).
func (l *Listener) Close() error {
	err := l.ln.Close()
	l.wg.Wait()
	return err
}

// connHandler is one client connection's state: its registered observer ID (so
// ioConfigChanged pushes for this client are serialized onto the same
// socket as responses) and a write mutex, since pushes and responses
// both write to conn concurrently.
type connHandler struct {
	l       *Listener
	nc      net.Conn
	writeMu sync.Mutex
	obsID   int
}

func (l *Listener) handleConn(nc net.Conn) {
	defer nc.Close()

	h := &connHandler{l: l, nc: nc}
	h.obsID = l.backend.RegisterClient(h)
	defer l.backend.UnregisterClient(h.obsID)

	for {
		var req Request
		if err := readFrame(nc, &req); err != nil {
			return
		}
		resp := h.dispatch(req)
		h.writeMu.Lock()
		err := writeFrame(nc, resp)
		h.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// IOConfigChanged implements server.Observer: pushed to the client as an
// unsolicited Push frame (spec §6.2's observer callback), serialized
// against concurrent Response writes on the same connection.
func (h *connHandler) IOConfigChanged(kind engine.ConfigEventKind, endpoint int, payload any) {
	body, _ := json.Marshal(payload)
	push := Push{ID: 0, Event: kind.String(), Payload: body}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := writeFrame(h.nc, push); err != nil {
		h.l.log.Warn("rpc: push failed, dropping", "error", err)
	}
}

func (h *connHandler) dispatch(req Request) Response {
	result, err := h.call(req.Method, req.Params)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	body, merr := json.Marshal(result)
	if merr != nil {
		return Response{ID: req.ID, Error: merr.Error()}
	}
	return Response{ID: req.ID, Result: body}
}
