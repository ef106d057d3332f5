// Package server implements the process-wide coordination core (spec
// §4.9): the endpoint registry, track creation, stream-to-endpoint
// rerouting, and config-event fan-out to registered RPC observers. It is
// the only package that ever holds more than one engine thread's lock at
// once, and always in rank order (spec §5): server lock, then a thread
// lock, never the reverse.
package server

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/samoyed-audioserver/internal/aerr"
	"github.com/doismellburning/samoyed-audioserver/internal/engine"
	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// Kind distinguishes the four endpoint thread shapes spec §2/§4 defines.
type Kind int

const (
	KindMixer Kind = iota
	KindDirect
	KindDuplicating
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindMixer:
		return "mixer"
	case KindDirect:
		return "direct"
	case KindDuplicating:
		return "duplicating"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// endpoint is one registered endpoint thread plus the bookkeeping the
// server core needs to create tracks on it and reroute streams across it.
// Only one of the four thread fields is non-nil, selected by kind.
type endpoint struct {
	handle int
	kind   Kind

	sampleRate int
	channels   int

	mixer  *engine.MixerThread
	direct *engine.DirectOutputThread
	dup    *engine.DuplicatingThread
	record *engine.RecordThread

	suspended bool
}

// lock/unlock take the endpoint's own thread lock (spec §5 rank 2),
// whichever concrete thread type this endpoint wraps.
func (e *endpoint) lock() {
	switch e.kind {
	case KindMixer:
		e.mixer.Lock()
	case KindDirect:
		e.direct.Lock()
	case KindDuplicating:
		e.dup.Lock()
	case KindRecord:
		e.record.Lock()
	}
}

func (e *endpoint) unlock() {
	switch e.kind {
	case KindMixer:
		e.mixer.Unlock()
	case KindDirect:
		e.direct.Unlock()
	case KindDuplicating:
		e.dup.Unlock()
	case KindRecord:
		e.record.Unlock()
	}
}

// tryLock is the non-blocking form used by dump paths (spec §5:
// "Dumping paths use bounded tryLock with retry to detect deadlock for
// diagnostics").
func (e *endpoint) tryLock() bool {
	switch e.kind {
	case KindMixer:
		return e.mixer.TryLock()
	case KindDirect:
		return e.direct.TryLock()
	case KindDuplicating:
		return e.dup.TryLock()
	case KindRecord:
		return e.record.TryLock()
	}
	return true
}

func (e *endpoint) requestExit() {
	switch e.kind {
	case KindMixer:
		e.mixer.RequestExit()
	case KindDirect:
		e.direct.RequestExit()
	case KindDuplicating:
		e.dup.RequestExit()
	case KindRecord:
		e.record.RequestExit()
	}
}

// Server is the process-wide coordination core (spec §4.9). Exactly one
// exists per process; cmd/audioserver constructs it.
type Server struct {
	mu sync.Mutex // the "server lock" (spec §5 rank 1)

	nextHandle int
	endpoints  map[int]*endpoint
	tracks     map[int]*trackEntry

	clients map[int]*Client // keyed by pid

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int

	device hal.Device
	log    *log.Logger
}

// Observer receives ioConfigChanged notifications (spec §6.2).
type Observer interface {
	IOConfigChanged(kind engine.ConfigEventKind, endpoint int, payload any)
}

// Client is the per-pid registration spec §4.9's "get-or-create the
// per-pid Client" refers to: the set of track handles a given client
// process currently owns, so the server can clean up on disconnect.
type Client struct {
	Pid    int
	tracks map[int]struct{}
}

// New constructs a Server bound to device for opening hardware streams.
func New(device hal.Device, logger *log.Logger) *Server {
	return &Server{
		endpoints: make(map[int]*endpoint),
		tracks:    make(map[int]*trackEntry),
		clients:   make(map[int]*Client),
		observers: make(map[int]Observer),
		device:    device,
		log:       logger,
	}
}

func (s *Server) allocHandle() int {
	s.nextHandle++
	return s.nextHandle
}

func (s *Server) clientFor(pid int) *Client {
	c, ok := s.clients[pid]
	if !ok {
		c = &Client{Pid: pid, tracks: make(map[int]struct{})}
		s.clients[pid] = c
	}
	return c
}

func (s *Server) endpointFor(handle int) (*endpoint, error) {
	e, ok := s.endpoints[handle]
	if !ok {
		return nil, aerr.New(aerr.BadIndex, fmt.Sprintf("server: unknown endpoint %d", handle))
	}
	return e, nil
}
