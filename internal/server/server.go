package server

import (
	"fmt"
	"time"

	"github.com/doismellburning/samoyed-audioserver/internal/aerr"
	"github.com/doismellburning/samoyed-audioserver/internal/engine"
)

// directChannels/directFormat16Bit mark when an output must go through
// DirectOutputThread instead of the software mixer (spec §4.6): anything
// the mixer can't handle (non-stereo or non-16-bit).
const (
	directFormat16Bit = 0
	directChannels     = 2
)

// OpenOutput opens a new mixer-mode output endpoint over device, matching
// spec §6.2 openOutput. rate/channels/format of 0 mean "device default."
func (s *Server) OpenOutput(devices []string, rate, channels, format int, latency time.Duration) (int, error) {
	out, err := s.device.OpenOutputStream(devices, rate, channels, format, latency)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle := s.allocHandle()
	var ep *endpoint
	if channels != directChannels || format != directFormat16Bit {
		dt := engine.NewDirectOutputThread(handle, out, s)
		ep = &endpoint{handle: handle, kind: KindDirect, sampleRate: out.SampleRate(), channels: out.Channels(), direct: dt}
		go dt.Run()
	} else {
		mt := engine.NewMixerThread(handle, out, s, s.log)
		ep = &endpoint{handle: handle, kind: KindMixer, sampleRate: out.SampleRate(), channels: out.Channels(), mixer: mt}
		go mt.Run()
	}
	s.endpoints[handle] = ep

	s.dispatchLocked(engine.ConfigEvent{Kind: engine.OutputOpened, Endpoint: handle})
	return handle, nil
}

// OpenInput opens a new record endpoint over device (spec §6.2 openInput).
func (s *Server) OpenInput(devices []string, rate, channels, format int) (int, error) {
	in, err := s.device.OpenInputStream(devices, rate, channels, format)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle := s.allocHandle()
	rt := engine.NewRecordThread(handle, in, s)
	ep := &endpoint{handle: handle, kind: KindRecord, sampleRate: in.SampleRate(), channels: in.Channels(), record: rt}
	s.endpoints[handle] = ep
	go rt.Run()

	s.dispatchLocked(engine.ConfigEvent{Kind: engine.InputOpened, Endpoint: handle})
	return handle, nil
}

// OpenDuplicateOutput creates a DuplicatingThread that fans its mix out to
// the two already-open mixer endpoints a and b (spec §6.2
// openDuplicateOutput, §4.7).
func (s *Server) OpenDuplicateOutput(a, b int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ea, err := s.endpointFor(a)
	if err != nil {
		return 0, err
	}
	eb, err := s.endpointFor(b)
	if err != nil {
		return 0, err
	}
	if ea.kind != KindMixer || eb.kind != KindMixer {
		return 0, aerr.New(aerr.InvalidOperation, "server: openDuplicateOutput requires two mixer-mode endpoints")
	}

	handle := s.allocHandle()
	// The duplicating thread's own frame shape mirrors whichever
	// destination has the smaller frame count, so neither downstream
	// mixer ever sees a partial period (spec §4.7's "sized to roughly
	// 3x the source frame count").
	frameCount := ea.mixer.FrameCount()
	if eb.mixer.FrameCount() < frameCount {
		frameCount = eb.mixer.FrameCount()
	}
	dt := engine.NewDuplicatingThread(handle, frameCount, ea.sampleRate, s)
	if err := dt.AddDestination(ea.handle, ea.mixer, ea.sampleRate); err != nil {
		return 0, err
	}
	if err := dt.AddDestination(eb.handle, eb.mixer, eb.sampleRate); err != nil {
		return 0, err
	}

	ep := &endpoint{handle: handle, kind: KindDuplicating, sampleRate: ea.sampleRate, channels: ea.channels, dup: dt}
	s.endpoints[handle] = ep
	go dt.Run()

	s.dispatchLocked(engine.ConfigEvent{Kind: engine.OutputOpened, Endpoint: handle})
	return handle, nil
}

// CloseOutput tears down a playback endpoint (spec §6.2 closeOutput).
func (s *Server) CloseOutput(handle int) error {
	return s.closeEndpoint(handle)
}

// CloseInput tears down a record endpoint (spec §6.2 closeInput).
func (s *Server) CloseInput(handle int) error {
	return s.closeEndpoint(handle)
}

// closeEndpoint removes handle from the registry and asks its thread to
// exit; the thread itself emits the final OutputClosed/InputClosed event
// once it has flushed (spec §4.5 step 6/§5), so this method does not
// dispatch one itself.
func (s *Server) closeEndpoint(handle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.endpointFor(handle)
	if err != nil {
		return err
	}
	delete(s.endpoints, handle)
	e.requestExit()
	return nil
}

// SuspendOutput/RestoreOutput implement spec §6.2's suspend/restore pair:
// a suspended endpoint stops accepting new tracks but its thread keeps
// running so in-flight tracks drain naturally.
func (s *Server) SuspendOutput(handle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.endpointFor(handle)
	if err != nil {
		return err
	}
	e.suspended = true
	return nil
}

func (s *Server) RestoreOutput(handle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.endpointFor(handle)
	if err != nil {
		return err
	}
	e.suspended = false
	return nil
}

// RegisterClient implements spec §6.2 registerClient: obs is notified of
// every future ioConfigChanged event until unregistered.
func (s *Server) RegisterClient(obs Observer) int {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextObsID++
	id := s.nextObsID
	s.observers[id] = obs
	return id
}

// UnregisterClient removes a previously registered observer.
func (s *Server) UnregisterClient(id int) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	delete(s.observers, id)
}

// SetMasterVolume/SetMasterMute/SetMode/SetMicMute implement the
// process-wide policy setters of spec §6.2, delegated straight to the HAL
// device.
func (s *Server) SetMasterVolume(v float64) error { return s.device.SetMasterVolume(v) }
func (s *Server) SetMode(mode string) error       { return s.device.SetMode(mode) }
func (s *Server) SetMicMute(mute bool) error      { return s.device.SetMicMute(mute) }
func (s *Server) SetVoiceVolume(v float64) error  { return s.device.SetVoiceVolume(v) }

// SetMasterMute asserts the one-shot silent-mode policy hook on every
// mixer-mode endpoint thread (spec §4.5 "Silent-mode property").
func (s *Server) SetMasterMute() {
	s.mu.Lock()
	eps := make([]*endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		eps = append(eps, e)
	}
	s.mu.Unlock()

	for _, e := range eps {
		if e.kind == KindMixer {
			e.mixer.SetMasterMute()
		}
	}
}

func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("server: %d endpoint(s), %d client(s)", len(s.endpoints), len(s.clients))
}
