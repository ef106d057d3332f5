package server

import (
	"fmt"

	"github.com/doismellburning/samoyed-audioserver/internal/aerr"
	"github.com/doismellburning/samoyed-audioserver/internal/engine"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// trackEntry is the server's record of one client-visible track handle
// (playback or record), tying it back to the endpoint and (for playback)
// the mixer-internal id it currently occupies there.
type trackEntry struct {
	handle     int
	pid        int
	endpoint   int
	streamType track.StreamType
	sampleRate int
	channels   int

	tr      *track.Track       // non-nil for a playback track
	rt      *track.RecordTrack // non-nil for a record track
	mixerID int                // valid only when tr != nil and endpoint is mixer/duplicating
}

// CreateTrack implements spec §6.2 createTrack / §4.9 "Track creation":
// resolve the endpoint under the server lock, validate against its mode,
// get-or-create the per-pid Client, then attach the new track to the
// endpoint's thread.
func (s *Server) CreateTrack(pid int, streamType track.StreamType, rate, format, channels, frameCount int, endpointHandle int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, err := s.endpointFor(endpointHandle)
	if err != nil {
		return 0, err
	}
	if ep.suspended {
		return 0, aerr.New(aerr.InvalidOperation, "server: endpoint is suspended")
	}
	if ep.kind == KindRecord {
		return 0, aerr.New(aerr.InvalidOperation, "server: createTrack on a record endpoint")
	}

	if ep.kind == KindDirect {
		// Direct-mode endpoints reject mismatched rate/format/channels
		// (spec §4.9): the hardware stream plays exactly what's written,
		// with no resampling/mixing stage to absorb a mismatch.
		if rate != ep.sampleRate || channels != ep.channels {
			return 0, aerr.New(aerr.InvalidArgument, "server: direct-mode endpoint requires matching rate/channels")
		}
	} else {
		// Mixer-mode endpoints reject input rates > 2x device (spec
		// §4.9): beyond that the linear resampler's quality and the
		// fixed per-cycle work budget both break down.
		if rate > ep.sampleRate*2 {
			return 0, aerr.New(aerr.InvalidArgument, "server: input rate exceeds 2x the mixer endpoint's device rate")
		}
	}

	client := s.clientFor(pid)

	tr := track.New(0, streamType, frameCount, rate, channels, track.Format(format), false)

	var mixerID int
	ep.lock()
	switch ep.kind {
	case KindDirect:
		ep.direct.SetTrackL(tr)
	case KindMixer:
		mixerID, err = ep.mixer.CreateTrackL(tr, streamType, rate, channels)
	case KindDuplicating:
		mixerID, err = ep.dup.CreateTrackL(tr, streamType, rate, channels)
	}
	ep.unlock()
	if err != nil {
		return 0, err
	}

	handle := s.allocHandle()
	s.tracks[handle] = &trackEntry{
		handle: handle, pid: pid, endpoint: endpointHandle, streamType: streamType,
		sampleRate: rate, channels: channels, tr: tr, mixerID: mixerID,
	}
	client.tracks[handle] = struct{}{}
	return handle, nil
}

// OpenRecord implements spec §6.2 openRecord: creates a RecordTrack bound
// to an already-open record endpoint, but does not start capture — that
// happens via the returned handle's start() (spec §6.2 "Record handle
// exposes start, stop, getSharedBlock").
func (s *Server) OpenRecord(pid int, endpointHandle int, rate, format, channels, frameCount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, err := s.endpointFor(endpointHandle)
	if err != nil {
		return 0, err
	}
	if ep.kind != KindRecord {
		return 0, aerr.New(aerr.InvalidOperation, fmt.Sprintf("server: endpoint %d is not a record endpoint", endpointHandle))
	}

	client := s.clientFor(pid)
	rt := track.NewRecord(0, frameCount, rate, channels)

	handle := s.allocHandle()
	s.tracks[handle] = &trackEntry{
		handle: handle, pid: pid, endpoint: endpointHandle, streamType: track.StreamMusic,
		sampleRate: rate, channels: channels, rt: rt,
	}
	client.tracks[handle] = struct{}{}
	return handle, nil
}

func (s *Server) trackFor(handle int) (*trackEntry, error) {
	e, ok := s.tracks[handle]
	if !ok {
		return nil, aerr.New(aerr.BadIndex, fmt.Sprintf("server: unknown track %d", handle))
	}
	return e, nil
}

// StartTrack/StopTrack/PauseTrack/FlushTrack/MuteTrack/SetTrackVolume
// implement spec §6.2's playback track handle surface. Track's own
// methods already guard their state under the track's mutex (spec §4.2),
// so these only need the server lock long enough to resolve the handle —
// for a record track, Start/Stop instead block on the owning
// RecordThread's synchronous handshake (spec §4.8), released before
// calling into it.
func (s *Server) StartTrack(handle int) error {
	e, rt, tr, err := s.resolveTrack(handle)
	if err != nil {
		return err
	}
	if tr != nil {
		if !tr.Start() {
			return aerr.New(aerr.InvalidOperation, "server: track cannot start from its current state")
		}
		return nil
	}
	ep, err := s.endpointForLocked(e.endpoint)
	if err != nil {
		return err
	}
	ep.record.StartL(rt, e.sampleRate, e.channels)
	return nil
}

func (s *Server) StopTrack(handle int) error {
	e, rt, tr, err := s.resolveTrack(handle)
	if err != nil {
		return err
	}
	if tr != nil {
		tr.Stop(true)
		return nil
	}
	ep, err := s.endpointForLocked(e.endpoint)
	if err != nil {
		return err
	}
	ep.record.StopL(rt)
	return nil
}

func (s *Server) PauseTrack(handle int) error {
	_, _, tr, err := s.resolveTrack(handle)
	if err != nil {
		return err
	}
	if tr == nil {
		return aerr.New(aerr.InvalidOperation, "server: pause is playback-only")
	}
	tr.Pause()
	return nil
}

func (s *Server) FlushTrack(handle int) error {
	e, rt, tr, err := s.resolveTrack(handle)
	if err != nil {
		return err
	}
	if tr != nil {
		tr.Flush()
		return nil
	}
	_ = e
	rt.Flush()
	return nil
}

func (s *Server) MuteTrack(handle int, mute bool) error {
	_, _, tr, err := s.resolveTrack(handle)
	if err != nil {
		return err
	}
	if tr == nil {
		return aerr.New(aerr.InvalidOperation, "server: mute is playback-only")
	}
	tr.SetMute(mute)
	return nil
}

func (s *Server) SetTrackVolume(handle int, left, right float64) error {
	_, _, tr, err := s.resolveTrack(handle)
	if err != nil {
		return err
	}
	if tr == nil {
		return aerr.New(aerr.InvalidOperation, "server: setVolume is playback-only")
	}
	tr.SetVolume(left, right)
	return nil
}

func (s *Server) resolveTrack(handle int) (*trackEntry, *track.RecordTrack, *track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.trackFor(handle)
	if err != nil {
		return nil, nil, nil, err
	}
	return e, e.rt, e.tr, nil
}

func (s *Server) endpointForLocked(handle int) (*endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpointFor(handle)
}

// SetStreamOutput implements spec §6.2/§4.9 setStreamOutput: every mixer-
// or duplicating-mode endpoint other than destination has its tracks of
// streamType atomically detached (preserving active status, since the
// same *track.Track object moves rather than being recreated) and
// reattached at destination, with mixer track names reassigned. Clients
// are notified once per source endpoint touched.
func (s *Server) SetStreamOutput(streamType track.StreamType, destination int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest, err := s.endpointFor(destination)
	if err != nil {
		return err
	}
	if dest.kind != KindMixer && dest.kind != KindDuplicating {
		return aerr.New(aerr.InvalidOperation, "server: setStreamOutput destination must be a mixer-mode endpoint")
	}

	for _, ep := range s.endpoints {
		if ep.handle == destination || (ep.kind != KindMixer && ep.kind != KindDuplicating) {
			continue
		}

		var moved []*trackEntry
		for _, te := range s.tracks {
			if te.endpoint != ep.handle || te.streamType != streamType || te.tr == nil {
				continue
			}
			moved = append(moved, te)
		}
		if len(moved) == 0 {
			continue
		}

		ep.lock()
		for _, te := range moved {
			removeTrackL(ep, te.mixerID)
		}
		ep.unlock()

		dest.lock()
		for _, te := range moved {
			newID, cerr := createTrackL(dest, te.tr, te.streamType, te.sampleRate, te.channels)
			if cerr != nil {
				continue
			}
			te.mixerID = newID
			te.endpoint = destination
		}
		dest.unlock()

		s.dispatchLocked(engine.ConfigEvent{Kind: engine.StreamConfigChanged, Endpoint: ep.handle, Payload: streamType})
	}

	return nil
}

func removeTrackL(ep *endpoint, mixerID int) {
	switch ep.kind {
	case KindMixer:
		ep.mixer.RemoveTrackL(mixerID)
	case KindDuplicating:
		ep.dup.RemoveTrackL(mixerID)
	}
}

func createTrackL(ep *endpoint, tr *track.Track, st track.StreamType, rate, channels int) (int, error) {
	switch ep.kind {
	case KindMixer:
		return ep.mixer.CreateTrackL(tr, st, rate, channels)
	case KindDuplicating:
		return ep.dup.CreateTrackL(tr, st, rate, channels)
	}
	return 0, aerr.New(aerr.InvalidOperation, "server: createTrackL on a non-mixer endpoint")
}

// SetParameters/GetParameters implement spec §6.2/§6.4: endpoint 0 means
// process-wide (delegated to the HAL device); any other handle targets
// that endpoint's hardware stream directly via its thread's parameter
// handshake (spec §5) rather than mutating stream state from outside the
// thread's lock.
func (s *Server) SetParameters(endpointHandle int, kv map[string]string) error {
	if endpointHandle == 0 {
		return s.device.SetParameters(kv)
	}
	ep, err := s.endpointForLocked(endpointHandle)
	if err != nil {
		return err
	}

	if _, changingFrameCount := kv["frame_count"]; changingFrameCount {
		// spec §6.4: frame_count is rejected with INVALID_OPERATION if
		// tracks are open, since rebuilding the mixer/duplicating thread
		// for a new frame shape silently drops every attached track.
		var openTracks int
		switch ep.kind {
		case KindMixer:
			openTracks = ep.mixer.TrackCount()
		case KindDuplicating:
			openTracks = ep.dup.TrackCount()
		}
		if openTracks > 0 {
			return aerr.New(aerr.InvalidOperation, "server: frame_count cannot change while tracks are attached")
		}
	}

	switch ep.kind {
	case KindMixer:
		ep.mixer.QueueParameter(kv)
	case KindDirect:
		ep.direct.QueueParameter(kv)
	case KindDuplicating:
		ep.dup.QueueParameter(kv)
	case KindRecord:
		ep.record.QueueParameter(kv)
	}
	return nil
}
