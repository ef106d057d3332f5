package engine

import (
	"sync"

	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// duplicatingSink is the Sink MixerThread writes its mixed period into
// when running as a DuplicatingThread: instead of a hardware device, the
// bytes are fanned out to every attached destination's OutputTrack
// (spec §4.7).
type duplicatingSink struct {
	dt *DuplicatingThread
}

func (s *duplicatingSink) Write(buf []byte) (int, error) {
	s.dt.fanOut(buf)
	return len(buf), nil
}
func (s *duplicatingSink) Standby() error { return nil }
func (s *duplicatingSink) Close() error   { s.dt.flushDestinations(); return nil }

// destination is one downstream MixerThread this DuplicatingThread feeds,
// via an OutputTrack sized to roughly 3x the source frame count scaled
// for the destination sample rate (spec §4.7).
type destination struct {
	out    *track.OutputTrack
	thread *MixerThread
	// mixerID is the track id the destination MixerThread allocated for
	// this OutputTrack; needed to detach cleanly on removal.
	mixerID int
}

// DuplicatingThread is a MixerThread whose output feeds one or more
// downstream MixerThreads via virtual OutputTracks instead of a hardware
// device (spec §4.7, §2 item 7).
type DuplicatingThread struct {
	*MixerThread

	fanMu sync.Mutex // dedicated fan-out lock (spec §4.7/§5: "holds its own lock to edit the fan-out vector"), rank below the thread lock
	dests map[int]*destination
}

// NewDuplicatingThread constructs a DuplicatingThread. Its embedded
// MixerThread mixes exactly as a normal mixer endpoint would; only the
// output sink differs.
func NewDuplicatingThread(endpoint, frameCount, sampleRate int, dispatcher Dispatcher) *DuplicatingThread {
	dt := &DuplicatingThread{dests: make(map[int]*destination)}
	dt.MixerThread = newMixerThreadWithSink(endpoint, frameCount, sampleRate, dispatcher)
	dt.MixerThread.device = &duplicatingSink{dt: dt}
	return dt
}

// AddDestination attaches a new downstream MixerThread, registering an
// OutputTrack with it sized to approximately 3x this thread's frame
// count, scaled by the destination's sample rate (spec §4.7). Adding a
// destination takes the destination thread's lock only to register the
// OutputTrack, releases it, and only then takes the fan-out lock; the two
// locks are never held together (spec §5 lock rank).
func (dt *DuplicatingThread) AddDestination(id int, destThread *MixerThread, destSampleRate int) error {
	size := dt.frameCount * 3 * destSampleRate / dt.sampleRate
	if size <= 0 {
		size = dt.frameCount * 3
	}
	ot := track.NewOutputTrack(id, track.StreamMusic, size, destSampleRate, dt.channels)
	ot.Start()

	destThread.Lock()
	mixerID, err := destThread.CreateTrackL(ot.Track, track.StreamMusic, dt.sampleRate, dt.channels)
	destThread.Unlock()
	if err != nil {
		return err
	}

	dt.fanMu.Lock()
	dt.dests[id] = &destination{out: ot, thread: destThread, mixerID: mixerID}
	dt.fanMu.Unlock()
	return nil
}

// RemoveDestination detaches a destination (spec §4.7 "Adding/removing
// destinations is thread-safe... must release [the fan-out lock] before
// stopping an OutputTrack (the stop takes the destination thread's lock,
// which is a lower rank)").
func (dt *DuplicatingThread) RemoveDestination(id int) {
	dt.fanMu.Lock()
	d, ok := dt.dests[id]
	if ok {
		delete(dt.dests, id)
	}
	dt.fanMu.Unlock()

	if !ok {
		return
	}
	d.thread.Lock()
	d.thread.RemoveTrackL(d.out.ID())
	d.thread.Unlock()
}

// fanOut writes one mixed period into every attached destination. A
// destination whose ring is momentarily full queues the write rather
// than stalling the others (spec §4.7 backpressure, implemented in
// track.OutputTrack.Write).
func (dt *DuplicatingThread) fanOut(buf []byte) {
	dt.fanMu.Lock()
	targets := make([]*track.OutputTrack, 0, len(dt.dests))
	for _, d := range dt.dests {
		targets = append(targets, d.out)
	}
	dt.fanMu.Unlock()

	frames := len(buf) / (dt.channels * 2)
	for _, ot := range targets {
		ot.Write(buf, frames)
		ot.Pump()
	}
}

// flushDestinations sends the zero-frame flush signal (spec §4.7) to
// every destination on exit.
func (dt *DuplicatingThread) flushDestinations() {
	dt.fanMu.Lock()
	targets := make([]*track.OutputTrack, 0, len(dt.dests))
	for _, d := range dt.dests {
		targets = append(targets, d.out)
	}
	dt.fanMu.Unlock()

	for _, ot := range targets {
		ot.Write(nil, 0)
	}
}
