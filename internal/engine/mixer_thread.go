package engine

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/mixer"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// trackEntry is one playback track attached to a MixerThread's active
// list, plus the thread-local bookkeeping the mix loop needs each cycle.
type trackEntry struct {
	tr       *track.Track
	mixerID  int
	inRate   int
	channels int
}

// Sink is the narrow surface MixerThread's loop needs from its output
// side: a blocking write of one mixed period's bytes, standby, and
// close. hal.OutputStream satisfies it directly; DuplicatingThread
// supplies a Sink that fans out into OutputTracks instead of a real
// device (spec §4.7: "A MixerThread whose output, instead of going to a
// device, is write()-ed into one or more OutputTracks").
type Sink interface {
	Write(buf []byte) (int, error)
	Standby() error
	Close() error
}

// MixerThread is the real-time playback loop for a mixed output endpoint
// (spec §4.5, §2 item 5).
type MixerThread struct {
	*ThreadBase

	endpoint   int
	device     Sink
	mix        *mixer.Mixer
	frameCount int
	sampleRate int
	channels   int

	tracks map[int]*trackEntry
	outBuf []int16
	devBuf []byte

	log *log.Logger

	masterMute bool
	statsDelayedWrites int

	ampGate AmpControl
	wasStandby bool
}

// AmpControl gates amplifier/headphone-switch power around standby
// transitions (spec §4.5 step 6). internal/hal.AmpGate implements it; a
// nil AmpControl (the default) makes the gating a no-op for endpoints
// with no amp-power GPIO line attached.
type AmpControl interface {
	Assert() error
	Deassert() error
}

// SetAmpGate attaches amp-power gating to this endpoint's standby
// transitions. Call before Run.
func (m *MixerThread) SetAmpGate(gate AmpControl) {
	m.ampGate = gate
}

// NewMixerThread constructs a MixerThread bound to device, with its
// mixer sized to the device's own frame count and sample rate (spec
// §4.3: "parameterised by (device frame count, device sample rate)").
func NewMixerThread(endpoint int, device hal.OutputStream, dispatcher Dispatcher, logger *log.Logger) *MixerThread {
	frameCount := device.BufferSize() / device.FrameSize()
	if frameCount <= 0 {
		frameCount = 256
	}
	if logger != nil {
		logger = logger.With("endpoint", endpoint)
	}
	m := &MixerThread{
		ThreadBase: newThreadBase(dispatcher),
		endpoint:   endpoint,
		device:     device,
		mix:        mixer.New(frameCount, device.SampleRate()),
		frameCount: frameCount,
		sampleRate: device.SampleRate(),
		channels:   2,
		tracks:     make(map[int]*trackEntry),
		outBuf:     make([]int16, frameCount*2),
		devBuf:     make([]byte, frameCount*2*2),
		log:        logger,
	}
	return m
}

// newMixerThreadWithSink builds a MixerThread's mixing state without a
// concrete hal device attached yet — used by DuplicatingThread, whose
// Sink is a fan-out into OutputTracks rather than a hardware stream
// (spec §4.7). The caller is responsible for setting m.device afterward.
func newMixerThreadWithSink(endpoint, frameCount, sampleRate int, dispatcher Dispatcher) *MixerThread {
	return &MixerThread{
		ThreadBase: newThreadBase(dispatcher),
		endpoint:   endpoint,
		mix:        mixer.New(frameCount, sampleRate),
		frameCount: frameCount,
		sampleRate: sampleRate,
		channels:   2,
		tracks:     make(map[int]*trackEntry),
		outBuf:     make([]int16, frameCount*2),
		devBuf:     make([]byte, frameCount*2*2),
	}
}

// CreateTrackL registers a new track the thread owns. Unlike the literal
// spec §4.2 wording (insertion happens at start()), tracks are tracked
// here from creation onward and mixCycle's readiness/pause/terminal
// checks gate which of them actually contribute to a cycle — the
// observable behaviour (nothing mixed before Start, nothing mixed while
// paused, eviction on sustained non-readiness) matches §4.2/§8, it's just
// one map instead of a separate owned-vs-active distinction.
//
// attaches it to the mixer. Named with the teacher/spec "_l" convention
// (spec §4.9 createTrack_l): the caller must already hold the thread
// lock (having taken the server lock first, per the rank order in §5).
func (m *MixerThread) CreateTrackL(tr *track.Track, streamType track.StreamType, inRate, channels int) (int, error) {
	id, err := m.mix.AllocateTrackName()
	if err != nil {
		return 0, err
	}
	if err := m.mix.SetBufferProvider(id, tr); err != nil {
		m.mix.Release(id)
		return 0, err
	}
	if err := m.mix.SetParameter(id, mixer.Params{Channels: channels, InRate: inRate, LeftVol: 1, RightVol: 1}); err != nil {
		m.mix.Release(id)
		return 0, err
	}
	m.tracks[tr.ID()] = &trackEntry{tr: tr, mixerID: id, inRate: inRate, channels: channels}
	return id, nil
}

// TrackCount reports how many tracks are currently attached, taking the
// thread lock itself so callers outside the thread (spec §5: the server
// core, never holding this thread's lock already) can check it before
// queuing a parameter change (spec §6.4: frame_count is rejected with
// INVALID_OPERATION if tracks are open).
func (m *MixerThread) TrackCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.tracks)
}

// RemoveTrackL detaches a track from the active list and releases its
// mixer slot. Caller must hold the thread lock.
func (m *MixerThread) RemoveTrackL(trackID int) {
	e, ok := m.tracks[trackID]
	if !ok {
		return
	}
	m.mix.Release(e.mixerID)
	delete(m.tracks, trackID)
}

// Run executes the MixerThread's loop (spec §4.5 steps 1-6) until
// RequestExit is called. Intended to run on its own goroutine.
func (m *MixerThread) Run() {
	for {
		m.drainAndDispatch()

		if m.exitRequested() {
			m.flushAndClose()
			return
		}

		m.applyPendingParameters(m.applyParamLocked)

		anyEnabled, delayed := m.mixCycle()

		now := time.Now()
		if anyEnabled {
			m.touchActivity(now)
			m.resetRecoverySleep()
			if m.wasStandby {
				m.wasStandby = false
				if m.ampGate != nil {
					if err := m.ampGate.Assert(); err != nil && m.log != nil {
						m.log.Warn("amp gate assert failed", "endpoint", m.endpoint, "error", err)
					}
				}
			}
			if delayed && m.log != nil {
				m.log.Warn("delayed write", "endpoint", m.endpoint)
			}
		} else {
			if m.standbyDue(now) {
				m.device.Standby()
				m.enterStandby()
				m.wasStandby = true
				if m.ampGate != nil {
					if err := m.ampGate.Deassert(); err != nil && m.log != nil {
						m.log.Warn("amp gate deassert failed", "endpoint", m.endpoint, "error", err)
					}
				}
				m.waitForWork(time.Hour)
				continue
			}
			time.Sleep(m.nextRecoverySleep())
		}

		if m.exitRequested() {
			m.flushAndClose()
			return
		}
	}
}

// applyParamLocked applies one queued global parameter change (spec §6.4
// keys: sampling_rate, format, channels, frame_count, routing) under the
// thread lock, rebuilding the mixer if frame shape changed (spec §4.5
// step 2).
func (m *MixerThread) applyParamLocked(kv map[string]string) {
	m.Lock()
	defer m.Unlock()
	// Only a frame_count change rebuilds the mixer; the other keys are
	// not applied here. Each track's own rate and channel count are
	// programmed per-track via SetParameter on its mixer slot, since the
	// mixer's own output rate is fixed to the device's rate.
	rebuild := false
	if fc, ok := kv["frame_count"]; ok {
		if n := parseIntOr(fc, m.frameCount); n != m.frameCount {
			m.frameCount = n
			rebuild = true
		}
	}
	if rebuild {
		m.mix = mixer.New(m.frameCount, m.sampleRate)
		m.outBuf = make([]int16, m.frameCount*2)
		m.devBuf = make([]byte, m.frameCount*2*2)
		m.tracks = make(map[int]*trackEntry)
	}
}

// mixCycle implements spec §4.5 step 3-4: walk the active list, program
// the mixer, and — if anything is enabled — call process() and write to
// the device. Returns whether any track was enabled and whether the
// write exceeded the delayed-write threshold.
func (m *MixerThread) mixCycle() (anyEnabled bool, delayed bool) {
	m.Lock()
	for id, e := range m.tracks {
		state := e.tr.State()
		if state == track.Pausing {
			// Thread observes PAUSING during mix preparation, emits
			// silence for the track, and advances it to PAUSED (spec
			// §4.2).
			e.tr.AckPaused()
			state = track.Paused
		}

		ready := e.tr.ReadyToMix()
		paused := state == track.Paused
		terminal := state == track.Terminated || state == track.Stopped
		enable := ready && !paused && !terminal && !e.tr.Muted() && !m.masterMute

		if terminal {
			delete(m.tracks, id)
			m.mix.Release(e.mixerID)
			continue
		}

		if enable {
			e.tr.MarkFilled()
			ramp := e.tr.FillStatus() != track.FillActive
			l, r := e.tr.Volume()
			m.mix.SetParameter(e.mixerID, mixer.Params{Channels: e.channels, InRate: e.inRate, LeftVol: l, RightVol: r, Ramp: ramp})
			e.tr.MarkActive()
			m.mix.Enable(e.mixerID)
			e.tr.ResetRetries(false)
			e.tr.AckResumed()
			anyEnabled = true
		} else {
			m.mix.Disable(e.mixerID)
			if !ready && (e.tr.State() == track.Active || e.tr.State() == track.Resuming) {
				if e.tr.DecrementRetry(0) {
					delete(m.tracks, id)
					m.mix.Release(e.mixerID)
				}
			}
		}
	}
	mix := m.mix
	out := m.outBuf
	dev := m.devBuf
	m.Unlock()

	if !anyEnabled {
		return false, false
	}

	mix.Process(out)
	int16ToBytes(dev, out)

	start := time.Now()
	m.device.Write(dev)
	elapsed := time.Since(start)
	threshold := time.Duration(2*int64(time.Second)) * time.Duration(m.frameCount) / time.Duration(m.sampleRate)
	delayed = elapsed > threshold
	if delayed {
		m.Lock()
		m.statsDelayedWrites++
		m.Unlock()
	}

	return true, delayed
}

// FrameCount reports the mixer's current device-period frame count, for
// callers (e.g. internal/server sizing a DuplicatingThread) that need to
// match it without reaching into the mixer itself.
func (m *MixerThread) FrameCount() int {
	m.Lock()
	defer m.Unlock()
	return m.frameCount
}

// DelayedWriteCount reports how many device writes exceeded the
// 2*frameCount/sampleRate threshold (spec §4.5 step 4), for diagnostics.
func (m *MixerThread) DelayedWriteCount() int {
	m.Lock()
	defer m.Unlock()
	return m.statsDelayedWrites
}

// SetMasterMute is the one-shot silent-mode policy hook (spec §4.5
// "Silent-mode property").
func (m *MixerThread) SetMasterMute() {
	m.Lock()
	m.masterMute = true
	m.Unlock()
}

func (m *MixerThread) flushAndClose() {
	m.QueueConfigEvent(ConfigEvent{Kind: OutputClosed, Endpoint: m.endpoint})
	m.drainAndDispatch()
	m.device.Close()
}

func int16ToBytes(dst []byte, src []int16) {
	for i, s := range src {
		dst[2*i] = byte(uint16(s))
		dst[2*i+1] = byte(uint16(s) >> 8)
	}
}

func parseIntOr(s string, fallback int) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}
