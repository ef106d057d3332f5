package engine

import (
	"time"

	"github.com/doismellburning/samoyed-audioserver/internal/hal"
	"github.com/doismellburning/samoyed-audioserver/internal/track"
)

// DirectOutputThread is the single-track pass-through playback loop for
// formats the software mixer cannot handle — non-PCM16 or non-stereo
// (spec §4.6). Only the first active track is used; volume is applied
// by the hardware driver rather than in software.
type DirectOutputThread struct {
	*ThreadBase

	endpoint int
	device   hal.OutputStream

	current *track.Track
	buf      []byte

	// appliedLeft/appliedRight is the volume last pushed to the
	// hardware driver. Spec §9 Open Question (c) flags that the
	// original swaps the stored and freshly computed values in an order
	// that leaves the stored value perpetually stale; this
	// implementation stores the value it actually applied. TODO: if a
	// downstream consumer relies on observing the previous (stale)
	// value, surface that here instead.
	appliedLeft, appliedRight float64
}

// NewDirectOutputThread constructs a DirectOutputThread over device.
func NewDirectOutputThread(endpoint int, device hal.OutputStream, dispatcher Dispatcher) *DirectOutputThread {
	return &DirectOutputThread{
		ThreadBase: newThreadBase(dispatcher),
		endpoint:   endpoint,
		device:     device,
		buf:        make([]byte, device.BufferSize()),
	}
}

// SetTrackL attaches the single track this thread plays, replacing any
// previous one. Caller must hold the thread lock (spec §4.9 createTrack_l
// convention).
func (d *DirectOutputThread) SetTrackL(t *track.Track) {
	d.current = t
}

// ClearTrackL detaches the current track (e.g. on stop/terminate).
func (d *DirectOutputThread) ClearTrackL() {
	d.current = nil
}

// SetVolume applies a volume change via the hardware driver's own
// setter, converting the linear [0, MaxGain] mixer gain into a
// normalized [0,1] value first (spec §4.2 "the DirectOutput path
// converts to a normalized [0,1] and calls the hardware's own volume
// setter").
func (d *DirectOutputThread) SetVolume(left, right float64) error {
	d.Lock()
	defer d.Unlock()
	normLeft := left / track.MaxGain
	normRight := right / track.MaxGain
	if err := d.device.SetVolume(normLeft, normRight); err != nil {
		return err
	}
	d.appliedLeft, d.appliedRight = normLeft, normRight
	return nil
}

// AppliedVolume reports the last volume actually pushed to the driver.
func (d *DirectOutputThread) AppliedVolume() (float64, float64) {
	d.Lock()
	defer d.Unlock()
	return d.appliedLeft, d.appliedRight
}

// Run executes the DirectOutputThread's loop: same lifecycle shape as
// MixerThread (spec §4.6 "All other lifecycle rules match §4.5") but
// with a straight copy from the single track's provider instead of a
// mix.
func (d *DirectOutputThread) Run() {
	for {
		d.drainAndDispatch()
		if d.exitRequested() {
			d.flushAndClose()
			return
		}
		d.applyPendingParameters(d.applyParamLocked)

		wrote := d.cycle()

		now := time.Now()
		if wrote {
			d.touchActivity(now)
			d.resetRecoverySleep()
		} else {
			if d.standbyDue(now) {
				d.device.Standby()
				d.enterStandby()
				d.waitForWork(time.Hour)
				continue
			}
			time.Sleep(d.nextRecoverySleep())
		}

		if d.exitRequested() {
			d.flushAndClose()
			return
		}
	}
}

// applyParamLocked applies one queued parameter change (spec §6.4) by
// forwarding it straight to the hardware driver's own setter: a direct-
// mode endpoint has no software mixer stage to absorb routing/rate
// changes itself, so the device is the only place they can land (the
// same reasoning SetVolume already follows for per-channel gain).
func (d *DirectOutputThread) applyParamLocked(kv map[string]string) {
	d.Lock()
	defer d.Unlock()
	_ = d.device.SetParameters(kv)
}

func (d *DirectOutputThread) cycle() bool {
	d.Lock()
	t := d.current
	buf := d.buf
	d.Unlock()

	if t == nil {
		return false
	}

	state := t.State()
	if state == track.Pausing {
		t.AckPaused()
		state = track.Paused
	}
	if state == track.Paused || state == track.Terminated || state == track.Stopped {
		return false
	}
	if !t.ReadyToMix() {
		if (state == track.Active || state == track.Resuming) && t.DecrementRetry(0) {
			d.Lock()
			d.current = nil
			d.Unlock()
		}
		return false
	}

	for i := range buf {
		buf[i] = 0
	}

	n, err := pullBytes(t, buf)
	if err != nil || n == 0 {
		if t.DecrementRetry(0) {
			d.Lock()
			d.current = nil
			d.Unlock()
		}
		return false
	}

	d.device.Write(buf)
	t.ResetRetries(false)
	t.AckResumed()
	return true
}

// pullBytes fetches one full device period from the provider, copying
// directly into buf (spec §4.6 "straight memcpy from the provider buffer
// into an aligned device buffer; zero-fill on short pulls").
func pullBytes(t *track.Track, buf []byte) (int, error) {
	frameSize := 4 // 16-bit stereo
	maxFrames := len(buf) / frameSize
	out, err := t.GetNextBuffer(maxFrames)
	if err != nil {
		return 0, err
	}
	n := copy(buf, out.Data)
	t.ReleaseBuffer(out.FrameCount)
	return n, nil
}

func (d *DirectOutputThread) flushAndClose() {
	d.QueueConfigEvent(ConfigEvent{Kind: OutputClosed, Endpoint: d.endpoint})
	d.drainAndDispatch()
	d.device.Close()
}
