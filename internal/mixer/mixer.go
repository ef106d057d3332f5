// Package mixer implements the Output Mix Pipeline contract (spec §4.3):
// an opaque mixer parameterised by device frame count and sample rate
// that pulls from each enabled track's BufferProvider, resamples, mixes,
// dithers, clamps, and always produces exactly frameCount interleaved
// stereo int16 frames — never blocking on I/O.
package mixer

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/doismellburning/samoyed-audioserver/internal/aerr"
	"github.com/doismellburning/samoyed-audioserver/internal/dsp"
	"github.com/doismellburning/samoyed-audioserver/internal/provider"
)

const outChannels = 2

// Params configures a registered track's contribution to the mix (spec
// §4.3 setParameter: format, channel count, input sample rate, left/right
// volume with or without ramp).
type Params struct {
	Channels  int
	InRate    int
	LeftVol   float64
	RightVol  float64
	Ramp      bool
}

type trackSlot struct {
	provider provider.BufferProvider
	enabled  bool
	params   Params
	resamp   *dsp.Resampler

	// curLeft/curRight track the ramp's current position; they converge
	// to params.LeftVol/RightVol over rampSteps cycles when Ramp is set
	// (spec §4.2 "applies a volume ramp to avoid zipper noise").
	curLeft, curRight float64
}

const rampSteps = 8

// Mixer is one Output Mix Pipeline instance, one per MixerThread/
// DuplicatingThread endpoint.
type Mixer struct {
	mu sync.Mutex

	frameCount int
	sampleRate int

	tracks map[int]*trackSlot
	nextID int

	acc     []int32
	scratch []int16
	rng     *rand.Rand
}

// New constructs a Mixer for a device of the given frame count and
// sample rate (spec §4.3: "parameterised by (device frame count, device
// sample rate)").
func New(frameCount, sampleRate int) *Mixer {
	return &Mixer{
		frameCount: frameCount,
		sampleRate: sampleRate,
		tracks:     make(map[int]*trackSlot),
		acc:        make([]int32, frameCount*outChannels),
		scratch:    make([]int16, frameCount*outChannels*2), // headroom for upsampling passes
		rng:        rand.New(rand.NewSource(1)),
	}
}

// AllocateTrackName reserves a mixer-internal track id (spec §4.3
// allocateTrackName).
func (m *Mixer) AllocateTrackName() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.tracks[id] = &trackSlot{params: Params{Channels: outChannels, InRate: m.sampleRate, LeftVol: 1, RightVol: 1}}
	return id, nil
}

// Release frees a previously allocated track name.
func (m *Mixer) Release(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, id)
}

func (m *Mixer) slot(id int) (*trackSlot, error) {
	t, ok := m.tracks[id]
	if !ok {
		return nil, aerr.New(aerr.BadIndex, fmt.Sprintf("mixer: unknown track %d", id))
	}
	return t, nil
}

// Enable marks a track eligible for mixing on the next process() call.
func (m *Mixer) Enable(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.slot(id)
	if err != nil {
		return err
	}
	t.enabled = true
	return nil
}

// Disable removes a track from the mix without releasing its name.
func (m *Mixer) Disable(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.slot(id)
	if err != nil {
		return err
	}
	t.enabled = false
	return nil
}

// SetBufferProvider attaches the pull source for a track (spec §4.3
// setBufferProvider); obeys the §4.4 contract.
func (m *Mixer) SetBufferProvider(id int, p provider.BufferProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.slot(id)
	if err != nil {
		return err
	}
	t.provider = p
	return nil
}

// SetParameter updates format/channel/rate/volume configuration for a
// track (spec §4.3 setParameter). A rate or channel change rebuilds the
// track's resampler.
func (m *Mixer) SetParameter(id int, p Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.slot(id)
	if err != nil {
		return err
	}

	rebuildResampler := t.resamp == nil || p.InRate != t.params.InRate || p.Channels != t.params.Channels
	t.params = p

	if rebuildResampler {
		t.resamp = dsp.NewResampler(p.InRate, m.sampleRate, p.Channels)
	}

	if !p.Ramp {
		t.curLeft, t.curRight = p.LeftVol, p.RightVol
	}
	return nil
}

// Process pulls from every enabled track's provider, resamples, mixes,
// dithers, clamps, and writes exactly frameCount interleaved stereo int16
// frames into out (spec §4.3 process()). out must be at least
// frameCount*2 int16s. Process always terminates and never blocks on I/O:
// a provider returning a short or empty buffer contributes silence for
// the remainder of its allotment this cycle (spec §4.3 error policy).
func (m *Mixer) Process(out []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.acc {
		m.acc[i] = 0
	}

	mixed := false
	for _, t := range m.tracks {
		if !t.enabled || t.provider == nil {
			continue
		}
		m.mixOneLocked(t)
		m.advanceRampLocked(t)
		mixed = true
	}

	if !mixed {
		silence := out[:m.frameCount*outChannels]
		for i := range silence {
			silence[i] = 0
		}
		return
	}

	dsp.DitherAndClamp(out[:m.frameCount*outChannels], m.acc, m.rng)
}

func (m *Mixer) mixOneLocked(t *trackSlot) {
	ch := t.params.Channels
	if ch <= 0 {
		ch = outChannels
	}

	needInFrames := m.frameCount
	if t.resamp != nil && t.resamp.Ratio() != 1 {
		needInFrames = int(float64(m.frameCount)*t.resamp.Ratio()) + 2
	}

	buf, err := t.provider.GetNextBuffer(needInFrames)
	framesGot := 0
	var raw []int16
	if err == nil && buf.FrameCount > 0 {
		framesGot = buf.FrameCount
		raw = bytesToInt16(buf.Data, framesGot*ch)
	}

	resampled := m.scratch[:m.frameCount*ch]
	outFrames := 0
	if framesGot > 0 {
		if t.resamp != nil {
			outFrames = t.resamp.Process(raw, resampled)
		} else {
			n := framesGot
			if n > m.frameCount {
				n = m.frameCount
			}
			copy(resampled[:n*ch], raw[:n*ch])
			outFrames = n
		}
	}

	if framesGot > 0 {
		t.provider.ReleaseBuffer(framesGot)
	}

	stereo := resampled[:outFrames*ch]
	if ch == 1 {
		wide := make([]int16, outFrames*outChannels)
		dsp.DuplicateMonoToStereo(wide, stereo)
		stereo = wide
	}

	dsp.MixAccumulate(m.acc[:outFrames*outChannels], stereo, outChannels, t.curLeft, t.curRight)
}

func (m *Mixer) advanceRampLocked(t *trackSlot) {
	if t.curLeft == t.params.LeftVol && t.curRight == t.params.RightVol {
		return
	}
	t.curLeft += (t.params.LeftVol - t.curLeft) / rampSteps
	t.curRight += (t.params.RightVol - t.curRight) / rampSteps
	if absf(t.curLeft-t.params.LeftVol) < 1e-4 {
		t.curLeft = t.params.LeftVol
	}
	if absf(t.curRight-t.params.RightVol) < 1e-4 {
		t.curRight = t.params.RightVol
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// bytesToInt16 reinterprets a native-endian byte slice (spec §6.3 "PCM is
// native-endian signed 16-bit") as up to n int16 samples.
func bytesToInt16(b []byte, n int) []int16 {
	max := len(b) / 2
	if n > max {
		n = max
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}
