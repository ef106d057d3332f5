package hal

import (
	"sync"
	"time"
)

// FakeDevice is an in-memory Device used by engine tests and by the
// diagnostic dump console when no real hardware is configured. Writes
// are captured rather than played, and reads replay a configurable
// buffer, so tests can assert on exactly what the engine produced.
type FakeDevice struct {
	mu      sync.Mutex
	mode    string
	master  float64
	micMute bool
	voice   float64
}

func NewFakeDevice() *FakeDevice {
	return &FakeDevice{master: 1.0, voice: 1.0}
}

func (d *FakeDevice) SetMode(mode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
	return nil
}

func (d *FakeDevice) SetMasterVolume(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.master = v
	return nil
}

func (d *FakeDevice) SetMicMute(mute bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.micMute = mute
	return nil
}

func (d *FakeDevice) SetVoiceVolume(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voice = v
	return nil
}

func (d *FakeDevice) SetParameters(kv map[string]string) error { return nil }

func (d *FakeDevice) OpenOutputStream(devices []string, rate, channels, format int, latency time.Duration) (OutputStream, error) {
	return NewFakeOutputStream(rate, channels, latency), nil
}

func (d *FakeDevice) OpenInputStream(devices []string, rate, channels, format int) (InputStream, error) {
	return NewFakeInputStream(rate, channels), nil
}

func (d *FakeDevice) GetInputBufferSize(rate, channels, format int) int {
	return rate / 100 * channels * 2 // 10ms worth of frames, matching FakeOutputStream's default period
}

// FakeOutputStream records every Write call's bytes for inspection and
// never actually blocks on real I/O, making engine tests deterministic.
type FakeOutputStream struct {
	mu       sync.Mutex
	rate     int
	channels int
	latency  time.Duration
	volL     float64
	volR     float64
	standby  bool
	writes   [][]byte
	failNext bool
	lastParams map[string]string
}

func NewFakeOutputStream(rate, channels int, latency time.Duration) *FakeOutputStream {
	return &FakeOutputStream{rate: rate, channels: channels, latency: latency, volL: 1, volR: 1}
}

func (s *FakeOutputStream) SampleRate() int    { return s.rate }
func (s *FakeOutputStream) Channels() int      { return s.channels }
func (s *FakeOutputStream) FrameSize() int     { return s.channels * 2 }
func (s *FakeOutputStream) BufferSize() int    { return s.rate / 100 * s.FrameSize() }
func (s *FakeOutputStream) Latency() time.Duration { return s.latency }

func (s *FakeOutputStream) Standby() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standby = true
	return nil
}

func (s *FakeOutputStream) Write(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standby = false
	if s.failNext {
		s.failNext = false
		return 0, errWriteFailed
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	s.writes = append(s.writes, cp)
	return len(buf), nil
}

// FailNextWrite arranges for the next Write call to return an error, so
// tests can exercise the retry-on-transient-write-failure path (spec
// §7).
func (s *FakeOutputStream) FailNextWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Writes returns every buffer accepted by Write so far, for assertions.
func (s *FakeOutputStream) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *FakeOutputStream) InStandby() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standby
}

func (s *FakeOutputStream) SetVolume(left, right float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volL, s.volR = left, right
	return nil
}

func (s *FakeOutputStream) Volume() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volL, s.volR
}

func (s *FakeOutputStream) SetParameters(kv map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastParams = kv
	return nil
}

// LastParameters returns the kv map passed to the most recent
// SetParameters call, for asserting that a caller actually forwarded
// parameters rather than discarding them.
func (s *FakeOutputStream) LastParameters() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParams
}

func (s *FakeOutputStream) GetParameters(keys []string) map[string]string { return nil }
func (s *FakeOutputStream) Close() error                                 { return nil }

// FakeInputStream replays zero-filled (silence) reads by default; tests
// can set Data to have it replay a specific capture instead.
type FakeInputStream struct {
	mu       sync.Mutex
	rate     int
	channels int
	Data     []byte
	pos      int
	failNext bool
}

func NewFakeInputStream(rate, channels int) *FakeInputStream {
	return &FakeInputStream{rate: rate, channels: channels}
}

func (s *FakeInputStream) SampleRate() int        { return s.rate }
func (s *FakeInputStream) Channels() int          { return s.channels }
func (s *FakeInputStream) FrameSize() int         { return s.channels * 2 }
func (s *FakeInputStream) BufferSize() int        { return s.rate / 100 * s.FrameSize() }
func (s *FakeInputStream) Latency() time.Duration { return 0 }

func (s *FakeInputStream) Standby() error { return nil }

func (s *FakeInputStream) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return 0, errReadFailed
	}
	if len(s.Data) == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}
	n := copy(buf, s.Data[s.pos:])
	s.pos += n
	if s.pos >= len(s.Data) {
		s.pos = 0
	}
	return n, nil
}

// FailNextRead arranges for the next Read call to return an error (spec
// §4.8: "On read error, the thread sleeps 1s and resets its input-side
// index").
func (s *FakeInputStream) FailNextRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *FakeInputStream) SetParameters(kv map[string]string) error      { return nil }
func (s *FakeInputStream) GetParameters(keys []string) map[string]string { return nil }
func (s *FakeInputStream) Close() error                                 { return nil }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const (
	errWriteFailed = fakeErr("hal: fake write failure")
	errReadFailed  = fakeErr("hal: fake read failure")
)

var (
	_ Device       = (*FakeDevice)(nil)
	_ OutputStream = (*FakeOutputStream)(nil)
	_ InputStream  = (*FakeInputStream)(nil)
)
