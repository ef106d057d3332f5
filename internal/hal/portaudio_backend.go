// Real device backend: completes the teacher's declared-but-never-wired
// github.com/gordonklaus/portaudio dependency (SPEC_FULL.md §C), taking
// over from the legacy cgo OSS/ALSA path in the teacher's src/audio.go.
// The portaudio-go binding binds a fixed Go slice to the stream at open
// time and blocks the calling goroutine inside Write/Read until that
// slice has been fully transferred — exactly the "blocking write/read
// byte sink/source" contract spec §1/§6.1 asks the hardware abstraction
// to provide.
package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// portaudioDevice is the top-level hal.Device backed by the host's
// default portaudio devices. One process-wide Initialize/Terminate pair
// is kept here rather than in package init, per spec §9's "no hidden
// static initialization order."
type portaudioDevice struct {
	mu         sync.Mutex
	masterVol  float64
	micMuted   bool
	voiceVol   float64
	mode       string
}

// NewPortaudioDevice initializes the portaudio library and returns a
// hal.Device backed by it. Callers must call Close when done to release
// the library (spec §6.1's top-level device object).
func NewPortaudioDevice() (*portaudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("hal: portaudio init: %w", err)
	}
	return &portaudioDevice{masterVol: 1.0, voiceVol: 1.0}, nil
}

// Close terminates the portaudio library. Safe to call once all streams
// opened from this device have themselves been closed.
func (d *portaudioDevice) Close() error {
	return portaudio.Terminate()
}

func (d *portaudioDevice) SetMode(mode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
	return nil
}

func (d *portaudioDevice) SetMasterVolume(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.masterVol = v
	return nil
}

func (d *portaudioDevice) SetMicMute(mute bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.micMuted = mute
	return nil
}

func (d *portaudioDevice) SetVoiceVolume(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voiceVol = v
	return nil
}

func (d *portaudioDevice) SetParameters(kv map[string]string) error { return nil }

// GetInputBufferSize mirrors spec §6.1's AudioFlinger-style sizing
// query: the size in bytes of one 1024-frame buffer, the default this
// backend opens streams with, for the given channel count and format;
// rate does not affect it (portaudio itself picks the true period
// internally).
func (d *portaudioDevice) GetInputBufferSize(rate, channels, format int) int {
	return defaultFramesPerBuffer * channels * bytesPerSample(format)
}

const defaultFramesPerBuffer = 1024

func bytesPerSample(format int) int {
	// Non-goals (spec §1) bound format to 16-bit linear PCM; 8-bit
	// inputs are up-converted by the client before writing (spec §3).
	return 2
}

// OpenOutputStream opens a playback stream on the named devices (only the
// first is honoured; portaudio's default-device API doesn't support
// multi-device routing, same simplification the teacher's audio.go makes
// for "PLUGHW" device strings).
func (d *portaudioDevice) OpenOutputStream(devices []string, rate, channels, format int, latency time.Duration) (OutputStream, error) {
	if rate <= 0 {
		rate = 44100
	}
	if channels <= 0 {
		channels = 2
	}

	buf := make([]int16, defaultFramesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(rate), defaultFramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("hal: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("hal: start output stream: %w", err)
	}

	return &portaudioOutputStream{
		device:     d,
		stream:     stream,
		buf:        buf,
		sampleRate: rate,
		channels:   channels,
		latency:    latency,
	}, nil
}

// OpenInputStream opens a record stream symmetrically.
func (d *portaudioDevice) OpenInputStream(devices []string, rate, channels, format int) (InputStream, error) {
	if rate <= 0 {
		rate = 44100
	}
	if channels <= 0 {
		channels = 1
	}

	buf := make([]int16, defaultFramesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(rate), defaultFramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("hal: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("hal: start input stream: %w", err)
	}

	return &portaudioInputStream{
		stream:     stream,
		buf:        buf,
		sampleRate: rate,
		channels:   channels,
	}, nil
}

type portaudioOutputStream struct {
	device *portaudioDevice
	stream *portaudio.Stream

	mu  sync.Mutex
	buf []int16

	sampleRate int
	channels   int
	latency    time.Duration

	left, right float64
}

func (s *portaudioOutputStream) SampleRate() int        { return s.sampleRate }
func (s *portaudioOutputStream) Channels() int           { return s.channels }
func (s *portaudioOutputStream) FrameSize() int          { return s.channels * 2 }
func (s *portaudioOutputStream) BufferSize() int         { return defaultFramesPerBuffer * s.FrameSize() }
func (s *portaudioOutputStream) Latency() time.Duration  { return s.latency }

func (s *portaudioOutputStream) Standby() error { return nil }

// Write copies buf (native-endian int16 PCM, spec §6.3) into the bound
// portaudio buffer and blocks until portaudio has consumed it — the
// "blocking write byte sink" spec §6.1 asks for. A short buf is zero-
// padded to a full period, matching MixerThread's and DirectOutputThread's
// own zero-fill-on-short-pull behaviour (spec §4.3/§4.6) at the HAL
// boundary too.
func (s *portaudioOutputStream) Write(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.buf)
	for i := 0; i < n; i++ {
		lo := i * 2
		if lo+1 < len(buf) {
			s.buf[i] = int16(uint16(buf[lo]) | uint16(buf[lo+1])<<8)
		} else {
			s.buf[i] = 0
		}
	}

	if err := s.stream.Write(); err != nil {
		return 0, err
	}
	written := len(buf)
	if written > n*2 {
		written = n * 2
	}
	return written, nil
}

func (s *portaudioOutputStream) SetVolume(left, right float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left, s.right = left, right
	return nil
}

func (s *portaudioOutputStream) SetParameters(kv map[string]string) error { return nil }
func (s *portaudioOutputStream) GetParameters(keys []string) map[string]string {
	return map[string]string{}
}

func (s *portaudioOutputStream) Close() error { return s.stream.Close() }

type portaudioInputStream struct {
	stream *portaudio.Stream

	mu  sync.Mutex
	buf []int16

	sampleRate int
	channels   int
}

func (s *portaudioInputStream) SampleRate() int       { return s.sampleRate }
func (s *portaudioInputStream) Channels() int          { return s.channels }
func (s *portaudioInputStream) FrameSize() int         { return s.channels * 2 }
func (s *portaudioInputStream) BufferSize() int        { return defaultFramesPerBuffer * s.FrameSize() }
func (s *portaudioInputStream) Latency() time.Duration { return 0 }

func (s *portaudioInputStream) Standby() error { return nil }

// Read blocks for one full period of capture and copies it, byte-
// interleaved, into buf (spec §6.1's blocking "read byte source").
func (s *portaudioInputStream) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stream.Read(); err != nil {
		return 0, err
	}

	n := 0
	for i, sample := range s.buf {
		lo := i * 2
		if lo+1 >= len(buf) {
			break
		}
		buf[lo] = byte(uint16(sample))
		buf[lo+1] = byte(uint16(sample) >> 8)
		n = lo + 2
	}
	return n, nil
}

func (s *portaudioInputStream) SetParameters(kv map[string]string) error { return nil }
func (s *portaudioInputStream) GetParameters(keys []string) map[string]string {
	return map[string]string{}
}

func (s *portaudioInputStream) Close() error { return s.stream.Close() }
