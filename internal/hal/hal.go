// Package hal defines the hardware abstraction boundary (spec §6.1):
// playback/record device streams and the top-level device object. The
// engine package only ever talks to these interfaces, never to a
// concrete driver, so MixerThread/DirectOutputThread/RecordThread are
// testable against the in-memory fake in this package without any real
// sound hardware.
package hal

import "time"

// OutputStream is a playback endpoint's hardware stream (spec §6.1).
// write blocks until the bytes are accepted by the device (or its
// buffer), the way a real ALSA/CoreAudio/WASAPI write call would.
type OutputStream interface {
	SampleRate() int
	Channels() int
	FrameSize() int
	BufferSize() int
	Latency() time.Duration

	Standby() error
	Write(buf []byte) (int, error)

	SetVolume(left, right float64) error
	SetParameters(kv map[string]string) error
	GetParameters(keys []string) map[string]string

	Close() error
}

// InputStream is a record endpoint's hardware stream, symmetric to
// OutputStream with read in place of write.
type InputStream interface {
	SampleRate() int
	Channels() int
	FrameSize() int
	BufferSize() int
	Latency() time.Duration

	Standby() error
	Read(buf []byte) (int, error)

	SetParameters(kv map[string]string) error
	GetParameters(keys []string) map[string]string

	Close() error
}

// Device is the top-level hardware object (spec §6.1): it opens output
// and input streams and controls process-wide audio policy (mode, master
// volume, mic mute, voice volume).
type Device interface {
	SetMode(mode string) error
	SetMasterVolume(v float64) error
	SetMicMute(mute bool) error
	SetVoiceVolume(v float64) error
	SetParameters(kv map[string]string) error

	OpenOutputStream(devices []string, rate, channels, format int, latency time.Duration) (OutputStream, error)
	OpenInputStream(devices []string, rate, channels, format int) (InputStream, error)
	GetInputBufferSize(rate, channels, format int) int
}
