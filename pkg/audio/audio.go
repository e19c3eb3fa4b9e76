// Package audio owns local audio I/O: microphone capture via malgo and
// remote-audio playback via oto. Both devices hand raw 16-bit little-endian
// PCM to and from the transport layer.
package audio

import (
	"fmt"
)

const (
	// DefaultSampleRate matches the opus clock used on the media track.
	DefaultSampleRate = 48000
	DefaultChannels   = 1
)

// Config describes the capture and playback format plus the voice-processing
// features requested for the send path.
//
// The processing flags are a request, not a guarantee: miniaudio exposes no
// device-level echo-cancellation, noise-suppression, or gain-control knobs,
// so the flags are honored on the encode path instead. Any of them selects
// the opus VoIP application, whose speech tuning covers noise shaping and
// gain handling. True acoustic echo cancellation needs a far-end reference
// the capture backend does not provide.
type Config struct {
	SampleRate int
	Channels   int

	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VoiceProcessing reports whether any voice-processing feature was requested.
func (c Config) VoiceProcessing() bool {
	return c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl
}

// DefaultConfig enables every voice-processing feature, mirroring what a
// browser capture with default constraints would request.
func DefaultConfig() Config {
	return Config{
		SampleRate:       DefaultSampleRate,
		Channels:         DefaultChannels,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	return c
}

// DeviceError reports a capture or playback device that could not be opened:
// missing hardware, a backend without audio support, or denied access.
// Connection setup treats it as fatal and surfaces it verbatim.
type DeviceError struct {
	Device string // "microphone" or "speaker"
	Err    error
}

func (e *DeviceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s unavailable: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
