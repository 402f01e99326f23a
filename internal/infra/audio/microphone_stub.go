//go:build !portaudio
// +build !portaudio

package audio

import (
	"errors"
	"log/slog"
)

var errNoPortAudio = errors.New("microphone source not available: rebuild with -tags portaudio")

// NewMicrophoneSource returns a source whose Start always fails when portaudio is not available.
func NewMicrophoneSource(_ string, sampleRate, frameSamples int, logger *slog.Logger) *DeviceSource {
	open := func(int, int) (Device, error) {
		return nil, errNoPortAudio
	}
	return NewDeviceSource("microphone", open, sampleRate, frameSamples, logger)
}

func ListInputDevices() ([]InputDevice, error) {
	return nil, errNoPortAudio
}
