//go:build portaudio
// +build portaudio

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

var errMicrophoneClosed = errors.New("microphone closed")

func NewMicrophoneSource(deviceName string, sampleRate, frameSamples int, logger *slog.Logger) *DeviceSource {
	open := func(rate, samples int) (Device, error) {
		mic, err := openMicrophone(deviceName, rate, samples)
		if err != nil {
			return nil, err
		}
		return mic, nil
	}
	return NewDeviceSource("microphone", open, sampleRate, frameSamples, logger)
}

type microphone struct {
	stream *portaudio.Stream
	buffer []int16

	closing atomic.Bool
	readMu  sync.Mutex
	closed  bool
}

func openMicrophone(deviceName string, sampleRate, frameSamples int) (*microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	buffer := make([]int16, frameSamples)

	stream, err := openInputStream(deviceName, sampleRate, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	return &microphone{stream: stream, buffer: buffer}, nil
}

func openInputStream(deviceName string, sampleRate int, buffer []int16) (*portaudio.Stream, error) {
	if deviceName == "" {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buffer), buffer)
		if err != nil {
			return nil, fmt.Errorf("opening default stream: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	for _, d := range devices {
		if d.Name != deviceName || d.MaxInputChannels < 1 {
			continue
		}
		params := portaudio.LowLatencyParameters(d, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(sampleRate)
		params.FramesPerBuffer = len(buffer)

		stream, err := portaudio.OpenStream(params, buffer)
		if err != nil {
			return nil, fmt.Errorf("opening stream on %q: %w", deviceName, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("input device not found: %s", deviceName)
}

// Read blocks until one buffer of samples is captured. Input overflow still
// delivers the captured samples.
func (m *microphone) Read(samples []int16) error {
	m.readMu.Lock()
	defer m.readMu.Unlock()

	if m.closed {
		return errMicrophoneClosed
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return fmt.Errorf("reading from stream: %w", err)
	}
	copy(samples, m.buffer)
	return nil
}

// Close aborts the stream first so a blocked Read returns, then releases the
// stream once no Read is using it.
func (m *microphone) Close() error {
	if m.closing.Swap(true) {
		return nil
	}
	abortErr := m.stream.Abort()

	m.readMu.Lock()
	defer m.readMu.Unlock()
	m.closed = true

	closeErr := m.stream.Close()
	termErr := portaudio.Terminate()
	return errors.Join(abortErr, closeErr, termErr)
}

func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var defaultName string
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = d.Name
	}

	var inputs []InputDevice
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		inputs = append(inputs, InputDevice{
			Name:              d.Name,
			Channels:          d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         d.Name == defaultName,
		})
	}
	return inputs, nil
}
