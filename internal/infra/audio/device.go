package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"voice-chat/internal/domain"
)

// Device is an opened capture device delivering fixed-size reads. Close may
// be called while a Read is blocked and must make that Read return.
type Device interface {
	Read(samples []int16) error
	Close() error
}

type DeviceOpener func(sampleRate, frameSamples int) (Device, error)

// DeviceSource turns a capture device into an endless frame sequence. Failed
// reads yield a silent frame so the outbound stream keeps its cadence. The
// device is held from Start until Stop.
type DeviceSource struct {
	name         string
	open         DeviceOpener
	sampleRate   int
	frameSamples int
	logger       *slog.Logger

	mu         sync.Mutex
	device     Device
	stopped    bool
	readErrors int
}

func NewDeviceSource(name string, open DeviceOpener, sampleRate, frameSamples int, logger *slog.Logger) *DeviceSource {
	return &DeviceSource{
		name:         name,
		open:         open,
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
		logger:       logger,
	}
}

func (d *DeviceSource) Name() string {
	return d.name
}

func (d *DeviceSource) Start(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return fmt.Errorf("%w: %s already in use", domain.ErrDevice, d.name)
	}

	device, err := d.open(d.sampleRate, d.frameSamples)
	if err != nil {
		return fmt.Errorf("opening %s: %w: %w", d.name, domain.ErrDevice, err)
	}

	d.device = device
	d.stopped = false
	d.readErrors = 0
	d.logger.Info("capture device opened",
		"device", d.name,
		"sampleRate", d.sampleRate,
		"frameSamples", d.frameSamples,
	)
	return nil
}

// NextFrame blocks for one device read. The read runs outside the lock so
// Stop can close the device underneath it.
func (d *DeviceSource) NextFrame(ctx context.Context) (domain.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	device, stopped := d.device, d.stopped
	d.mu.Unlock()

	if stopped || device == nil {
		return nil, domain.ErrSourceClosed
	}

	frame := make(domain.AudioFrame, d.frameSamples)
	readErr := device.Read(frame)

	d.mu.Lock()
	stopped = d.stopped || d.device != device
	if readErr != nil && !stopped {
		d.readErrors++
	}
	failures := d.readErrors
	d.mu.Unlock()

	if stopped {
		return nil, domain.ErrSourceClosed
	}
	if readErr != nil {
		d.logger.Debug("device read failed, substituting silence",
			"device", d.name,
			"error", readErr,
			"failures", failures,
		)
		return domain.NewSilenceFrame(d.frameSamples), nil
	}

	return frame, nil
}

func (d *DeviceSource) Stop() error {
	d.mu.Lock()
	device := d.device
	d.device = nil
	d.stopped = true
	readErrors := d.readErrors
	d.mu.Unlock()

	if device == nil {
		return nil
	}

	if err := device.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", d.name, err)
	}

	d.logger.Info("capture device closed", "device", d.name, "readErrors", readErrors)
	return nil
}
