package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voice-chat/internal/domain"
)

// FileSource replays a recorded WAV or raw PCM file as capture frames. The
// last frame is zero-padded and io.EOF follows it.
type FileSource struct {
	path         string
	sampleRate   int
	frameSamples int
	realtime     bool
	logger       *slog.Logger

	mu      sync.Mutex
	samples domain.AudioFrame
	pos     int
	started bool
	stopped bool
	ticker  *time.Ticker
}

func NewFileSource(path string, sampleRate, frameSamples int, realtime bool, logger *slog.Logger) *FileSource {
	return &FileSource{
		path:         path,
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
		realtime:     realtime,
		logger:       logger,
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started && !f.stopped {
		return fmt.Errorf("%w: %s already in use", domain.ErrDevice, f.path)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading audio file: %w: %w", domain.ErrDevice, err)
	}

	pcm := data
	if isWAV(data) {
		var format wavFormat
		pcm, format, err = decodeWAV(data)
		if err != nil {
			return fmt.Errorf("decoding %s: %w: %w", filepath.Base(f.path), domain.ErrDevice, err)
		}
		if format.AudioFormat != 1 || format.BitsPerSample != 16 || format.Channels != 1 {
			return fmt.Errorf("%w: %s must be 16-bit mono PCM, got format=%d bits=%d channels=%d",
				domain.ErrDevice, filepath.Base(f.path), format.AudioFormat, format.BitsPerSample, format.Channels)
		}
		if int(format.SampleRate) != f.sampleRate {
			f.logger.Warn("audio file sample rate differs from stream rate",
				"file", f.path,
				"fileRate", format.SampleRate,
				"streamRate", f.sampleRate,
			)
		}
	}

	f.samples = domain.FrameFromBytes(pcm)
	f.pos = 0
	f.started = true
	f.stopped = false
	if f.realtime {
		f.ticker = time.NewTicker(frameDuration(f.frameSamples, f.sampleRate))
	}

	f.logger.Info("audio file loaded",
		"file", f.path,
		"samples", len(f.samples),
		"duration", time.Duration(len(f.samples))*time.Second/time.Duration(f.sampleRate),
	)
	return nil
}

func (f *FileSource) NextFrame(ctx context.Context) (domain.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	ticker := f.ticker
	closed := f.stopped || !f.started
	f.mu.Unlock()

	if closed {
		return nil, domain.ErrSourceClosed
	}

	if ticker != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return nil, domain.ErrSourceClosed
	}
	if f.pos >= len(f.samples) {
		return nil, io.EOF
	}

	frame := domain.NewSilenceFrame(f.frameSamples)
	n := copy(frame, f.samples[f.pos:])
	f.pos += n
	return frame, nil
}

func (f *FileSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ticker != nil {
		f.ticker.Stop()
		f.ticker = nil
	}
	f.stopped = true
	f.samples = nil
	return nil
}

func frameDuration(frameSamples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = domain.SampleRate
	}
	return time.Duration(frameSamples) * time.Second / time.Duration(sampleRate)
}
