package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"voice-chat/internal/domain"
)

type PipelineState int32

const (
	StateIdle PipelineState = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pipeline streams audio to the transcription service and answers every
// finalized utterance. Audio sending and event consumption run concurrently;
// utterances are answered one at a time in the order they were finalized.
type Pipeline struct {
	audio     AudioSource
	stt       TranscriptionService
	streamCfg domain.StreamConfig
	router    *TranscriptRouter
	agent     *ResponseAgent
	display   Display
	notifier  Notifier
	logger    *slog.Logger

	state        atomic.Int32
	shutdown     chan struct{}
	shutdownOnce sync.Once
	releaseOnce  sync.Once
}

func NewPipeline(
	audio AudioSource,
	stt TranscriptionService,
	streamCfg domain.StreamConfig,
	agent *ResponseAgent,
	display Display,
	notifier Notifier,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		audio:     audio,
		stt:       stt,
		streamCfg: streamCfg,
		router:    NewTranscriptRouter(logger, display.Partial),
		agent:     agent,
		display:   display,
		notifier:  notifier,
		logger:    logger,
		shutdown:  make(chan struct{}),
	}
}

func (p *Pipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Shutdown stops audio capture. Input is ended and the pipeline keeps
// answering until the service closes the transcript stream.
func (p *Pipeline) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Run blocks until the transcript stream ends or either activity fails. The
// audio device and the transcription session are released on every path.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("pipeline already %s", p.State())
	}
	p.logger.Info("pipeline running")
	defer p.setState(StateStopped)

	p.logger.Info("starting audio source", "source", p.audio.Name())
	if err := p.audio.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer p.releaseAudio()

	p.logger.Info("opening transcription session",
		"service", p.stt.Name(),
		"language", p.streamCfg.LanguageCode,
		"sample_rate", p.streamCfg.SampleRate,
	)
	session, err := p.stt.Open(ctx, p.streamCfg)
	if err != nil {
		return fmt.Errorf("opening transcription session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logger.Warn("closing transcription session", "error", err)
		}
	}()

	p.logger.Info("listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.sendAudio(gctx, session)
	})
	g.Go(func() error {
		return p.consumeEvents(gctx, session)
	})

	return g.Wait()
}

func (p *Pipeline) sendAudio(ctx context.Context, session TranscriptionSession) error {
	frames := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.shutdown:
			return p.endInput(ctx, session, frames, "shutdown requested")
		default:
		}

		frame, err := p.audio.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrSourceClosed) || errors.Is(err, io.EOF) {
				return p.endInput(ctx, session, frames, "audio source exhausted")
			}
			return fmt.Errorf("reading audio: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := session.SendFrame(ctx, frame); err != nil {
			return fmt.Errorf("sending audio frame %d: %w", frames, err)
		}
		frames++
	}
}

func (p *Pipeline) endInput(ctx context.Context, session TranscriptionSession, frames int, reason string) error {
	p.logger.Info("ending audio input", "reason", reason, "frames", frames)
	p.releaseAudio()

	if err := session.EndInput(ctx); err != nil {
		return fmt.Errorf("ending audio input: %w", err)
	}

	if p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		p.logger.Info("pipeline draining")
	}
	return nil
}

func (p *Pipeline) consumeEvents(ctx context.Context, session TranscriptionSession) error {
	events := session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return p.streamEnded(session)
			}
			for _, utterance := range p.router.Route(event) {
				p.handleUtterance(ctx, utterance)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
	}
}

func (p *Pipeline) streamEnded(session TranscriptionSession) error {
	if err := session.Err(); err != nil {
		return fmt.Errorf("receiving transcripts: %w", err)
	}
	if session.State() != domain.SessionEnded {
		return fmt.Errorf("receiving transcripts: %w: stream closed before end of input", domain.ErrStreaming)
	}
	p.logger.Info("transcript stream ended")
	return nil
}

func (p *Pipeline) handleUtterance(ctx context.Context, utterance domain.Utterance) {
	p.display.Utterance(utterance.Text)

	response, err := p.agent.Respond(ctx, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.display.Failure(err)
		return
	}

	p.display.Response(response)

	message := fmt.Sprintf("You: %s\nBot: %s", utterance.Text, response)
	if err := p.notifier.Notify(ctx, message); err != nil {
		p.logger.Error("notifying turn", "error", err)
	}
}

func (p *Pipeline) releaseAudio() {
	p.releaseOnce.Do(func() {
		if err := p.audio.Stop(); err != nil {
			p.logger.Warn("stopping audio source", "error", err)
			return
		}
		p.logger.Info("audio device released", "source", p.audio.Name())
	})
}

func (p *Pipeline) setState(s PipelineState) {
	prev := PipelineState(p.state.Swap(int32(s)))
	if prev != s {
		p.logger.Info("pipeline state", "from", prev, "to", s)
	}
}
