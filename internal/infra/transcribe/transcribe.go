package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"

	"voice-chat/internal/application"
	"voice-chat/internal/domain"
	"voice-chat/internal/infra"
)

const eventBuffer = 64

// eventStream is the part of the SDK's bidirectional transcription stream
// a session drives.
type eventStream interface {
	Send(ctx context.Context, event types.AudioStream) error
	Events() <-chan types.TranscriptResultStream
	Close() error
	Err() error
}

type startFunc func(ctx context.Context, cfg domain.StreamConfig) (eventStream, func() error, error)

// Service opens Amazon Transcribe streaming sessions.
type Service struct {
	start  startFunc
	retry  infra.RetryConfig
	logger *slog.Logger
}

func NewService(client *transcribestreaming.Client, retry infra.RetryConfig, logger *slog.Logger) *Service {
	start := func(ctx context.Context, cfg domain.StreamConfig) (eventStream, func() error, error) {
		out, err := client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
			LanguageCode:         types.LanguageCode(cfg.LanguageCode),
			MediaEncoding:        types.MediaEncoding(cfg.Encoding),
			MediaSampleRateHertz: aws.Int32(int32(cfg.SampleRate)),
		})
		if err != nil {
			return nil, nil, err
		}
		stream := out.GetStream()
		return stream, stream.Writer.Close, nil
	}
	return newService(start, retry, logger)
}

func newService(start startFunc, retry infra.RetryConfig, logger *slog.Logger) *Service {
	return &Service{start: start, retry: retry, logger: logger}
}

func (s *Service) Name() string {
	return "aws-transcribe"
}

// Open starts a streaming transcription. Only the connection attempt is
// retried; a session that fails later stays failed.
func (s *Service) Open(ctx context.Context, cfg domain.StreamConfig) (application.TranscriptionSession, error) {
	var (
		stream     eventStream
		closeInput func() error
	)

	attempt := 0
	err := infra.WithRetry(ctx, s.retry, func() error {
		attempt++
		var err error
		stream, closeInput, err = s.start(ctx, cfg)
		if err != nil {
			s.logger.Warn("starting transcription stream failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("starting stream transcription: %w: %w", domain.ErrStreaming, err)
	}

	s.logger.Info("transcription stream started",
		"language", cfg.LanguageCode,
		"sampleRate", cfg.SampleRate,
		"encoding", cfg.Encoding,
	)
	return newSession(stream, closeInput, s.logger), nil
}

// Session is one Amazon Transcribe stream: audio events out, transcript
// events in.
type Session struct {
	stream     eventStream
	closeInput func() error
	logger     *slog.Logger

	guard  infra.SessionGuard
	events chan domain.TranscriptEvent
	done   chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

func newSession(stream eventStream, closeInput func() error, logger *slog.Logger) *Session {
	s := &Session{
		stream:     stream,
		closeInput: closeInput,
		logger:     logger,
		events:     make(chan domain.TranscriptEvent, eventBuffer),
		done:       make(chan struct{}),
	}
	s.guard.Begin()
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	defer close(s.events)

	for event := range s.stream.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			s.logger.Debug("ignoring transcription stream event", "type", fmt.Sprintf("%T", event))
			continue
		}

		select {
		case s.events <- convertTranscript(te.Value.Transcript):
		case <-s.done:
			return
		}
	}

	if err := s.stream.Err(); err != nil {
		s.setErr(fmt.Errorf("receiving transcript events: %w: %w", domain.ErrStreaming, err))
	}
}

func (s *Session) SendFrame(ctx context.Context, frame domain.AudioFrame) error {
	if err := s.guard.CheckStreaming(); err != nil {
		return err
	}

	err := s.stream.Send(ctx, &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: frame.Bytes()},
	})
	if err != nil {
		return fmt.Errorf("sending audio event: %w: %w", domain.ErrStreaming, err)
	}
	return nil
}

// EndInput sends the empty audio event that marks the end of audio and
// closes the outbound half. Transcript events keep arriving until the
// service closes the stream.
func (s *Session) EndInput(ctx context.Context) error {
	if err := s.guard.End(); err != nil {
		return err
	}

	sendErr := s.stream.Send(ctx, &types.AudioStreamMemberAudioEvent{Value: types.AudioEvent{AudioChunk: []byte{}}})
	closeErr := s.closeInput()
	if err := errors.Join(sendErr, closeErr); err != nil {
		return fmt.Errorf("ending audio stream: %w: %w", domain.ErrStreaming, err)
	}
	return nil
}

func (s *Session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) State() domain.SessionState {
	return s.guard.State()
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.guard.Terminate()
		if err := s.stream.Close(); err != nil {
			s.closeErr = fmt.Errorf("closing transcription stream: %w", err)
		}
	})
	return s.closeErr
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func convertTranscript(t *types.Transcript) domain.TranscriptEvent {
	var event domain.TranscriptEvent
	if t == nil {
		return event
	}

	for _, r := range t.Results {
		result := domain.TranscriptResult{
			ResultID:  aws.ToString(r.ResultId),
			IsPartial: r.IsPartial,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		}
		for _, alt := range r.Alternatives {
			result.Alternatives = append(result.Alternatives, domain.Alternative{
				Transcript: aws.ToString(alt.Transcript),
			})
		}
		event.Results = append(event.Results, result)
	}
	return event
}
