package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice-chat/internal/application"
	"voice-chat/internal/domain"
	"voice-chat/internal/infra"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// Service connects to a websocket speech bridge: binary PCM frames go out,
// JSON transcript messages come back.
type Service struct {
	baseURL string
	retry   infra.RetryConfig
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

func NewService(baseURL string, retry infra.RetryConfig, logger *slog.Logger) *Service {
	return &Service{
		baseURL: baseURL,
		retry:   retry,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger,
	}
}

func (s *Service) Name() string {
	return "ws-bridge"
}

func (s *Service) Open(ctx context.Context, cfg domain.StreamConfig) (application.TranscriptionSession, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: bridge URL is empty", domain.ErrStreaming)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing bridge URL: %w: %w", domain.ErrStreaming, err)
	}

	sessionID := uuid.NewString()
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("language", cfg.LanguageCode)
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("encoding", cfg.Encoding)
	u.RawQuery = q.Encode()

	var conn *websocket.Conn
	attempt := 0
	err = infra.WithRetry(ctx, s.retry, func() error {
		attempt++
		c, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			s.logger.Warn("connecting speech bridge failed", "attempt", attempt, "error", err)
			if resp != nil && !infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return infra.Permanent(fmt.Errorf("bridge handshake status %d: %w", resp.StatusCode, err))
			}
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting speech bridge after %d attempts: %w: %w", attempt, domain.ErrStreaming, err)
	}

	s.logger.Info("speech bridge connected", "sessionID", sessionID, "language", cfg.LanguageCode)
	return newSession(conn, sessionID, s.logger), nil
}

// message is either a flat result or an AWS-style result list. Error
// messages end the session.
type message struct {
	Text     string   `json:"text"`
	IsFinal  *bool    `json:"is_final"`
	ResultID string   `json:"result_id"`
	Results  []result `json:"results"`
	Error    string   `json:"error"`
}

type result struct {
	ResultID     string        `json:"result_id"`
	IsPartial    bool          `json:"is_partial"`
	StartTime    float64       `json:"start_time"`
	EndTime      float64       `json:"end_time"`
	Alternatives []alternative `json:"alternatives"`
}

type alternative struct {
	Transcript string `json:"transcript"`
}

func decodeMessage(payload []byte) (domain.TranscriptEvent, bool, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.TranscriptEvent{}, false, fmt.Errorf("decoding bridge message: %w", err)
	}
	if msg.Error != "" {
		return domain.TranscriptEvent{}, false, errors.New(msg.Error)
	}

	var event domain.TranscriptEvent
	for _, r := range msg.Results {
		tr := domain.TranscriptResult{
			ResultID:  r.ResultID,
			IsPartial: r.IsPartial,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		}
		for _, a := range r.Alternatives {
			tr.Alternatives = append(tr.Alternatives, domain.Alternative{Transcript: a.Transcript})
		}
		event.Results = append(event.Results, tr)
	}

	if len(msg.Results) == 0 && msg.IsFinal != nil {
		event.Results = append(event.Results, domain.TranscriptResult{
			ResultID:     msg.ResultID,
			IsPartial:    !*msg.IsFinal,
			Alternatives: []domain.Alternative{{Transcript: msg.Text}},
		})
	}

	return event, len(event.Results) > 0, nil
}

type Session struct {
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger

	guard   infra.SessionGuard
	events  chan domain.TranscriptEvent
	done    chan struct{}
	writeMu sync.Mutex

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

func newSession(conn *websocket.Conn, sessionID string, logger *slog.Logger) *Session {
	s := &Session{
		conn:      conn,
		sessionID: sessionID,
		logger:    logger,
		events:    make(chan domain.TranscriptEvent, eventBuffer),
		done:      make(chan struct{}),
	}
	s.guard.Begin()
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	defer close(s.events)

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.readFailed(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, ok, err := decodeMessage(payload)
		if err != nil {
			s.setErr(fmt.Errorf("bridge session %s: %w: %w", s.sessionID, domain.ErrStreaming, err))
			return
		}
		if !ok {
			s.logger.Debug("ignoring bridge message", "payload", string(payload))
			continue
		}

		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func (s *Session) readFailed(err error) {
	select {
	case <-s.done:
		return
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("speech bridge closed the stream", "sessionID", s.sessionID)
		return
	}
	s.setErr(fmt.Errorf("reading bridge messages: %w: %w", domain.ErrStreaming, err))
}

func (s *Session) SendFrame(ctx context.Context, frame domain.AudioFrame) error {
	if err := s.guard.CheckStreaming(); err != nil {
		return err
	}
	if err := s.write(ctx, websocket.BinaryMessage, frame.Bytes()); err != nil {
		return fmt.Errorf("sending audio frame: %w: %w", domain.ErrStreaming, err)
	}
	return nil
}

func (s *Session) EndInput(ctx context.Context) error {
	if err := s.guard.End(); err != nil {
		return err
	}
	if err := s.write(ctx, websocket.TextMessage, []byte(`{"event":"end"}`)); err != nil {
		return fmt.Errorf("ending audio input: %w: %w", domain.ErrStreaming, err)
	}
	return nil
}

func (s *Session) write(ctx context.Context, messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
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

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = fmt.Errorf("closing bridge connection: %w", err)
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
