package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-chat/internal/domain"
)

type AgentOptions struct {
	// ContextTurns is how many previous turns are sent along with the
	// utterance. Zero sends the utterance alone.
	ContextTurns int
	// MaxTurns bounds the conversation log. Zero keeps every turn.
	MaxTurns int
	Timeout  time.Duration
}

// ResponseAgent turns utterances into responses and keeps the conversation log.
// Calls must not overlap; the pipeline makes them from a single goroutine.
type ResponseAgent struct {
	generator    ResponseGenerator
	history      *domain.ConversationLog
	contextTurns int
	timeout      time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewResponseAgent(generator ResponseGenerator, opts AgentOptions, logger *slog.Logger) *ResponseAgent {
	return &ResponseAgent{
		generator:    generator,
		history:      domain.NewConversationLog(opts.MaxTurns),
		contextTurns: opts.ContextTurns,
		timeout:      opts.Timeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Respond makes exactly one generator call for the utterance. A failed call is
// logged and returned as an error wrapping domain.ErrResponseCall; the
// conversation log is only touched on success.
func (a *ResponseAgent) Respond(ctx context.Context, utterance domain.Utterance) (string, error) {
	prompt := a.buildPrompt(utterance.Text)

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := a.now()
	text, err := a.generator.Generate(callCtx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		a.logger.Error("response call failed",
			"generator", a.generator.Name(),
			"utterance", utterance.Text,
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", domain.ErrResponseCall, err)
	}

	text = strings.TrimSpace(text)
	a.history.Append(domain.Turn{
		ID:        uuid.NewString(),
		Utterance: utterance.Text,
		Response:  text,
		At:        a.now(),
	})

	a.logger.Debug("response received",
		"generator", a.generator.Name(),
		"latency", a.now().Sub(start),
		"turns", a.history.Len(),
	)

	return text, nil
}

func (a *ResponseAgent) buildPrompt(text string) string {
	previous := a.history.Last(a.contextTurns)
	if len(previous) == 0 {
		return text
	}
	return fmt.Sprintf("%s\n\nHuman: %s\n\nAssistant:", domain.RenderTurns(previous), text)
}

func (a *ResponseAgent) ClearHistory() {
	a.history.Clear()
}

// History renders the conversation so far.
func (a *ResponseAgent) History() string {
	return a.history.Render()
}

func (a *ResponseAgent) Turns() []domain.Turn {
	return a.history.Turns()
}
