package infra

import (
	"fmt"
	"sync/atomic"

	"voice-chat/internal/domain"
)

// SessionGuard tracks the Open → Streaming → Ended lifecycle of a
// transcription session. Transitions only move forward.
type SessionGuard struct {
	state atomic.Int32
}

func (g *SessionGuard) State() domain.SessionState {
	return domain.SessionState(g.state.Load())
}

// Begin moves an open session to streaming.
func (g *SessionGuard) Begin() bool {
	return g.state.CompareAndSwap(int32(domain.SessionOpen), int32(domain.SessionStreaming))
}

// CheckStreaming returns a streaming error unless frames may be sent.
func (g *SessionGuard) CheckStreaming() error {
	if s := g.State(); s != domain.SessionStreaming {
		return fmt.Errorf("%w: %w (state %s)", domain.ErrStreaming, domain.ErrSessionNotStreaming, s)
	}
	return nil
}

// End moves the session to ended. It fails if input was already ended or
// never started streaming.
func (g *SessionGuard) End() error {
	if !g.state.CompareAndSwap(int32(domain.SessionStreaming), int32(domain.SessionEnded)) {
		return fmt.Errorf("%w: %w (state %s)", domain.ErrStreaming, domain.ErrSessionNotStreaming, g.State())
	}
	return nil
}

// Terminate forces the session to ended, whatever its state.
func (g *SessionGuard) Terminate() {
	g.state.Store(int32(domain.SessionEnded))
}
