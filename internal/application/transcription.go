package application

import (
	"context"

	"voice-chat/internal/domain"
)

type TranscriptionService interface {
	Open(ctx context.Context, cfg domain.StreamConfig) (TranscriptionSession, error)
	Name() string
}

// TranscriptionSession is a duplex recognition stream. SendFrame and EndInput
// are called from one goroutine, Events is drained from another.
type TranscriptionSession interface {
	SendFrame(ctx context.Context, frame domain.AudioFrame) error
	EndInput(ctx context.Context) error
	// Events is closed when the service ends the stream or fails. Err reports
	// the failure, if any, once Events is closed.
	Events() <-chan domain.TranscriptEvent
	Err() error
	State() domain.SessionState
	Close() error
}
