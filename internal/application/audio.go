package application

import (
	"context"

	"voice-chat/internal/domain"
)

// AudioSource yields fixed-size frames from a capture device. NextFrame never
// reports device read failures; it substitutes silence instead. The sequence
// ends with domain.ErrSourceClosed, io.EOF for finite sources, or ctx.Err().
type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextFrame(ctx context.Context) (domain.AudioFrame, error)
	Name() string
}
