package application

import (
	"log/slog"
	"strings"
	"time"

	"voice-chat/internal/domain"
)

// TranscriptRouter turns transcript events into utterances. It keeps no state,
// so utterances come out in the order events go in.
type TranscriptRouter struct {
	logger    *slog.Logger
	onPartial func(text string)
	now       func() time.Time
}

func NewTranscriptRouter(logger *slog.Logger, onPartial func(text string)) *TranscriptRouter {
	return &TranscriptRouter{
		logger:    logger,
		onPartial: onPartial,
		now:       time.Now,
	}
}

// Route returns one utterance per finalized result in the event.
func (r *TranscriptRouter) Route(event domain.TranscriptEvent) []domain.Utterance {
	var utterances []domain.Utterance

	for _, result := range event.Results {
		text, ok := result.Primary()
		if !ok {
			r.logger.Debug("result without alternatives", "result_id", result.ResultID)
			continue
		}

		if result.IsPartial {
			if r.onPartial != nil {
				r.onPartial(text)
			}
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			r.logger.Debug("empty final transcript", "result_id", result.ResultID)
			continue
		}

		utterances = append(utterances, domain.Utterance{
			Text:       text,
			ResultID:   result.ResultID,
			ReceivedAt: r.now(),
		})
	}

	return utterances
}
