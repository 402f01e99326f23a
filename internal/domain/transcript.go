package domain

import "time"

// TranscriptEvent is one message from the recognition service. A single event may
// carry several results, each partial or final.
type TranscriptEvent struct {
	Results []TranscriptResult
}

type TranscriptResult struct {
	ResultID     string
	IsPartial    bool
	StartTime    float64
	EndTime      float64
	Alternatives []Alternative
}

type Alternative struct {
	Transcript string
}

// Primary returns the first alternative's transcript. Later alternatives carry no
// ranking information and are ignored.
func (r TranscriptResult) Primary() (string, bool) {
	if len(r.Alternatives) == 0 {
		return "", false
	}
	return r.Alternatives[0].Transcript, true
}

func PartialEvent(text string) TranscriptEvent {
	return TranscriptEvent{Results: []TranscriptResult{{
		IsPartial:    true,
		Alternatives: []Alternative{{Transcript: text}},
	}}}
}

func FinalEvent(text string) TranscriptEvent {
	return TranscriptEvent{Results: []TranscriptResult{{
		Alternatives: []Alternative{{Transcript: text}},
	}}}
}

// Utterance is the text of one finalized spoken segment.
type Utterance struct {
	Text       string
	ResultID   string
	ReceivedAt time.Time
}
