package domain

import (
	"fmt"
	"strings"
	"time"
)

// Turn is one utterance and the response it produced.
type Turn struct {
	ID        string
	Utterance string
	Response  string
	At        time.Time
}

// ConversationLog is an append-only ordered record of turns. When MaxTurns is
// positive only the most recent turns are kept, still in insertion order.
// It is not safe for concurrent use.
type ConversationLog struct {
	MaxTurns int
	turns    []Turn
}

func NewConversationLog(maxTurns int) *ConversationLog {
	return &ConversationLog{MaxTurns: maxTurns}
}

func (l *ConversationLog) Append(t Turn) {
	l.turns = append(l.turns, t)
	if l.MaxTurns > 0 && len(l.turns) > l.MaxTurns {
		drop := len(l.turns) - l.MaxTurns
		l.turns = append(l.turns[:0:0], l.turns[drop:]...)
	}
}

func (l *ConversationLog) Clear() {
	l.turns = nil
}

func (l *ConversationLog) Len() int {
	return len(l.turns)
}

// Turns returns a copy of the logged turns.
func (l *ConversationLog) Turns() []Turn {
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Last returns up to n most recent turns, oldest first.
func (l *ConversationLog) Last(n int) []Turn {
	if n <= 0 {
		return nil
	}
	if n > len(l.turns) {
		n = len(l.turns)
	}
	return l.Turns()[len(l.turns)-n:]
}

// Render formats the log as a Human/Assistant transcript. An empty log renders
// as the empty string.
func (l *ConversationLog) Render() string {
	return RenderTurns(l.turns)
}

func RenderTurns(turns []Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Human: %s\n\nAssistant: %s", t.Utterance, t.Response)
	}
	return sb.String()
}
