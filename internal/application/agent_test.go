package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voice-chat/internal/application"
	"voice-chat/internal/domain"
)

type scriptedGenerator struct {
	replies map[string]string
	fail    map[string]error
	prompts []string
	delay   time.Duration
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err, ok := g.fail[prompt]; ok {
		return "", err
	}
	if reply, ok := g.replies[prompt]; ok {
		return reply, nil
	}
	return "echo: " + prompt, nil
}

func TestResponseAgent_RespondAppendsHistory(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"你好": "你好！有什么可以帮你？"}}
	agent := application.NewResponseAgent(gen, application.AgentOptions{}, discardLogger())

	got, err := agent.Respond(context.Background(), domain.Utterance{Text: "你好"})
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if got != "你好！有什么可以帮你？" {
		t.Errorf("response: got %q", got)
	}
	if !strings.Contains(agent.History(), "你好！有什么可以帮你？") {
		t.Errorf("history missing response: %q", agent.History())
	}
	if len(gen.prompts) != 1 || gen.prompts[0] != "你好" {
		t.Errorf("prompts: got %v, want [你好]", gen.prompts)
	}

	turns := agent.Turns()
	if len(turns) != 1 || turns[0].ID == "" {
		t.Errorf("turns: got %+v", turns)
	}
}

func TestResponseAgent_FailureLeavesHistory(t *testing.T) {
	gen := &scriptedGenerator{
		fail: map[string]error{"boom": errors.New("remote exploded")},
	}
	agent := application.NewResponseAgent(gen, application.AgentOptions{}, discardLogger())

	if _, err := agent.Respond(context.Background(), domain.Utterance{Text: "first"}); err != nil {
		t.Fatalf("first Respond error: %v", err)
	}
	before := agent.History()

	got, err := agent.Respond(context.Background(), domain.Utterance{Text: "boom"})
	if !errors.Is(err, domain.ErrResponseCall) {
		t.Fatalf("error: got %v, want ErrResponseCall", err)
	}
	if got != "" {
		t.Errorf("response on failure: got %q, want empty", got)
	}
	if agent.History() != before {
		t.Errorf("history changed on failure: %q", agent.History())
	}

	if _, err := agent.Respond(context.Background(), domain.Utterance{Text: "after"}); err != nil {
		t.Errorf("agent unusable after failure: %v", err)
	}
}

func TestResponseAgent_EmptyReplyIsFailure(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"quiet": "  "}}
	agent := application.NewResponseAgent(gen, application.AgentOptions{}, discardLogger())

	if _, err := agent.Respond(context.Background(), domain.Utterance{Text: "quiet"}); !errors.Is(err, domain.ErrResponseCall) {
		t.Errorf("error: got %v, want ErrResponseCall", err)
	}
	if agent.History() != "" {
		t.Errorf("history: got %q, want empty", agent.History())
	}
}

func TestResponseAgent_Timeout(t *testing.T) {
	gen := &scriptedGenerator{delay: time.Second}
	agent := application.NewResponseAgent(gen, application.AgentOptions{Timeout: 20 * time.Millisecond}, discardLogger())

	_, err := agent.Respond(context.Background(), domain.Utterance{Text: "slow"})
	if !errors.Is(err, domain.ErrResponseCall) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error: got %v, want ErrResponseCall wrapping DeadlineExceeded", err)
	}
}

func TestResponseAgent_ClearHistory(t *testing.T) {
	agent := application.NewResponseAgent(&scriptedGenerator{}, application.AgentOptions{}, discardLogger())

	agent.ClearHistory()
	if agent.History() != "" {
		t.Errorf("history after clear on empty: %q", agent.History())
	}

	_, _ = agent.Respond(context.Background(), domain.Utterance{Text: "hi"})
	agent.ClearHistory()
	if agent.History() != "" {
		t.Errorf("history after clear: %q", agent.History())
	}
}

func TestResponseAgent_ContextTurns(t *testing.T) {
	gen := &scriptedGenerator{}
	agent := application.NewResponseAgent(gen, application.AgentOptions{ContextTurns: 1}, discardLogger())

	_, _ = agent.Respond(context.Background(), domain.Utterance{Text: "first"})
	_, _ = agent.Respond(context.Background(), domain.Utterance{Text: "second"})

	if gen.prompts[0] != "first" {
		t.Errorf("first prompt: got %q, want bare utterance", gen.prompts[0])
	}
	want := "Human: first\n\nAssistant: echo: first\n\nHuman: second\n\nAssistant:"
	if gen.prompts[1] != want {
		t.Errorf("second prompt:\ngot  %q\nwant %q", gen.prompts[1], want)
	}
}
