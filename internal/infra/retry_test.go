package infra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-chat/internal/domain"
	"voice-chat/internal/infra"
)

func fastRetry(attempts int) infra.RetryConfig {
	return infra.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	err := infra.WithRetry(context.Background(), fastRetry(5), func() error {
		calls++
		return infra.Permanent(cause)
	})
	if !errors.Is(err, cause) {
		t.Errorf("error: got %v, want %v", err, cause)
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestWithRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	err := infra.WithRetry(context.Background(), fastRetry(2), func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil || err.Error() != "still down" {
		t.Errorf("error: got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := infra.WithRetry(ctx, infra.RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error {
		return errors.New("unreachable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
}

func TestSessionGuard_Lifecycle(t *testing.T) {
	var g infra.SessionGuard

	if g.State() != domain.SessionOpen {
		t.Fatalf("initial state: got %s, want open", g.State())
	}
	if err := g.CheckStreaming(); !errors.Is(err, domain.ErrStreaming) {
		t.Errorf("send before streaming: got %v", err)
	}
	if !g.Begin() {
		t.Fatal("Begin failed from open")
	}
	if err := g.CheckStreaming(); err != nil {
		t.Errorf("CheckStreaming while streaming: %v", err)
	}
	if err := g.End(); err != nil {
		t.Fatalf("End error: %v", err)
	}
	if err := g.End(); !errors.Is(err, domain.ErrSessionNotStreaming) {
		t.Errorf("second End: got %v", err)
	}
	if err := g.CheckStreaming(); !errors.Is(err, domain.ErrSessionNotStreaming) {
		t.Errorf("send after end: got %v", err)
	}
	if g.Begin() {
		t.Error("Begin succeeded after end")
	}
}
