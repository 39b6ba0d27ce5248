package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicySucceedsAfterFailures(t *testing.T) {
	p := NewRetryPolicy(2, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicyReturnsLastError(t *testing.T) {
	p := NewRetryPolicy(1, time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("down")
	})
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	p := NewRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func() error { return errors.New("down") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsRateLimit(t *testing.T) {
	err := RateLimitError{Provider: "elevenlabs", Message: "429 Too Many Requests"}
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit")
	}
	if err.Error() != "elevenlabs: 429 Too Many Requests" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if IsRateLimit(errors.New("other")) {
		t.Fatalf("unexpected rate limit")
	}
}
