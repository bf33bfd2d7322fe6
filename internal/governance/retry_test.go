package governance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

func TestShouldRetry(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Jitter: false})

	t.Run("transient errors retry within budget", func(t *testing.T) {
		err := errors.New("connection reset")
		if !rp.ShouldRetry(err, 1) {
			t.Fatal("expected retry on attempt 1")
		}
		if rp.ShouldRetry(err, 3) {
			t.Fatal("attempt ceiling must stop retries")
		}
	})

	t.Run("auth failures never retry", func(t *testing.T) {
		for _, msg := range []string{"401 unauthorized", "invalid token", "auth session expired"} {
			if rp.ShouldRetry(errors.New(msg), 1) {
				t.Fatalf("retried auth-classified failure %q", msg)
			}
		}
		if rp.ShouldRetry(fmt.Errorf("wrapped: %w", domain.ErrAuthRequired), 1) {
			t.Fatal("retried domain auth sentinel")
		}
	})

	t.Run("guard deferrals never retry", func(t *testing.T) {
		if rp.ShouldRetry(fmt.Errorf("wrapped: %w", domain.ErrFetchDeferred), 1) {
			t.Fatal("retried a deferral")
		}
	})
}

func TestExecuteRetries(t *testing.T) {
	t.Run("exhausts the attempt ceiling", func(t *testing.T) {
		rp := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Jitter: false})
		calls := 0
		err := rp.Execute(context.Background(), func() error {
			calls++
			return errors.New("upstream timeout")
		})
		if !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("stops immediately on auth failure", func(t *testing.T) {
		rp := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Jitter: false})
		calls := 0
		err := rp.Execute(context.Background(), func() error {
			calls++
			return domain.ErrAuthRequired
		})
		if !errors.Is(err, domain.ErrAuthRequired) {
			t.Fatalf("expected auth error surfaced verbatim, got %v", err)
		}
		if calls != 1 {
			t.Fatalf("auth failure must not retry, got %d attempts", calls)
		}
	})

	t.Run("succeeds mid-budget", func(t *testing.T) {
		rp := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Jitter: false})
		calls := 0
		err := rp.Execute(context.Background(), func() error {
			calls++
			if calls < 2 {
				return errors.New("flaky")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 2 {
			t.Fatalf("expected 2 attempts, got %d", calls)
		}
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		rp := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, Jitter: false})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- rp.Execute(ctx, func() error { return errors.New("slow") })
		}()
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Execute did not return after cancellation")
		}
	})
}

func TestBackoffGrowth(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        300 * time.Millisecond,
		Jitter:            false,
	})

	if got := rp.Backoff(1); got != 100*time.Millisecond {
		t.Fatalf("backoff(1) = %s", got)
	}
	if got := rp.Backoff(2); got != 200*time.Millisecond {
		t.Fatalf("backoff(2) = %s", got)
	}
	if got := rp.Backoff(3); got != 300*time.Millisecond {
		t.Fatalf("backoff(3) should cap at max, got %s", got)
	}
}
