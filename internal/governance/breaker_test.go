package governance

import (
	"errors"
	"testing"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

func TestCircuitBreaker(t *testing.T) {
	newBreaker := func(clock *time.Time) *CircuitBreaker {
		cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 3, Cooldown: 30 * time.Second})
		cb.now = func() time.Time { return *clock }
		return cb
	}

	t.Run("opens at the failure threshold", func(t *testing.T) {
		now := time.Unix(0, 0)
		cb := newBreaker(&now)

		cb.RecordFailure()
		cb.RecordFailure()
		if err := cb.Allow(); err != nil {
			t.Fatalf("breaker opened early: %v", err)
		}
		cb.RecordFailure()
		if err := cb.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
			t.Fatalf("expected ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("half-opens after the cooldown and closes on success", func(t *testing.T) {
		now := time.Unix(0, 0)
		cb := newBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}

		now = now.Add(31 * time.Second)
		if cb.State() != BreakerHalfOpen {
			t.Fatalf("expected half-open, got %s", cb.State())
		}
		if err := cb.Allow(); err != nil {
			t.Fatalf("half-open must admit a probe: %v", err)
		}

		cb.RecordSuccess()
		if cb.State() != BreakerClosed {
			t.Fatalf("expected closed after probe success, got %s", cb.State())
		}
	})

	t.Run("half-open failure reopens immediately", func(t *testing.T) {
		now := time.Unix(0, 0)
		cb := newBreaker(&now)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		now = now.Add(31 * time.Second)
		_ = cb.State()

		cb.RecordFailure()
		if cb.State() != BreakerOpen {
			t.Fatalf("expected reopen, got %s", cb.State())
		}
	})

	t.Run("success clears the failure streak", func(t *testing.T) {
		now := time.Unix(0, 0)
		cb := newBreaker(&now)
		cb.RecordFailure()
		cb.RecordFailure()
		cb.RecordSuccess()
		cb.RecordFailure()
		cb.RecordFailure()
		if err := cb.Allow(); err != nil {
			t.Fatalf("streak should have reset: %v", err)
		}
	})
}
