package governance

import (
	"sync"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// BreakerState represents the state of the transport circuit breaker.
type BreakerState string

const (
	// BreakerClosed allows fetches through.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects fetches until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen lets a probe fetch through to test recovery.
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines thresholds for the transport circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before half-open.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// CircuitBreaker protects the transport collaborator from sustained
// failure. One breaker instance covers one executor; guard deferrals do
// not count as failures.
type CircuitBreaker struct {
	config BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  BreakerClosed,
	}
}

// State returns the current breaker state, advancing open to half-open
// when the cooldown has elapsed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.config.Cooldown {
		cb.state = BreakerHalfOpen
	}
	return cb.state
}

// Allow reports whether a fetch may proceed, returning ErrCircuitOpen
// while the circuit is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.stateLocked() == BreakerOpen {
		return domain.ErrCircuitOpen
	}
	return nil
}

// RecordSuccess closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = BreakerClosed
}

// RecordFailure extends the failure streak, opening the circuit at the
// threshold. A failure in half-open state reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.stateLocked() == BreakerHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
	}
}
