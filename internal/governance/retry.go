package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// ErrAttemptsExhausted is returned when every retry attempt has failed.
var ErrAttemptsExhausted = errors.New("fetch attempts exhausted")

// authMarkers identify failure reasons that indicate an authentication
// problem. Such failures are never retried: hammering an unauthenticated
// backend only produces retry storms.
var authMarkers = []string{
	"auth",
	"unauthenticated",
	"unauthorized",
	"token",
	"401",
	"403",
}

// RetryConfig defines retry behavior for fetch execution.
type RetryConfig struct {
	// MaxAttempts is the total attempt ceiling, first try included.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// BackoffMultiplier is the factor by which backoff grows per attempt.
	BackoffMultiplier float64
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// Jitter adds randomness to backoff to avoid synchronized retries.
	Jitter bool
}

// DefaultRetryConfig returns the fetch retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Second,
		Jitter:            true,
	}
}

// RetryPolicy decides whether a failed fetch attempt should be repeated.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling absent fields with
// defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 200 * time.Millisecond
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}
	return &RetryPolicy{config: config}
}

// Config returns a copy of the current retry configuration.
func (rp *RetryPolicy) Config() RetryConfig {
	return rp.config
}

// IsAuthFailure reports whether an error carries an authentication
// marker, either as the domain sentinel or textually in a transport
// failure reason.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrAuthRequired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ShouldRetry determines whether another attempt is allowed after the
// given failure. attempt is 1-based. Guard deferrals are "not yet"
// signals, not failures, and are never retried here: the orchestrator
// waits out the suggested delay instead.
func (rp *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= rp.config.MaxAttempts {
		return false
	}
	if IsAuthFailure(err) || errors.Is(err, domain.ErrFetchDeferred) {
		return false
	}
	return err != nil
}

// Backoff returns the delay before the given retry. attempt is 1-based.
func (rp *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt-1)))
	if backoff > rp.config.MaxBackoff {
		backoff = rp.config.MaxBackoff
	}
	if rp.config.Jitter && backoff > 0 {
		// Up to 25% extra, non-cryptographic randomness is fine for jitter.
		backoff += time.Duration(rand.Int63n(int64(backoff / 4)))
	}
	return backoff
}

// Execute runs fn under the retry policy, backing off between attempts
// and honoring context cancellation. Auth-classified failures end the
// loop immediately with the underlying error.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= rp.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !rp.ShouldRetry(lastErr, attempt) {
			if IsAuthFailure(lastErr) || errors.Is(lastErr, domain.ErrFetchDeferred) {
				return lastErr
			}
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rp.Backoff(attempt)):
		}
	}

	return fmt.Errorf("%w: %v", ErrAttemptsExhausted, lastErr)
}
