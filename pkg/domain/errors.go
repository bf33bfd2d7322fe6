package domain

import "errors"

// Common domain errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrDomainUnknown     = errors.New("unknown vital-sign domain")
	ErrSealIntegrity     = errors.New("sealed envelope failed integrity check")
	ErrMorphismFailed    = errors.New("projection morphism failed")
	ErrFetchFailed       = errors.New("fetch execution failed")
	ErrFetchDeferred     = errors.New("fetch deferred by admission guard")
	ErrCircuitOpen       = errors.New("transport circuit breaker is open")
	ErrSubscriptionEnded = errors.New("subscription torn down")
	ErrNoDemoGenerator   = errors.New("demo mode enabled without a demo data generator")
)

// DomainError wraps errors with a stable machine-readable code and
// optional structured details.
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
