// Package pipeline implements the fetch execution stage of the guarded
// acquisition pipeline. The executor re-validates the admission chain
// before any network side effect, runs the transport collaborator under
// a circuit breaker, and seals the result before handing it back.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vitalview/vitalcore/internal/governance"
	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/guard"
	"github.com/vitalview/vitalcore/pkg/membrane"
	"github.com/vitalview/vitalcore/pkg/telemetry"
)

// Stages that can reject a fetch. Carried on ExecError so callers know
// where the pipeline stopped.
const (
	StageGuard   = "guard"
	StageBreaker = "breaker"
	StageFetch   = "fetch"
	StageSeal    = "seal"
)

// Fetcher is the transport collaborator. Implementations own wire
// formats, endpoints and transport-level timeouts; the executor only
// decides whether and when to call them.
type Fetcher interface {
	Fetch(ctx context.Context, key domain.Key, params map[string]any) (any, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key domain.Key, params map[string]any) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, key domain.Key, params map[string]any) (any, error) {
	return f(ctx, key, params)
}

// DeferralError reports that a guard blocked the fetch. Deferrals are
// not errors in the failure taxonomy: they mean "not yet", with a
// machine-readable reason and a suggested retry delay.
type DeferralError struct {
	Verdict domain.Verdict
}

func (e *DeferralError) Error() string {
	return fmt.Sprintf("fetch deferred: %s (retry after %s)", e.Verdict.Reason, e.Verdict.RetryAfter)
}

func (e *DeferralError) Unwrap() error { return domain.ErrFetchDeferred }

// ExecError is a typed execution failure tagged with the stage that
// rejected the fetch.
type ExecError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %s", e.Stage, e.Reason)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Executor resolves fetches for the orchestrator.
type Executor struct {
	fetcher Fetcher
	mem     *membrane.Membrane
	breaker *governance.CircuitBreaker
	logger  zerolog.Logger
}

// NewExecutor creates an executor around the given transport. A nil
// breaker config uses defaults.
func NewExecutor(fetcher Fetcher, mem *membrane.Membrane, breakerCfg governance.BreakerConfig, logger zerolog.Logger) *Executor {
	return &Executor{
		fetcher: fetcher,
		mem:     mem,
		breaker: governance.NewCircuitBreaker(breakerCfg),
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// BreakerState exposes the transport breaker state for observability.
func (e *Executor) BreakerState() governance.BreakerState {
	return e.breaker.State()
}

// Execute performs one fetch for the given domain. The chain is
// re-evaluated here so no network side effect can happen for a call site
// whose admission state changed between scheduling and execution; a
// failing verdict returns a DeferralError, never an ExecError.
func (e *Executor) Execute(ctx context.Context, key domain.Key, params map[string]any, chain *guard.Chain) (*membrane.Sealed, error) {
	tracer := otel.Tracer("vitalcore.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.execute")
	span.SetAttributes(attribute.String("vital.domain", string(key)))
	defer span.End()

	if chain != nil {
		if verdict := chain.Evaluate(); !verdict.Pass {
			span.SetAttributes(attribute.String("guard.reason", string(verdict.Reason)))
			telemetry.RecordGuardDeferral(ctx, guardForReason(verdict.Reason), verdict.Reason)
			return nil, &DeferralError{Verdict: verdict}
		}
	}

	if err := e.breaker.Allow(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &ExecError{Stage: StageBreaker, Reason: err.Error(), Err: err}
	}

	started := time.Now()
	raw, err := e.fetcher.Fetch(ctx, key, params)
	if err != nil {
		e.breaker.RecordFailure()
		e.logger.Warn().
			Str("domain", string(key)).
			Dur("elapsed", time.Since(started)).
			Err(err).
			Msg("transport fetch failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &ExecError{Stage: StageFetch, Reason: err.Error(), Err: fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)}
	}
	e.breaker.RecordSuccess()

	sealed, err := e.mem.Seal(key, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &ExecError{Stage: StageSeal, Reason: err.Error(), Err: err}
	}

	e.logger.Debug().
		Str("domain", string(key)).
		Uint64("epoch", sealed.Epoch()).
		Dur("elapsed", time.Since(started)).
		Msg("fetch sealed")

	return sealed, nil
}

// guardForReason maps a deferral reason back to the guard that owns it,
// for metric labels.
func guardForReason(reason domain.DeferralReason) string {
	switch reason {
	case domain.ReasonAuthTokenAbsent:
		return guard.NameAuth
	case domain.ReasonNetworkOffline, domain.ReasonNetworkWeak:
		return guard.NameNetwork
	case domain.ReasonCacheFresh:
		return guard.NameStaleness
	case domain.ReasonViewportHidden:
		return guard.NameViewport
	}
	return "unknown"
}
