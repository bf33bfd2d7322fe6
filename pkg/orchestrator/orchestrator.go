// Package orchestrator is the top-level composition of the guarded
// data-acquisition pipeline. It runs the admission chain, deduplicates
// fetches through a shared result cache, drives the pipeline executor
// under the retry policy, hands sealed results to projection, and
// exposes one lifecycle state machine per widget subscription.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vitalview/vitalcore/internal/governance"
	"github.com/vitalview/vitalcore/pkg/cache"
	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/guard"
	"github.com/vitalview/vitalcore/pkg/membrane"
	"github.com/vitalview/vitalcore/pkg/metrics"
	"github.com/vitalview/vitalcore/pkg/pipeline"
	"github.com/vitalview/vitalcore/pkg/projection"
	"github.com/vitalview/vitalcore/pkg/telemetry"
)

// Executor resolves fetches for the coordinator. Satisfied by
// *pipeline.Executor; tests substitute fakes.
type Executor interface {
	Execute(ctx context.Context, key domain.Key, params map[string]any, chain *guard.Chain) (*membrane.Sealed, error)
}

// RefetchPolicy decides how Refetch treats the staleness gate. The
// other three gates are always honored unless disabled per call site.
type RefetchPolicy int

const (
	// RefetchBypassStaleness forces a cycle regardless of cache freshness.
	RefetchBypassStaleness RefetchPolicy = iota
	// RefetchHonorStaleness lets CACHE_FRESH defer a manual refetch too.
	RefetchHonorStaleness
)

// Options describes one widget subscription.
type Options struct {
	Domain domain.Key
	Params map[string]any

	Guards     guard.ChainOptions
	Projection projection.Options
	Retry      governance.RetryConfig

	// DemoMode bypasses the chain and executor entirely: the demo
	// generator's output is sealed locally and projected without any
	// network interaction.
	DemoMode   bool
	DemoDataFn func() any

	RefetchPolicy RefetchPolicy

	// Probe, when set, is run periodically by the network guard to keep
	// its RTT estimate current.
	Probe guard.ProbeFunc
}

// Coordinator owns the resources shared across widget subscriptions:
// the executor, the membrane, the sealed-result cache, and the in-flight
// dedup group.
type Coordinator struct {
	exec    Executor
	mem     *membrane.Membrane
	cache   *cache.ResultCache
	flights *flightGroup
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCoordinator creates the shared substrate. metrics may be nil.
func NewCoordinator(exec Executor, mem *membrane.Membrane, store *cache.ResultCache, m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	if store == nil {
		store = cache.NewResultCache()
	}
	return &Coordinator{
		exec:    exec,
		mem:     mem,
		cache:   store,
		flights: newFlightGroup(),
		metrics: m,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Cache exposes the shared result cache.
func (c *Coordinator) Cache() *cache.ResultCache { return c.cache }

// Subscribe activates one orchestrated subscription and runs its first
// fetch cycle. A deferred first cycle is not an error: the handle comes
// back in the guarding phase with a retry hint.
func (c *Coordinator) Subscribe(ctx context.Context, opts Options) (*Handle, error) {
	if !opts.Domain.Valid() {
		return nil, domain.ErrDomainUnknown
	}
	if opts.DemoMode && opts.DemoDataFn == nil {
		return nil, domain.ErrNoDemoGenerator
	}

	o := &Orchestrator{
		coord:    c,
		opts:     opts,
		cacheKey: cache.Key(opts.Domain, opts.DemoMode, opts.Params),
		chain:    guard.NewChain(opts.Guards),
		retry:    governance.NewRetryPolicy(opts.Retry),
		phase:    domain.PhaseInitializing,
		logger: c.logger.With().
			Str("domain", string(opts.Domain)).
			Bool("demo", opts.DemoMode).
			Logger(),
	}
	o.proj = projection.New(c.mem, opts.Projection, o.logger)

	if ng := o.chain.Network(); ng != nil && opts.Probe != nil {
		o.stopProbe = ng.StartProbing(ctx, opts.Probe)
	}

	if c.metrics != nil {
		c.metrics.WidgetSubscribed(1)
	}

	if err := o.runCycle(ctx, false); err != nil && !errors.Is(err, domain.ErrFetchDeferred) {
		o.logger.Warn().Err(err).Msg("initial fetch cycle failed")
	}

	return &Handle{o: o}, nil
}

// Orchestrator drives the fetch lifecycle for one (domain, params, mode)
// combination. A change in any of those dimensions is a new subscription
// with a new cache key, never a mutation of an existing one.
type Orchestrator struct {
	coord    *Coordinator
	opts     Options
	cacheKey string
	chain    *guard.Chain
	proj     *projection.Projector
	retry    *governance.RetryPolicy
	logger   zerolog.Logger

	stopProbe func()

	mu          sync.Mutex
	phase       domain.OrchestratorPhase
	sealed      *membrane.Sealed
	errMsg      string
	fetchCount  int
	lastFetchAt time.Time
	generation  int
	closed      bool
}

// runCycle executes one guard-fetch-project cycle. force bypasses the
// staleness gate per the refetch policy.
func (o *Orchestrator) runCycle(ctx context.Context, force bool) error {
	gen, err := o.beginCycle()
	if err != nil {
		return err
	}

	tracer := otel.Tracer("vitalcore.orchestrator")
	ctx, span := tracer.Start(ctx, "orchestrator.cycle")
	span.SetAttributes(
		attribute.String("vital.domain", string(o.opts.Domain)),
		attribute.Bool("fetch.forced", force),
		attribute.Bool("fetch.demo", o.opts.DemoMode),
	)
	defer span.End()

	started := time.Now()

	if o.opts.DemoMode {
		return o.runDemoCycle(ctx, gen, started)
	}

	verdict := o.evaluateChain(force)
	if !verdict.Pass {
		return o.handleDeferral(ctx, gen, verdict)
	}

	o.setPhase(gen, domain.PhaseFetching)

	sealed, execErr, shared := o.coord.flights.Do(o.cacheKey, func() (*membrane.Sealed, error) {
		var result *membrane.Sealed
		err := o.retry.Execute(ctx, func() error {
			var ferr error
			result, ferr = o.coord.exec.Execute(ctx, o.opts.Domain, o.opts.Params, o.chain)
			return ferr
		})
		return result, err
	})

	if !o.alive(gen) {
		// Subscription ended mid-fetch; the completion must not mutate
		// state for a lifecycle that is over.
		return domain.ErrSubscriptionEnded
	}

	if execErr != nil {
		if errors.Is(execErr, domain.ErrFetchDeferred) {
			var deferral *pipeline.DeferralError
			if errors.As(execErr, &deferral) {
				return o.handleDeferral(ctx, gen, deferral.Verdict)
			}
			return o.handleDeferral(ctx, gen, domain.Verdict{Pass: false})
		}
		o.failCycle(ctx, gen, started, execErr)
		return execErr
	}

	if shared {
		o.logger.Debug().Str("key", o.cacheKey).Msg("satisfied by in-flight fetch")
	}

	return o.completeCycle(ctx, gen, started, sealed)
}

// runDemoCycle seals locally generated fixture data and projects it,
// skipping guards, executor and network entirely.
func (o *Orchestrator) runDemoCycle(ctx context.Context, gen int, started time.Time) error {
	sealed, err := o.coord.mem.Seal(o.opts.Domain, o.opts.DemoDataFn())
	if err != nil {
		o.failCycle(ctx, gen, started, err)
		return err
	}
	return o.completeCycle(ctx, gen, started, sealed)
}

func (o *Orchestrator) evaluateChain(force bool) domain.Verdict {
	if force && o.opts.RefetchPolicy == RefetchBypassStaleness {
		return o.chain.EvaluateExcept(guard.NameStaleness)
	}
	return o.chain.Evaluate()
}

// handleDeferral resolves an admission deferral locally: it is a "not
// ready" condition with a retry hint, not an error. A CACHE_FRESH
// deferral with a cached envelope still serves the cached data.
func (o *Orchestrator) handleDeferral(ctx context.Context, gen int, verdict domain.Verdict) error {
	if o.coord.metrics != nil {
		o.coord.metrics.RecordDeferral(guardNameFor(verdict.Reason), string(verdict.Reason))
	}

	if verdict.Reason == domain.ReasonCacheFresh {
		if sealed, ok := o.coord.cache.Get(o.cacheKey); ok {
			if o.coord.metrics != nil {
				o.coord.metrics.RecordCacheHit(string(o.opts.Domain))
			}
			if _, err := o.proj.AutoProject(sealed); err == nil {
				o.mu.Lock()
				if o.aliveLocked(gen) {
					o.sealed = sealed
					o.phase = domain.PhaseReady
				}
				o.mu.Unlock()
				return nil
			}
		}
	}

	o.setPhase(gen, domain.PhaseGuarding)
	o.logger.Debug().
		Str("reason", string(verdict.Reason)).
		Dur("retry_after", verdict.RetryAfter).
		Msg("fetch deferred")
	return &pipeline.DeferralError{Verdict: verdict}
}

func (o *Orchestrator) completeCycle(ctx context.Context, gen int, started time.Time, sealed *membrane.Sealed) error {
	o.mu.Lock()
	if !o.aliveLocked(gen) {
		o.mu.Unlock()
		return domain.ErrSubscriptionEnded
	}
	o.phase = domain.PhaseProjecting
	o.sealed = sealed
	o.errMsg = ""
	o.fetchCount++
	o.lastFetchAt = time.Now()
	o.mu.Unlock()

	o.coord.cache.Set(o.cacheKey, sealed)
	if sg := o.chain.Staleness(); sg != nil {
		sg.MarkFetched(time.Now())
	}

	if err := o.proj.Project(sealed); err != nil {
		o.failCycle(ctx, gen, started, err)
		return err
	}

	o.setPhase(gen, domain.PhaseReady)
	o.recordOutcome(ctx, started, "ready")
	o.logger.Debug().
		Uint64("epoch", sealed.Epoch()).
		Dur("elapsed", time.Since(started)).
		Msg("cycle ready")
	return nil
}

func (o *Orchestrator) failCycle(ctx context.Context, gen int, started time.Time, err error) {
	o.mu.Lock()
	if o.aliveLocked(gen) {
		o.phase = domain.PhaseError
		o.errMsg = err.Error()
	}
	o.mu.Unlock()
	o.recordOutcome(ctx, started, "error")
	o.logger.Warn().Err(err).Msg("fetch cycle failed")
}

func (o *Orchestrator) recordOutcome(ctx context.Context, started time.Time, outcome string) {
	mode := "live"
	if o.opts.DemoMode {
		mode = "demo"
	}
	elapsed := time.Since(started)
	telemetry.RecordFetchMetrics(ctx, telemetry.FetchMetrics{
		Domain:   o.opts.Domain,
		Mode:     mode,
		Outcome:  outcome,
		Duration: elapsed,
	})
	if o.coord.metrics != nil {
		o.coord.metrics.RecordFetch(string(o.opts.Domain), mode, outcome, elapsed.Seconds())
	}
}

// beginCycle bumps nothing but snapshots the teardown generation and
// flips the phase to guarding.
func (o *Orchestrator) beginCycle() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, domain.ErrSubscriptionEnded
	}
	o.phase = domain.PhaseGuarding
	return o.generation, nil
}

// alive reports whether the subscription that started the cycle is still
// the live one.
func (o *Orchestrator) alive(gen int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aliveLocked(gen)
}

func (o *Orchestrator) aliveLocked(gen int) bool {
	return !o.closed && o.generation == gen
}

func (o *Orchestrator) setPhase(gen int, phase domain.OrchestratorPhase) {
	o.mu.Lock()
	if o.aliveLocked(gen) {
		o.phase = phase
	}
	o.mu.Unlock()
}

// guardNameFor maps a deferral reason to its owning guard for metric
// labels.
func guardNameFor(reason domain.DeferralReason) string {
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
