// Package projection turns sealed envelopes into display-ready data. A
// projector verifies integrity, applies an optional caller-supplied
// morphism parameterized by ambient context, memoizes the previous
// result for equality skipping, and exposes a small idle/stale/error
// state machine.
package projection

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/membrane"
	"github.com/vitalview/vitalcore/pkg/telemetry"
)

// Morphism transforms unsealed domain data plus ambient display context
// into view-ready data.
type Morphism func(raw any, mctx membrane.MorphismContext) (any, error)

// Options configures one projector.
type Options struct {
	// Morphism transforms unsealed data; nil means unseal-and-pass-through.
	Morphism Morphism
	// IsEqual, when set, skips the state transition entirely if the new
	// result is semantically equal to the previous one.
	IsEqual func(prev, next any) bool
	// SkipVerify bypasses the integrity check for trusted internal paths.
	SkipVerify bool
}

// State is the externally readable projection state. Mutated only by the
// projector.
type State struct {
	Phase           domain.ProjectionPhase
	Data            any
	Err             string
	Epoch           *uint64
	ProjectionCount int
}

// Projector consumes sealed envelopes for one widget subscription.
type Projector struct {
	mem    *membrane.Membrane
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	prev      any
	hasPrev   bool
	lastEpoch uint64
	hasEpoch  bool
}

// New creates a projector in the idle phase with no data.
func New(mem *membrane.Membrane, opts Options, logger zerolog.Logger) *Projector {
	return &Projector{
		mem:    mem,
		opts:   opts,
		logger: logger.With().Str("component", "projection").Logger(),
		state:  State{Phase: domain.ProjectionIdle},
	}
}

// State returns a snapshot of the current projection state.
func (p *Projector) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Project verifies and projects one sealed envelope. Integrity and
// transform failures transition to the error phase with a descriptive
// message while leaving the previously projected data untouched.
func (p *Projector) Project(sealed *membrane.Sealed) error {
	raw, err := p.unseal(sealed)
	if err != nil {
		p.fail(err)
		return err
	}

	result, err := p.transform(raw)
	if err != nil {
		p.fail(err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts.IsEqual != nil && p.hasPrev && p.opts.IsEqual(p.prev, result) {
		telemetry.RecordProjectionSkip(context.Background(), sealed.DomainKey())
		return nil
	}

	epoch := sealed.Epoch()
	p.state.Data = result
	p.state.Err = ""
	p.state.Epoch = &epoch
	p.state.ProjectionCount++
	p.state.Phase = domain.ProjectionIdle
	p.prev = result
	p.hasPrev = true
	p.lastEpoch = epoch
	p.hasEpoch = true
	return nil
}

// AutoProject projects only when the envelope carries a new epoch.
// Returns true when a projection was attempted.
func (p *Projector) AutoProject(sealed *membrane.Sealed) (bool, error) {
	if sealed == nil {
		return false, nil
	}
	p.mu.Lock()
	seen := p.hasEpoch && p.lastEpoch == sealed.Epoch()
	p.mu.Unlock()
	if seen {
		return false, nil
	}
	return true, p.Project(sealed)
}

// ProjectAll best-effort unseals several sources at once. A failed
// unseal for any one source yields nil for that source only; the batch
// never aborts.
func (p *Projector) ProjectAll(sealeds []*membrane.Sealed) []any {
	out := make([]any, len(sealeds))
	for i, s := range sealeds {
		out[i] = p.mem.UnsealSafe(s)
	}
	return out
}

// Invalidate forces the stale phase and clears the memoized previous
// result, so the next successful projection is guaranteed to be treated
// as a change.
func (p *Projector) Invalidate() {
	p.mu.Lock()
	p.state.Phase = domain.ProjectionStale
	p.prev = nil
	p.hasPrev = false
	p.hasEpoch = false
	p.mu.Unlock()
}

func (p *Projector) unseal(sealed *membrane.Sealed) (any, error) {
	if p.opts.SkipVerify {
		return p.mem.UnsealTrusted(sealed)
	}
	return p.mem.Unseal(sealed)
}

// transform applies the morphism, converting panics into errors: a
// misbehaving caller-supplied transform must not take the subscription
// down.
func (p *Projector) transform(raw any) (result any, err error) {
	if p.opts.Morphism == nil {
		return raw, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrMorphismFailed, r)
		}
	}()

	result, err = p.opts.Morphism(raw, p.mem.MorphismContext())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMorphismFailed, err)
	}
	return result, nil
}

func (p *Projector) fail(err error) {
	p.logger.Warn().Err(err).Msg("projection failed")
	p.mu.Lock()
	p.state.Phase = domain.ProjectionError
	p.state.Err = err.Error()
	p.mu.Unlock()
}
