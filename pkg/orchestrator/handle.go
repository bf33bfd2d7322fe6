package orchestrator

import (
	"context"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/projection"
)

// Handle is the widget-facing surface of one subscription: projected
// data, lifecycle phase, and the imperative refetch/invalidate actions.
type Handle struct {
	o *Orchestrator
}

// Data returns the most recently projected view data, or nil before the
// first successful projection.
func (h *Handle) Data() any {
	return h.o.proj.State().Data
}

// Phase returns the externally observed lifecycle phase. When the
// projection has been independently invalidated while data exists, the
// phase reflects stale even though no new fetch has been requested yet.
func (h *Handle) Phase() domain.OrchestratorPhase {
	projState := h.o.proj.State()

	h.o.mu.Lock()
	phase := h.o.phase
	h.o.mu.Unlock()

	if projState.Phase == domain.ProjectionStale && projState.Data != nil {
		return domain.PhaseStale
	}
	return phase
}

// IsLoading reports whether a cycle is underway.
func (h *Handle) IsLoading() bool {
	switch h.Phase() {
	case domain.PhaseInitializing, domain.PhaseGuarding, domain.PhaseFetching, domain.PhaseProjecting:
		return true
	}
	return false
}

// IsReady reports whether projected data is current.
func (h *Handle) IsReady() bool {
	return h.Phase() == domain.PhaseReady
}

// Err returns the surfaced failure message, empty while healthy. Guard
// deferrals never appear here; they are "not ready", not errors.
func (h *Handle) Err() string {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	return h.o.errMsg
}

// FetchCount returns the number of completed fetches for this
// subscription.
func (h *Handle) FetchCount() int {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	return h.o.fetchCount
}

// LastFetchAt returns when the last successful fetch completed, zero
// before the first.
func (h *Handle) LastFetchAt() time.Time {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	return h.o.lastFetchAt
}

// Projection returns a snapshot of the projection sub-state.
func (h *Handle) Projection() projection.State {
	return h.o.proj.State()
}

// Refetch re-runs the fetch cycle unconditionally. Under the default
// policy the staleness gate is bypassed while auth, network and viewport
// are still honored.
func (h *Handle) Refetch(ctx context.Context) error {
	return h.o.runCycle(ctx, true)
}

// Tick re-runs a regular (non-forced) cycle. Callers invoke it after
// any guard input changes or on their own cadence; a CACHE_FRESH
// deferral simply keeps serving cached data.
func (h *Handle) Tick(ctx context.Context) error {
	return h.o.runCycle(ctx, false)
}

// Invalidate clears the cached sealed result and forces the projection
// to stale, guaranteeing the next cycle fetches fresh data.
func (h *Handle) Invalidate() {
	h.o.coord.cache.Invalidate(h.o.cacheKey)
	h.o.proj.Invalidate()
	if sg := h.o.chain.Staleness(); sg != nil {
		sg.MarkFetched(time.Time{})
	}

	h.o.mu.Lock()
	h.o.sealed = nil
	h.o.mu.Unlock()
}

// Close tears the subscription down: periodic probes stop and any
// pending fetch completion is discarded without mutating state.
func (h *Handle) Close() {
	h.o.mu.Lock()
	alreadyClosed := h.o.closed
	h.o.closed = true
	h.o.generation++
	h.o.mu.Unlock()

	if alreadyClosed {
		return
	}
	if h.o.stopProbe != nil {
		h.o.stopProbe()
	}
	if h.o.coord.metrics != nil {
		h.o.coord.metrics.WidgetSubscribed(-1)
	}
}
