package guard

import (
	"sync"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// Defaults for the viewport gate.
const (
	DefaultVisibilityThreshold = 0.1

	retryHidden = 2 * time.Second
)

// VisibilitySource reports how much of the owning widget is currently
// visible, as an intersection ratio in [0,1]. The native bridge feeds
// observer callbacks into it.
type VisibilitySource interface {
	VisibleRatio() float64
}

// ObservedVisibility is a VisibilitySource fed imperatively by an
// intersection observer callback.
type ObservedVisibility struct {
	mu    sync.Mutex
	ratio float64
}

// SetRatio records the latest observed intersection ratio.
func (v *ObservedVisibility) SetRatio(ratio float64) {
	v.mu.Lock()
	v.ratio = ratio
	v.mu.Unlock()
}

// VisibleRatio returns the last observed intersection ratio.
func (v *ObservedVisibility) VisibleRatio() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ratio
}

// ViewportOptions tunes the viewport guard.
type ViewportOptions struct {
	VisibilityThreshold float64
}

// ViewportGuard defers fetches for widgets that are not sufficiently
// visible, so off-screen cards do not consume fetch bandwidth.
type ViewportGuard struct {
	source    VisibilitySource
	threshold float64
}

// NewViewportGuard creates the viewport admission gate.
func NewViewportGuard(source VisibilitySource, opts ViewportOptions) *ViewportGuard {
	threshold := opts.VisibilityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultVisibilityThreshold
	}
	return &ViewportGuard{source: source, threshold: threshold}
}

func (g *ViewportGuard) Name() string  { return NameViewport }
func (g *ViewportGuard) Priority() int { return priorityViewport }

// Evaluate fails VIEWPORT_HIDDEN while the observed ratio is below the
// visibility threshold.
func (g *ViewportGuard) Evaluate() domain.Verdict {
	if g.source == nil || g.source.VisibleRatio() >= g.threshold {
		return domain.Verdict{Pass: true}
	}
	return domain.Verdict{
		Pass:       false,
		Reason:     domain.ReasonViewportHidden,
		RetryAfter: retryHidden,
	}
}
