package guard

import (
	"sync"
	"time"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// Defaults for the staleness gate.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultFreshnessCutoff = 0.7

	// goldenRatio shapes the freshness decay curve 1/(1+φ·r²).
	goldenRatio = 1.618033988749895
)

// StalenessOptions tunes the staleness guard.
type StalenessOptions struct {
	TTL             time.Duration
	FreshnessCutoff float64
}

func (o StalenessOptions) withDefaults() StalenessOptions {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.FreshnessCutoff <= 0 || o.FreshnessCutoff >= 1 {
		o.FreshnessCutoff = DefaultFreshnessCutoff
	}
	return o
}

// StalenessGuard is the inverted gate in the chain: it grants permission
// to refetch. While cached data is still fresh it fails with CACHE_FRESH
// to block redundant fetches, and passes once freshness has decayed past
// the cutoff.
type StalenessGuard struct {
	opts StalenessOptions
	now  func() time.Time

	mu        sync.Mutex
	lastFetch time.Time
	ttl       time.Duration
}

// NewStalenessGuard creates the staleness gate. Before the first
// successful fetch the guard always passes: absent data is maximally
// stale.
func NewStalenessGuard(opts StalenessOptions) *StalenessGuard {
	opts = opts.withDefaults()
	return &StalenessGuard{
		opts: opts,
		now:  time.Now,
		ttl:  opts.TTL,
	}
}

func (g *StalenessGuard) Name() string  { return NameStaleness }
func (g *StalenessGuard) Priority() int { return priorityStaleness }

// MarkFetched records the moment of the last successful fetch.
func (g *StalenessGuard) MarkFetched(at time.Time) {
	g.mu.Lock()
	g.lastFetch = at
	g.mu.Unlock()
}

// SetTTL swaps the freshness window. Used by config hot reload.
func (g *StalenessGuard) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	g.mu.Lock()
	g.ttl = ttl
	g.mu.Unlock()
}

// Freshness returns the current decayed freshness score in [0,1].
func (g *StalenessGuard) Freshness() float64 {
	g.mu.Lock()
	lastFetch := g.lastFetch
	ttl := g.ttl
	g.mu.Unlock()

	if lastFetch.IsZero() {
		return 0
	}
	return freshness(g.now().Sub(lastFetch), ttl)
}

// Evaluate fails CACHE_FRESH while freshness exceeds the cutoff, with a
// retry hint of one third of the TTL.
func (g *StalenessGuard) Evaluate() domain.Verdict {
	g.mu.Lock()
	ttl := g.ttl
	g.mu.Unlock()

	if g.Freshness() > g.opts.FreshnessCutoff {
		return domain.Verdict{
			Pass:       false,
			Reason:     domain.ReasonCacheFresh,
			RetryAfter: ttl / 3,
		}
	}
	return domain.Verdict{Pass: true}
}

// freshness computes 1/(1+φ·r²) for r = elapsed/ttl. Monotonically
// non-increasing in elapsed; 1 at r=0, asymptotically 0.
func freshness(elapsed, ttl time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	r := float64(elapsed) / float64(ttl)
	return 1 / (1 + goldenRatio*r*r)
}
