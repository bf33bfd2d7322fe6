package guard

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// Defaults for the network admission gate.
const (
	DefaultProbeInterval    = 30 * time.Second
	DefaultWeakRTTThreshold = 3000 * time.Millisecond
	DefaultMinRTTSamples    = 3

	retryOffline = 5 * time.Second
	retryWeak    = 10 * time.Second

	// probeFailurePenalty degrades the RTT estimate when a probe fails,
	// rather than discarding the sample outright.
	probeFailurePenalty = 1.5

	// maxEMAWeight caps the adaptive weight once enough samples exist, so
	// the estimate converges quickly at first and smooths afterwards.
	maxEMAWeight = 0.3
)

// ProbeFunc performs one lightweight round trip and returns its duration.
// Probe failures degrade the estimate; they never block evaluation.
type ProbeFunc func(ctx context.Context) (time.Duration, error)

// NetworkOptions tunes the network guard.
type NetworkOptions struct {
	WeakRTTThreshold time.Duration
	ProbeInterval    time.Duration
	MinSamples       int
}

func (o NetworkOptions) withDefaults() NetworkOptions {
	if o.WeakRTTThreshold <= 0 {
		o.WeakRTTThreshold = DefaultWeakRTTThreshold
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = DefaultProbeInterval
	}
	if o.MinSamples <= 0 {
		o.MinSamples = DefaultMinRTTSamples
	}
	return o
}

// NetworkGuard tracks connectivity and a rolling round-trip-time estimate
// obtained from a periodic probe. All state is private to one guard
// instance; chains never share counters.
type NetworkGuard struct {
	opts   NetworkOptions
	logger zerolog.Logger

	mu        sync.Mutex
	online    bool
	rttMs     float64
	samples   int
	threshold time.Duration
}

// NewNetworkGuard creates the network admission gate. The guard starts
// in the online state; callers feed offline/online transitions through
// SetOnline.
func NewNetworkGuard(opts NetworkOptions, logger zerolog.Logger) *NetworkGuard {
	opts = opts.withDefaults()
	return &NetworkGuard{
		opts:      opts,
		logger:    logger.With().Str("guard", NameNetwork).Logger(),
		online:    true,
		threshold: opts.WeakRTTThreshold,
	}
}

func (g *NetworkGuard) Name() string  { return NameNetwork }
func (g *NetworkGuard) Priority() int { return priorityNetwork }

// SetOnline records a connectivity transition from the host environment.
func (g *NetworkGuard) SetOnline(online bool) {
	g.mu.Lock()
	changed := g.online != online
	g.online = online
	g.mu.Unlock()
	if changed {
		g.logger.Debug().Bool("online", online).Msg("connectivity changed")
	}
}

// SetWeakThreshold swaps the weak-link RTT threshold. Used by config hot
// reload; takes effect on the next evaluation.
func (g *NetworkGuard) SetWeakThreshold(threshold time.Duration) {
	if threshold <= 0 {
		return
	}
	g.mu.Lock()
	g.threshold = threshold
	g.mu.Unlock()
}

// ObserveRTT folds one probe round trip into the exponential moving
// average. The weight adapts as min(0.3, 1/n) so early samples dominate
// until the estimate stabilizes.
func (g *NetworkGuard) ObserveRTT(rtt time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.samples++
	alpha := math.Min(maxEMAWeight, 1/float64(g.samples))
	sample := float64(rtt) / float64(time.Millisecond)
	g.rttMs = g.rttMs*(1-alpha) + sample*alpha
}

// ObserveProbeFailure degrades the estimate instead of discarding the
// sample: the failed round trip still counts, as a pessimistic one.
func (g *NetworkGuard) ObserveProbeFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.samples++
	g.rttMs *= probeFailurePenalty
}

// EstimatedRTT returns the current estimate and how many samples back it.
func (g *NetworkGuard) EstimatedRTT() (time.Duration, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Duration(g.rttMs * float64(time.Millisecond)), g.samples
}

// StartProbing launches the periodic probe loop. It runs until the
// context is cancelled; the returned stop function is idempotent.
func (g *NetworkGuard) StartProbing(ctx context.Context, probe ProbeFunc) (stop func()) {
	if probe == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(g.opts.ProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rtt, err := probe(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					g.ObserveProbeFailure()
					g.logger.Debug().Err(err).Msg("probe failed, estimate degraded")
					continue
				}
				g.ObserveRTT(rtt)
			}
		}
	}()
	return cancel
}

// Evaluate fails NETWORK_OFFLINE while the host reports no connectivity,
// and NETWORK_WEAK once the RTT estimate exceeds the threshold with at
// least MinSamples observations behind it.
func (g *NetworkGuard) Evaluate() domain.Verdict {
	g.mu.Lock()
	online := g.online
	rttMs := g.rttMs
	samples := g.samples
	threshold := g.threshold
	minSamples := g.opts.MinSamples
	g.mu.Unlock()

	if !online {
		return domain.Verdict{
			Pass:       false,
			Reason:     domain.ReasonNetworkOffline,
			RetryAfter: retryOffline,
		}
	}

	estimate := time.Duration(rttMs * float64(time.Millisecond))
	if samples >= minSamples && estimate > threshold {
		return domain.Verdict{
			Pass:       false,
			Reason:     domain.ReasonNetworkWeak,
			RetryAfter: retryWeak,
			Latency:    estimate,
		}
	}

	return domain.Verdict{Pass: true, Latency: estimate}
}
