package guard

import (
	"github.com/rs/zerolog"
)

// ChainOptions describes one call site's admission requirements:
// per-guard thresholds, the sources guards observe, and the set of guard
// names to leave out entirely. A disabled guard is omitted from the
// composed chain, not evaluated and ignored.
type ChainOptions struct {
	Tokens     TokenSource
	Visibility VisibilitySource

	Network   NetworkOptions
	Staleness StalenessOptions
	Viewport  ViewportOptions

	Disabled []string

	Logger zerolog.Logger
}

func (o ChainOptions) disabled(name string) bool {
	for _, d := range o.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// NewChain instantiates the standard four guards per the options and
// composes them into a frozen chain. Guards are owned exclusively by the
// returned chain for the lifetime of one orchestrated subscription.
//
// A nil Visibility source disables the viewport guard implicitly: with
// no element reference there is nothing to observe.
func NewChain(opts ChainOptions) *Chain {
	var guards []Guard

	if !opts.disabled(NameAuth) {
		guards = append(guards, NewAuthGuard(opts.Tokens))
	}
	if !opts.disabled(NameNetwork) {
		guards = append(guards, NewNetworkGuard(opts.Network, opts.Logger))
	}
	if !opts.disabled(NameStaleness) {
		guards = append(guards, NewStalenessGuard(opts.Staleness))
	}
	if !opts.disabled(NameViewport) && opts.Visibility != nil {
		guards = append(guards, NewViewportGuard(opts.Visibility, opts.Viewport))
	}

	// Compose only fails on duplicate names, which the fixed four cannot
	// produce.
	chain, err := Compose(guards...)
	if err != nil {
		panic(err)
	}
	return chain
}

// Network returns the chain's network guard, or nil when disabled.
func (c *Chain) Network() *NetworkGuard {
	g, _ := c.Lookup(NameNetwork).(*NetworkGuard)
	return g
}

// Staleness returns the chain's staleness guard, or nil when disabled.
func (c *Chain) Staleness() *StalenessGuard {
	g, _ := c.Lookup(NameStaleness).(*StalenessGuard)
	return g
}
