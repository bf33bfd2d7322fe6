// Package guard implements the admission checks that decide whether a
// data fetch for a widget may proceed, and the ordered chain that
// composes them. Each guard is an independent gate with private
// counters; chains are frozen at construction and evaluated
// short-circuit in ascending priority order.
package guard

import (
	"fmt"
	"sort"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// Guard names, also used for selective disabling.
const (
	NameAuth      = "auth"
	NameNetwork   = "network"
	NameStaleness = "staleness"
	NameViewport  = "viewport"
)

// Evaluation priorities, ascending = evaluated first.
const (
	priorityAuth      = 0
	priorityNetwork   = 10
	priorityStaleness = 20
	priorityViewport  = 30
)

// Guard is a single named admission check. Evaluate must be synchronous
// and non-blocking; any expensive observation (probes, observers) happens
// out of band and only updates the guard's private state.
type Guard interface {
	Name() string
	Priority() int
	Evaluate() domain.Verdict
}

// Chain is an ordered, immutable collection of guards. Adding or removing
// guards means building a new chain.
type Chain struct {
	guards []Guard
}

// Compose builds a chain from the given guards, sorted ascending by
// priority. Two guards must not share a name.
func Compose(guards ...Guard) (*Chain, error) {
	seen := make(map[string]bool, len(guards))
	for _, g := range guards {
		if seen[g.Name()] {
			return nil, fmt.Errorf("duplicate guard name %q in chain", g.Name())
		}
		seen[g.Name()] = true
	}

	ordered := make([]Guard, len(guards))
	copy(ordered, guards)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	return &Chain{guards: ordered}, nil
}

// Evaluate walks the chain in priority order and returns the first
// failing verdict. If every guard passes, a synthetic pass verdict is
// returned. The result is a snapshot; it is not cached across changes to
// any guard's observed state.
func (c *Chain) Evaluate() domain.Verdict {
	return c.EvaluateExcept()
}

// EvaluateExcept evaluates the chain while skipping the named guards.
// Used by forced refetch, which bypasses the staleness gate but still
// honors the rest.
func (c *Chain) EvaluateExcept(skip ...string) domain.Verdict {
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	for _, g := range c.guards {
		if skipped[g.Name()] {
			continue
		}
		if verdict := g.Evaluate(); !verdict.Pass {
			return verdict
		}
	}
	return domain.PassVerdict()
}

// Guards returns the composed guards in evaluation order.
func (c *Chain) Guards() []Guard {
	out := make([]Guard, len(c.guards))
	copy(out, c.guards)
	return out
}

// Lookup returns the guard with the given name, or nil if the chain was
// composed without it.
func (c *Chain) Lookup(name string) Guard {
	for _, g := range c.guards {
		if g.Name() == name {
			return g
		}
	}
	return nil
}
