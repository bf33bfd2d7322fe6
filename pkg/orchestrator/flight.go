package orchestrator

import (
	"sync"

	"github.com/vitalview/vitalcore/pkg/membrane"
)

// flightGroup collapses concurrent fetches for the same cache key into
// one in-flight execution: a second request issued while the first is
// pending waits for and shares the first result instead of triggering a
// duplicate transport call.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

type flightCall struct {
	done   chan struct{}
	sealed *membrane.Sealed
	err    error
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*flightCall)}
}

// Do runs fn for the key unless an identical call is already in flight,
// in which case it waits for that call's result. The shared return
// reports whether the result came from another caller's execution.
func (g *flightGroup) Do(key string, fn func() (*membrane.Sealed, error)) (sealed *membrane.Sealed, err error, shared bool) {
	g.mu.Lock()
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-call.done
		return call.sealed, call.err, true
	}

	call := &flightCall{done: make(chan struct{})}
	g.calls[key] = call
	g.mu.Unlock()

	call.sealed, call.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(call.done)

	return call.sealed, call.err, false
}
