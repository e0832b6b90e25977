package store

import (
	"context"
	"sync"
)

// Notifier is a level-triggered change-notification primitive: wake all
// waiters, coalescing multiple Signal calls between Wait calls into one
// wakeup (spec §5, §9's "watch cell incrementing a generation counter").
type Notifier struct {
	mu  sync.Mutex
	gen uint64
	ch  chan struct{}
}

// NewNotifier returns a ready-to-use Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Signal bumps the generation counter and wakes every current waiter.
func (n *Notifier) Signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	close(n.ch)
	n.ch = make(chan struct{})
}

// Generation returns the current generation counter, for callers that want
// to detect whether a change happened between two points without blocking.
func (n *Notifier) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// Wait blocks until the generation counter advances past since, or ctx is
// done. It returns the new generation, or an error if ctx ended first.
func (n *Notifier) Wait(ctx context.Context, since uint64) (uint64, error) {
	for {
		n.mu.Lock()
		gen := n.gen
		ch := n.ch
		n.mu.Unlock()

		if gen != since {
			return gen, nil
		}

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return gen, ctx.Err()
		}
	}
}
