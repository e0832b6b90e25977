package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Supervisor races every worker loop together under one errgroup: the
// first loop to return an error cancels the shared context, and every
// other loop is expected to observe that cancellation at its next
// suspension point (network RPC, store read/write, long-poll) and return
// promptly (spec §5). Wait blocks until every loop has returned.
type Supervisor struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor derives a cancelable context from parent and returns a
// Supervisor ready to have loops added via Go.
func NewSupervisor(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &Supervisor{group: group, ctx: gctx, cancel: cancel}
}

// Context returns the context every added loop should use for
// cancellation-aware suspension.
func (s *Supervisor) Context() context.Context { return s.ctx }

// Go starts fn as one of the raced loops.
func (s *Supervisor) Go(fn func(ctx context.Context) error) {
	s.group.Go(func() error { return fn(s.ctx) })
}

// Wait blocks until every loop has returned, returning the first non-nil
// error (if any). It then releases the derived context.
func (s *Supervisor) Wait() error {
	err := s.group.Wait()
	s.cancel()
	return err
}

// Stop cancels every loop without waiting for Wait to be called.
func (s *Supervisor) Stop() { s.cancel() }
