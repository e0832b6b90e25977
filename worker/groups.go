package worker

import (
	"context"

	"github.com/nullspacechat/core/codec"
)

// GroupLoopManager watches the store for newly joined groups and starts
// their messages/management receive loops on sup as they appear. Spec §5
// describes the loop set as fixed per mailbox of interest; since the set
// of joined groups grows at runtime, this loop is what keeps that set
// current without restarting the process.
func GroupLoopManager(sup *Supervisor, deps Deps, rekeyCh chan<- RekeyRequest) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		started := make(map[[codec.HashSize]byte]bool)
		gen := uint64(0)
		for {
			for _, g := range deps.Store.Groups() {
				if started[g.GroupID] {
					continue
				}
				started[g.GroupID] = true
				id := g.GroupID
				sup.Go(GroupMessagesReceiveLoop(deps, id, rekeyCh))
				sup.Go(GroupManagementReceiveLoop(deps, id))
			}

			next, err := deps.Store.WaitForChange(ctx, gen)
			if err != nil {
				return err
			}
			gen = next
		}
	}
}
