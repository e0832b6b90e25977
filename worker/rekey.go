package worker

import (
	"context"

	"github.com/nullspacechat/core/store"
)

// isActiveAdmin mirrors roster's active-admin predicate over the store's
// derived membership rows, since the rekey loop only has the derived
// roster (not the roster engine's internal Member type) to consult.
func isActiveAdmin(members []store.GroupMember, username string) bool {
	for _, m := range members {
		if m.Username != username {
			continue
		}
		return m.IsAdmin && m.Status != store.MemberBanned
	}
	return false
}

// RekeyLoop consumes rekey requests forwarded by the messages-mailbox
// receive loops, applying each only if its sender is an active admin per
// the locally-derived roster at the moment of receipt (spec §4.6). An
// unauthorized rekey is silently dropped, matching the roster engine's
// tolerance for an adversarial log.
func RekeyLoop(deps Deps, rekeyCh <-chan RekeyRequest) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for {
			select {
			case req, ok := <-rekeyCh:
				if !ok {
					return nil
				}
				members := deps.Store.Members(req.GroupID)
				if !isActiveAdmin(members, req.Sender) {
					deps.Log.Debug().Str("sender", req.Sender).Msg("dropping rekey from non-admin sender")
					continue
				}
				if err := deps.Store.Rekey(req.GroupID, req.NewKey); err != nil {
					deps.Log.Debug().Err(err).Msg("dropping rekey for unknown group")
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
