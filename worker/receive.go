package worker

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/nullspacechat/core/chat"
	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/roster"
	"github.com/nullspacechat/core/store"
)

// RekeyRequest is what a messages-mailbox receive loop hands off to the
// rekey loop when it observes a KindGroupRekey entry: the rekey is parsed
// and device-verified here, but whether the sender is an authorized active
// admin depends on the locally-derived roster, which only the rekey loop
// consults (spec §4.6).
type RekeyRequest struct {
	GroupID [codec.HashSize]byte
	Sender  string
	NewKey  [32]byte
}

func mailboxCacheKey(mailboxID [codec.HashSize]byte) string {
	return hex.EncodeToString(mailboxID[:])
}

// dmReceiveBody is the body of DMReceiveLoop, factored out so tests can
// drive a single poll/dispatch iteration without an infinite loop.
func dmReceiveBody(ctx context.Context, deps Deps, id store.Identity) error {
	mailboxID := chat.DMMailboxID(id.Username)
	srv, err := deps.Dial(ctx, id.ServerName)
	if err != nil {
		return err
	}
	cacheKey := mailboxCacheKey(mailboxID)
	after := deps.Store.CursorAfter(id.ServerName, cacheKey)

	entries, err := srv.MailboxPoll(ctx, mailboxID, after)
	if err != nil {
		return err
	}

	curPriv, curPub, prevPriv, prevPub := mediumKeysOfFull(id)
	for _, e := range entries {
		switch e.Kind {
		case chat.KindDirectMessage:
			sender, ev, uerr := chat.UnboxDirect(ctx, deps.Dir, curPriv, curPub, prevPriv, prevPub, e.Body)
			if uerr != nil {
				deps.Log.Debug().Err(uerr).Msg("dropping undecryptable direct message")
				break
			}
			convo := deps.Store.EnsureConversation(store.ConvoDirect, sender)
			deps.Store.InsertReceived(convo.ID, sender, ev.MIME, ev.Body, time.Unix(0, e.ReceivedAt).UTC())
		default:
			deps.Log.Debug().Str("kind", e.Kind).Msg("dropping unrecognized dm mailbox entry")
		}
		deps.Store.AdvanceCursor(id.ServerName, cacheKey, e.ReceivedAt)
	}
	return nil
}

// DMReceiveLoop long-polls the local identity's own DM mailbox and
// delivers direct messages into conversation history (spec §4.8).
func DMReceiveLoop(deps Deps) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		delay := time.Duration(0)
		for {
			id, ok := deps.Store.Identity()
			if !ok {
				if err := sleep(ctx, deps.Config.PollBackoffMin); err != nil {
					return err
				}
				continue
			}
			if err := dmReceiveBody(ctx, deps, id); err != nil {
				delay = backoff(delay, deps.Config.PollBackoffMin, deps.Config.PollBackoffMax)
				if err := sleep(ctx, delay); err != nil {
					return err
				}
				continue
			}
			delay = 0
		}
	}
}

func mediumKeysOfFull(id store.Identity) (currentPriv [32]byte, currentPub [32]byte, prevPriv *[32]byte, prevPub *[32]byte) {
	return id.MediumSecretCurrent, id.MediumPublicCurrent, id.MediumSecretPrevious, id.MediumPublicPrevious
}

// GroupMessagesReceiveLoop long-polls one group's messages mailbox,
// dispatching chat messages into conversation history and handing rekey
// entries off to rekeyCh for the rekey loop to authorize and apply.
func GroupMessagesReceiveLoop(deps Deps, groupID [codec.HashSize]byte, rekeyCh chan<- RekeyRequest) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		delay := time.Duration(0)
		for {
			g, ok := deps.Store.Group(groupID)
			if !ok {
				return nil // left the group; this loop's work is done
			}
			id, ok := deps.Store.Identity()
			if !ok {
				if err := sleep(ctx, deps.Config.PollBackoffMin); err != nil {
					return err
				}
				continue
			}

			mailboxID := chat.GroupMessagesMailboxID(groupID)
			cacheKey := mailboxCacheKey(mailboxID)
			srv, err := deps.Dial(ctx, g.ServerName)
			if err != nil {
				delay = backoff(delay, deps.Config.PollBackoffMin, deps.Config.PollBackoffMax)
				if serr := sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}

			after := deps.Store.CursorAfter(g.ServerName, cacheKey)
			entries, perr := srv.MailboxPoll(ctx, mailboxID, after)
			if perr != nil {
				delay = backoff(delay, deps.Config.PollBackoffMin, deps.Config.PollBackoffMax)
				if serr := sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}

			for _, e := range entries {
				switch e.Kind {
				case chat.KindGroupMessage:
					sender, ev, uerr := chat.UnboxGroupMessage(ctx, deps.Dir, groupID, g.GroupKeyCurrent, g.GroupKeyPrevious, e.Body)
					if uerr != nil {
						deps.Log.Debug().Err(uerr).Msg("dropping undecryptable group message")
						break
					}
					convo := deps.Store.EnsureConversation(store.ConvoGroup, groupIDToHex(groupID))
					deps.Store.InsertReceived(convo.ID, sender, ev.MIME, ev.Body, time.Unix(0, e.ReceivedAt).UTC())

				case chat.KindGroupRekey:
					curPriv, curPub, prevPriv, prevPub := mediumKeysOfFull(id)
					sender, payload, uerr := chat.UnboxRekey(ctx, deps.Dir, curPriv, curPub, prevPriv, prevPub, e.Body)
					if uerr != nil {
						deps.Log.Debug().Err(uerr).Msg("dropping undecryptable rekey")
						break
					}
					select {
					case rekeyCh <- RekeyRequest{GroupID: payload.GroupID, Sender: sender, NewKey: payload.NewGroupKey}:
					case <-ctx.Done():
						return ctx.Err()
					}

				default:
					deps.Log.Debug().Str("kind", e.Kind).Msg("dropping unrecognized group messages entry")
				}
				deps.Store.AdvanceCursor(g.ServerName, cacheKey, e.ReceivedAt)
			}
			delay = 0
		}
	}
}

// GroupManagementReceiveLoop long-polls one group's management mailbox,
// appending each verified event to the store's management log and
// recomputing the derived roster (spec §4.7).
func GroupManagementReceiveLoop(deps Deps, groupID [codec.HashSize]byte) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		delay := time.Duration(0)
		for {
			g, ok := deps.Store.Group(groupID)
			if !ok {
				return nil
			}
			mailboxID := chat.GroupManagementMailboxID(groupID)
			cacheKey := mailboxCacheKey(mailboxID)
			srv, err := deps.Dial(ctx, g.ServerName)
			if err != nil {
				delay = backoff(delay, deps.Config.PollBackoffMin, deps.Config.PollBackoffMax)
				if serr := sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}

			after := deps.Store.CursorAfter(g.ServerName, cacheKey)
			entries, perr := srv.MailboxPoll(ctx, mailboxID, after)
			if perr != nil {
				delay = backoff(delay, deps.Config.PollBackoffMin, deps.Config.PollBackoffMax)
				if serr := sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}

			changed := false
			for _, e := range entries {
				if e.Kind != chat.KindGroupManagement {
					deps.Store.AdvanceCursor(g.ServerName, cacheKey, e.ReceivedAt)
					continue
				}
				sender, ev, uerr := chat.UnboxManagement(ctx, deps.Dir, groupID, g.Descriptor.ManagementKey, e.Body)
				if uerr != nil {
					deps.Log.Debug().Err(uerr).Msg("dropping undecryptable management message")
					deps.Store.AdvanceCursor(g.ServerName, cacheKey, e.ReceivedAt)
					continue
				}
				var body roster.EventBody
				if jerr := json.Unmarshal(ev.Body, &body); jerr != nil {
					deps.Log.Debug().Err(jerr).Msg("dropping malformed management event")
					deps.Store.AdvanceCursor(g.ServerName, cacheKey, e.ReceivedAt)
					continue
				}
				deps.Store.AppendManagementEvent(groupID, roster.Event{Sender: sender, Kind: body.Kind, Target: body.Target})
				changed = true
				deps.Store.AdvanceCursor(g.ServerName, cacheKey, e.ReceivedAt)
			}

			if changed {
				log := deps.Store.ManagementEvents(groupID)
				computed := roster.Compute(g.Descriptor.InitAdmin, log)
				members := make(map[string]store.GroupMember, len(computed))
				for username, m := range computed {
					members[username] = store.GroupMember{GroupID: groupID, Username: username, Status: store.MemberStatus(m.Status), IsAdmin: m.Admin}
				}
				deps.Store.ReplaceRoster(groupID, members)
			}
			delay = 0
		}
	}
}
