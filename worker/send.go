package worker

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"time"

	"github.com/nullspacechat/core/chat"
	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/store"
)

// errConvoGone is returned when a pending message's conversation or group
// has disappeared from the store between enqueue and send.
var errConvoGone = errors.New("worker: conversation no longer present")

func signingKeyOf(id store.Identity) crypto.SigningKeyPair {
	return crypto.SigningKeyPair{
		Public:  ed25519.PublicKey(id.DeviceSigningPublic),
		Private: ed25519.PrivateKey(id.DeviceSigningSecret),
	}
}

func groupIDFromHex(s string) ([32]byte, error) {
	var id [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

func groupIDToHex(id [32]byte) string { return hex.EncodeToString(id[:]) }

// fetchRecipientMPKs resolves a username's server and fetches every
// current medium public key it has published.
func fetchRecipientMPKs(ctx context.Context, deps Deps, username string) ([][32]byte, error) {
	rec, err := deps.Dir.ResolveUser(ctx, username)
	if err != nil {
		return nil, err
	}
	srv, err := deps.Dial(ctx, rec.ServerName)
	if err != nil {
		return nil, err
	}
	signed, err := srv.FetchMediumPKs(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(signed))
	for _, s := range signed {
		out = append(out, s.PK)
	}
	return out, nil
}

// SendLoop drains pending outbound messages and performs the mailbox_send
// RPC for each, marking success or failure in the store (spec §4.8).
// Per-conversation ordering is FIFO because Store.PendingOutbound already
// returns messages in that order; inter-conversation order is
// unspecified.
func SendLoop(deps Deps) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		delay := time.Duration(0)
		for {
			pending := deps.Store.PendingOutbound()
			if len(pending) == 0 {
				gen := deps.Store.Generation()
				if _, err := deps.Store.WaitForChange(ctx, gen); err != nil {
					return err
				}
				continue
			}

			id, ok := deps.Store.Identity()
			if !ok {
				if err := sleep(ctx, deps.Config.PollBackoffMin); err != nil {
					return err
				}
				continue
			}

			anyFailure := false
			for _, m := range pending {
				if err := sendOne(ctx, deps, id, m); err != nil {
					deps.Log.Debug().Err(err).Str("message_id", m.ID).Msg("send failed, will retry other messages")
					deps.Store.ResolveSendError(m.ID, err.Error(), time.Now().UTC())
					anyFailure = true
					continue
				}
				deps.Store.ResolveSendOK(m.ID, time.Now().UTC())
			}

			if anyFailure {
				delay = backoff(delay, deps.Config.PollBackoffMin, deps.Config.PollBackoffMax)
				if err := sleep(ctx, delay); err != nil {
					return err
				}
			} else {
				delay = 0
			}
		}
	}
}

func sendOne(ctx context.Context, deps Deps, id store.Identity, m store.ConversationMessage) error {
	convo, ok := deps.Store.ConversationByID(m.ConvoID)
	if !ok {
		return errConvoGone
	}

	switch convo.Kind {
	case store.ConvoDirect:
		mpks, err := fetchRecipientMPKs(ctx, deps, convo.Counterparty)
		if err != nil {
			return err
		}
		envelope, err := chat.BoxDirect(id.Username, id.CertChain, signingKeyOf(id),
			convo.Counterparty, time.Now().UnixNano(), m.MIME, m.Body, mpks)
		if err != nil {
			return err
		}
		rec, err := deps.Dir.ResolveUser(ctx, convo.Counterparty)
		if err != nil {
			return err
		}
		srv, err := deps.Dial(ctx, rec.ServerName)
		if err != nil {
			return err
		}
		dmMailbox := chat.DMMailboxID(convo.Counterparty)
		return srv.MailboxSend(ctx, dmMailbox, chat.KindDirectMessage, envelope)

	case store.ConvoGroup:
		groupID, err := groupIDFromHex(convo.Counterparty)
		if err != nil {
			return err
		}
		g, ok := deps.Store.Group(groupID)
		if !ok {
			return errConvoGone
		}
		body, err := chat.BoxGroupMessage(groupID, id.Username, id.CertChain, signingKeyOf(id),
			g.GroupKeyCurrent, time.Now().UnixNano(), m.MIME, m.Body)
		if err != nil {
			return err
		}
		srv, err := deps.Dial(ctx, g.ServerName)
		if err != nil {
			return err
		}
		mailboxID := chat.GroupMessagesMailboxID(groupID)
		return srv.MailboxSend(ctx, mailboxID, chat.KindGroupMessage, body)
	}
	return errConvoGone
}
