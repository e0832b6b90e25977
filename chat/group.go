package chat

import (
	"context"
	"fmt"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/cryptoerr"
	"github.com/nullspacechat/core/device"
	"github.com/nullspacechat/core/directory"
)

// GroupMessagesMailboxID and GroupManagementMailboxID are derived from a
// group's id bytes per spec §4.6.
func GroupMessagesMailboxID(groupID [32]byte) [codec.HashSize]byte {
	return codec.KeyedHash("group-messages", groupID[:])
}

func GroupManagementMailboxID(groupID [32]byte) [codec.HashSize]byte {
	return codec.KeyedHash("group-management", groupID[:])
}

// GroupSigned is the (group_id, sender, cert_chain, blob, sig) tuple
// carried inside a group chat/management message's AEAD body. sig covers
// encode((group_id, sender, blob)) only — deliberately excluding
// cert_chain, per spec §4.6, since chain renewal must not invalidate a
// message already signed.
type GroupSigned struct {
	GroupID   [32]byte
	Sender    string
	CertChain device.Chain
	Blob      []byte
	Signature []byte
}

func (g GroupSigned) signedPayload() []byte {
	w := codec.NewWriter()
	w.WriteRaw(g.GroupID[:])
	w.WriteString(g.Sender)
	w.WriteBytes(g.Blob)
	return w.Bytes()
}

func (g GroupSigned) Encode(w *codec.Writer) {
	w.WriteRaw(g.GroupID[:])
	w.WriteString(g.Sender)
	g.CertChain.Encode(w)
	w.WriteBytes(g.Blob)
	w.WriteBytes(g.Signature)
}

func (g *GroupSigned) Decode(r *codec.Reader) error {
	id, err := r.ReadRaw(32)
	if err != nil {
		return err
	}
	copy(g.GroupID[:], id)
	if g.Sender, err = r.ReadString(); err != nil {
		return err
	}
	if err = g.CertChain.Decode(r); err != nil {
		return err
	}
	if g.Blob, err = r.ReadBytes(); err != nil {
		return err
	}
	if g.Signature, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// nonceAndCiphertext is the (nonce24, ct) body format shared by group chat
// and management messages.
type nonceAndCiphertext struct {
	Nonce [24]byte
	CT    []byte
}

func (n nonceAndCiphertext) Encode(w *codec.Writer) {
	w.WriteRaw(n.Nonce[:])
	w.WriteBytes(n.CT)
}

func (n *nonceAndCiphertext) Decode(r *codec.Reader) error {
	nonce, err := r.ReadRaw(24)
	if err != nil {
		return err
	}
	copy(n.Nonce[:], nonce)
	if n.CT, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// boxGroupSigned is the shared implementation behind BoxGroupMessage and
// BoxManagement: sign (group_id, sender, blob), then AEAD-seal the signed
// tuple under key with a fresh random nonce.
func boxGroupSigned(groupID [32]byte, senderUsername string, certChain device.Chain,
	signingKey crypto.SigningKeyPair, key [32]byte, ev Event) ([]byte, error) {

	blob := codec.Encode(messageContentBlob(ev))
	gs := GroupSigned{GroupID: groupID, Sender: senderUsername, CertChain: certChain, Blob: blob}
	gs.Signature = crypto.Sign(signingKey, gs.signedPayload())

	nonceBytes, err := crypto.RandomBytes(24)
	if err != nil {
		return nil, fmt.Errorf("chat: box group signed: nonce: %w", err)
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	ct, err := crypto.Seal(key, nonce, nil, codec.Encode(gs))
	if err != nil {
		return nil, fmt.Errorf("chat: box group signed: seal: %w", err)
	}

	return codec.Encode(nonceAndCiphertext{Nonce: nonce, CT: ct}), nil
}

// unboxGroupSigned is the shared implementation behind UnboxGroupMessage
// and UnboxManagement: open the AEAD body under key, verify the group id
// matches expected, verify the chain against the directory, verify the
// signature, and decode the inner event.
func unboxGroupSigned(ctx context.Context, dir directory.Directory, expectedGroupID [32]byte, key [32]byte, body []byte) (sender string, ev Event, err error) {
	var nc nonceAndCiphertext
	if derr := codec.Decode(body, &nc); derr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode nonce+ct", derr)
	}

	pt, oerr := crypto.Open(key, nc.Nonce, nil, nc.CT)
	if oerr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.CryptoVerification, "open group aead", oerr)
	}

	var gs GroupSigned
	if derr := codec.Decode(pt, &gs); derr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode group signed", derr)
	}
	if gs.GroupID != expectedGroupID {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "group id mismatch", nil)
	}

	rec, rerr := dir.ResolveUser(ctx, gs.Sender)
	if rerr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.Transport, "resolve sender", rerr)
	}
	if verr := device.Verify(gs.CertChain, rec.RootHash, nowFunc()); verr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.CryptoVerification, "verify cert chain", verr)
	}
	if !crypto.Verify(gs.CertChain.Leaf(), gs.signedPayload(), gs.Signature) {
		return "", Event{}, cryptoerr.New(cryptoerr.CryptoVerification, "verify signature", fmt.Errorf("signature invalid"))
	}

	var blob TaggedBlob
	if derr := codec.Decode(gs.Blob, &blob); derr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode tagged blob", derr)
	}
	if blob.Kind != TagMessageContent {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "unexpected inner tag: "+blob.Kind, nil)
	}
	if derr := codec.Decode(blob.Inner, &ev); derr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode event", derr)
	}
	return gs.Sender, ev, nil
}

// BoxGroupMessage implements spec §4.6's chat-message construction, sent
// to the group's messages mailbox under KindGroupMessage.
func BoxGroupMessage(groupID [32]byte, senderUsername string, certChain device.Chain,
	signingKey crypto.SigningKeyPair, groupKeyCurrent [32]byte, sentAtNs int64, mime string, body []byte) ([]byte, error) {

	ev := Event{Recipient: groupID[:], SentAtNs: sentAtNs, MIME: mime, Body: body}
	return boxGroupSigned(groupID, senderUsername, certChain, signingKey, groupKeyCurrent, ev)
}

// UnboxGroupMessage implements spec §4.6's receive procedure: try
// groupKeyCurrent, then groupKeyPrevious on failure.
func UnboxGroupMessage(ctx context.Context, dir directory.Directory, groupID [32]byte,
	groupKeyCurrent [32]byte, groupKeyPrevious *[32]byte, body []byte) (sender string, ev Event, err error) {

	sender, ev, err = unboxGroupSigned(ctx, dir, groupID, groupKeyCurrent, body)
	if err == nil {
		return sender, ev, nil
	}
	if groupKeyPrevious != nil {
		if sender2, ev2, err2 := unboxGroupSigned(ctx, dir, groupID, *groupKeyPrevious, body); err2 == nil {
			return sender2, ev2, nil
		}
	}
	return "", Event{}, err
}

// BoxManagement implements spec §4.6's management-message construction:
// structured identically to chat messages, but encrypted under the
// group's fixed management key rather than the rotating group key, and
// carrying JSON-mimed management events.
func BoxManagement(groupID [32]byte, senderUsername string, certChain device.Chain,
	signingKey crypto.SigningKeyPair, managementKey [32]byte, sentAtNs int64, jsonBody []byte) ([]byte, error) {

	ev := Event{Recipient: groupID[:], SentAtNs: sentAtNs, MIME: MIMEGroupManage, Body: jsonBody}
	return boxGroupSigned(groupID, senderUsername, certChain, signingKey, managementKey, ev)
}

// UnboxManagement implements the receive side of management messages.
func UnboxManagement(ctx context.Context, dir directory.Directory, groupID [32]byte, managementKey [32]byte, body []byte) (sender string, ev Event, err error) {
	return unboxGroupSigned(ctx, dir, groupID, managementKey, body)
}
