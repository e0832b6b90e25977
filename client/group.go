package client

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nullspacechat/core/chat"
	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/cryptoerr"
	"github.com/nullspacechat/core/roster"
	"github.com/nullspacechat/core/server"
	"github.com/nullspacechat/core/store"
)

// base64url is a byte slice that marshals as base64url with no
// padding (spec.md line 149's "group_key (base64url no-padding)").
type base64url []byte

func (b base64url) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

func (b *base64url) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("client: decode base64url: %w", err)
	}
	*b = decoded
	return nil
}

func (c *Client) signingKey(id store.Identity) crypto.SigningKeyPair {
	return crypto.SigningKeyPair{Public: id.DeviceSigningPublic, Private: id.DeviceSigningSecret}
}

// ConvoCreateGroup creates a new group hosted on serverName, owned by the
// caller as its initial admin (spec §4.13 supplement). The creator's own
// membership is synthesized by the roster engine's initial state; no
// management event is posted for it.
func (c *Client) ConvoCreateGroup(ctx context.Context, serverName string) ([codec.HashSize]byte, error) {
	id, ok := c.store.Identity()
	if !ok {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}

	var nonce [32]byte
	nb, err := crypto.RandomBytes(32)
	if err != nil {
		return [codec.HashSize]byte{}, fmt.Errorf("client: create group: %w", err)
	}
	copy(nonce[:], nb)

	mkBytes, err := crypto.RandomBytes(32)
	if err != nil {
		return [codec.HashSize]byte{}, fmt.Errorf("client: create group: %w", err)
	}
	var managementKey [32]byte
	copy(managementKey[:], mkBytes)

	groupKP, err := crypto.RandomBytes(32)
	if err != nil {
		return [codec.HashSize]byte{}, fmt.Errorf("client: create group: %w", err)
	}
	var groupKey [32]byte
	copy(groupKey[:], groupKP)

	descriptor := store.GroupDescriptor{
		Nonce:         nonce,
		InitAdmin:     id.Username,
		CreatedAt:     time.Now().UTC(),
		ServerName:    serverName,
		ManagementKey: managementKey,
	}
	groupID := descriptor.GroupID()

	srv, err := c.dial(ctx, serverName)
	if err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Transport, "dial group server", err)
	}
	if err := srv.RegisterGroup(ctx, groupID); err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Transport, "register group", err)
	}

	acl := server.MailboxACL{CanSend: true, CanRecv: true, CanEditACL: true}
	authToken, err := srv.DeviceAuth(ctx, id.CertChain)
	if err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Transport, "device auth", err)
	}
	if err := srv.SetMailboxACL(ctx, chat.GroupMessagesMailboxID(groupID), authToken, acl); err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Transport, "set messages acl", err)
	}
	if err := srv.SetMailboxACL(ctx, chat.GroupManagementMailboxID(groupID), authToken, acl); err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Transport, "set management acl", err)
	}

	c.store.UpsertGroup(store.Group{
		GroupID:         groupID,
		Descriptor:      descriptor,
		ServerName:      serverName,
		GroupToken:      authToken,
		GroupKeyCurrent: groupKey,
		RosterVersion:   0,
	})
	c.store.ReplaceRoster(groupID, map[string]store.GroupMember{
		id.Username: {GroupID: groupID, Username: id.Username, Status: store.MemberAccepted, IsAdmin: true},
	})
	c.store.EnsureConversation(store.ConvoGroup, hex.EncodeToString(groupID[:]))

	return groupID, nil
}

// GroupMembers returns a group's current derived membership.
func (c *Client) GroupMembers(groupID [codec.HashSize]byte) []store.GroupMember {
	return c.store.Members(groupID)
}

// groupDescriptorJSON mirrors store.GroupDescriptor's fields as a JSON
// object (spec.md line 149's "descriptor object").
type groupDescriptorJSON struct {
	Nonce         base64url `json:"nonce"`
	InitAdmin     string    `json:"init_admin"`
	CreatedAt     int64     `json:"created_at"`
	ServerName    string    `json:"server_name"`
	ManagementKey base64url `json:"management_key"`
}

func toDescriptorJSON(d store.GroupDescriptor) groupDescriptorJSON {
	return groupDescriptorJSON{
		Nonce:         d.Nonce[:],
		InitAdmin:     d.InitAdmin,
		CreatedAt:     d.CreatedAt.UnixNano(),
		ServerName:    d.ServerName,
		ManagementKey: d.ManagementKey[:],
	}
}

func (j groupDescriptorJSON) toStore() (store.GroupDescriptor, error) {
	var d store.GroupDescriptor
	if len(j.Nonce) != len(d.Nonce) {
		return d, fmt.Errorf("client: invite descriptor: bad nonce length")
	}
	if len(j.ManagementKey) != len(d.ManagementKey) {
		return d, fmt.Errorf("client: invite descriptor: bad management key length")
	}
	copy(d.Nonce[:], j.Nonce)
	copy(d.ManagementKey[:], j.ManagementKey)
	d.InitAdmin = j.InitAdmin
	d.CreatedAt = time.Unix(0, j.CreatedAt).UTC()
	d.ServerName = j.ServerName
	return d, nil
}

// groupInvitePayload is the JSON body of a group-invite DM (spec.md line
// 149): enough for the invitee to construct the local Group row and
// start polling its mailboxes without having ever seen the management
// log.
type groupInvitePayload struct {
	Descriptor groupDescriptorJSON `json:"descriptor"`
	GroupKey   base64url           `json:"group_key"`
	Token      string              `json:"token"`
	CreatedAt  int64               `json:"created_at"`
}

// MIMEGroupInvite is the content-type of an invite DM's body.
const MIMEGroupInvite = "application/vnd.nullspace.v1.group_invite"

// GroupInvite invites username to groupID: posts an {invite_sent: u}
// management event so existing members learn of the pending invite, and
// DMs the invitee the material needed to join (spec §4.13 supplement —
// the invite_sent event alone can't onboard someone with no prior
// knowledge of the group's descriptor or keys).
func (c *Client) GroupInvite(ctx context.Context, groupID [codec.HashSize]byte, username string) error {
	id, ok := c.store.Identity()
	if !ok {
		return cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}
	g, ok := c.store.Group(groupID)
	if !ok {
		return cryptoerr.New(cryptoerr.Precondition, "unknown group", nil)
	}

	if err := c.postManagementEvent(ctx, g, id, roster.EventBody{Kind: roster.EventInviteSent, Target: username}); err != nil {
		return err
	}

	now := time.Now().UnixNano()
	payload := groupInvitePayload{
		Descriptor: toDescriptorJSON(g.Descriptor),
		GroupKey:   g.GroupKeyCurrent[:],
		Token:      g.GroupToken,
		CreatedAt:  now,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: group invite: %w", err)
	}

	mpks, err := c.fetchMediumPKs(ctx, username)
	if err != nil {
		return err
	}
	envelope, err := chat.BoxDirect(id.Username, id.CertChain, c.signingKey(id), username, now, MIMEGroupInvite, body, mpks)
	if err != nil {
		return fmt.Errorf("client: group invite: %w", err)
	}

	rec, err := c.dir.ResolveUser(ctx, username)
	if err != nil {
		return cryptoerr.New(cryptoerr.Transport, "resolve invitee", err)
	}
	srv, err := c.dial(ctx, rec.ServerName)
	if err != nil {
		return cryptoerr.New(cryptoerr.Transport, "dial invitee server", err)
	}
	return srv.MailboxSend(ctx, chat.DMMailboxID(username), chat.KindDirectMessage, envelope)
}

func (c *Client) postManagementEvent(ctx context.Context, g store.Group, id store.Identity, ev roster.EventBody) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("client: post management event: %w", err)
	}
	signed, err := chat.BoxManagement(g.GroupID, id.Username, id.CertChain, c.signingKey(id), g.Descriptor.ManagementKey, time.Now().UnixNano(), body)
	if err != nil {
		return fmt.Errorf("client: post management event: %w", err)
	}
	srv, err := c.dial(ctx, g.ServerName)
	if err != nil {
		return cryptoerr.New(cryptoerr.Transport, "dial group server", err)
	}
	return srv.MailboxSend(ctx, chat.GroupManagementMailboxID(g.GroupID), chat.KindGroupManagement, signed)
}

func (c *Client) fetchMediumPKs(ctx context.Context, username string) ([][32]byte, error) {
	rec, err := c.dir.ResolveUser(ctx, username)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.Transport, "resolve user", err)
	}
	srv, err := c.dial(ctx, rec.ServerName)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.Transport, "dial server", err)
	}
	signed, err := srv.FetchMediumPKs(ctx, username)
	if err != nil {
		return nil, cryptoerr.New(cryptoerr.Transport, "fetch medium pks", err)
	}
	out := make([][32]byte, 0, len(signed))
	for _, s := range signed {
		out = append(out, s.PK)
	}
	return out, nil
}

// GroupAcceptInvite reads a previously received invite DM and joins the
// group it describes: installs the local Group row, then posts an
// "invite_accepted" management event under the caller's own identity
// (spec §4.13 supplement, §4.7).
func (c *Client) GroupAcceptInvite(ctx context.Context, dmID string) ([codec.HashSize]byte, error) {
	id, ok := c.store.Identity()
	if !ok {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}
	msg, ok := c.store.MessageByID(dmID)
	if !ok || msg.MIME != MIMEGroupInvite {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.Precondition, "not a group invite message", nil)
	}

	var payload groupInvitePayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode invite payload", err)
	}
	descriptor, err := payload.Descriptor.toStore()
	if err != nil {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode invite descriptor", err)
	}
	if len(payload.GroupKey) != 32 {
		return [codec.HashSize]byte{}, cryptoerr.New(cryptoerr.ProtocolViolation, "bad invite group key length", nil)
	}
	var groupKey [32]byte
	copy(groupKey[:], payload.GroupKey)
	groupID := descriptor.GroupID()

	c.store.UpsertGroup(store.Group{
		GroupID:         groupID,
		Descriptor:      descriptor,
		ServerName:      descriptor.ServerName,
		GroupToken:      payload.Token,
		GroupKeyCurrent: groupKey,
		RosterVersion:   0,
	})
	c.store.EnsureConversation(store.ConvoGroup, hex.EncodeToString(groupID[:]))

	g, _ := c.store.Group(groupID)
	if err := c.postManagementEvent(ctx, g, id, roster.EventBody{Kind: roster.EventInviteAccepted}); err != nil {
		return [codec.HashSize]byte{}, err
	}
	return groupID, nil
}
