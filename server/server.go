// Package server declares the abstract, untrusted per-user server
// collaborator (spec §2.4, §6). A server hosts mailboxes and publishes
// device metadata; it is never trusted with plaintext or identity — every
// byte it returns is adversarial input to the crypto-composition layer.
// Mailbox RPC transport and ACL storage are out of scope for this core.
package server

import (
	"context"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/device"
)

// SignedMediumPK is a medium-term X25519 public key signed by its owning
// device, as published to and fetched from a server.
type SignedMediumPK struct {
	Owner     string
	PK        [32]byte
	Signature []byte
	SignerPK  []byte // device signing public key the Signature verifies under
}

// MailboxACL gates who may act on a mailbox.
type MailboxACL struct {
	CanSend      bool
	CanRecv      bool
	CanEditACL   bool
}

// MailboxEntry is one entry returned by a mailbox poll.
type MailboxEntry struct {
	EntryID         string
	ReceivedAt      int64 // server-assigned monotonic nanoseconds
	Kind            string
	Body            []byte
	SenderTokenHash []byte
}

// Server is the capability surface the send/receive loops and
// registration flow use against one user's hosting server.
type Server interface {
	// DeviceAuth authenticates chain with the server, returning an
	// opaque token used to authorize subsequent mailbox operations.
	DeviceAuth(ctx context.Context, chain device.Chain) (authToken string, err error)

	// PublishMediumPK publishes a freshly-signed medium-term public key.
	PublishMediumPK(ctx context.Context, signed SignedMediumPK) error

	// FetchMediumPKs returns every medium-term public key currently
	// published for username (there may be more than one device).
	FetchMediumPKs(ctx context.Context, username string) ([]SignedMediumPK, error)

	// FetchCertChain returns username's current device certificate
	// chain.
	FetchCertChain(ctx context.Context, username string) (device.Chain, error)

	// RegisterGroup registers a new group mailbox pair under groupID.
	RegisterGroup(ctx context.Context, groupID [codec.HashSize]byte) error

	// SetMailboxACL sets the access-control policy for mailboxID, gated
	// by authToken.
	SetMailboxACL(ctx context.Context, mailboxID [codec.HashSize]byte, authToken string, acl MailboxACL) error

	// MailboxSend appends an entry of the given kind to mailboxID.
	MailboxSend(ctx context.Context, mailboxID [codec.HashSize]byte, kind string, body []byte) error

	// MailboxPoll long-polls mailboxID for entries with ReceivedAt after
	// afterTS (exclusive, per spec §9's resolution of the open question
	// on boundary semantics).
	MailboxPoll(ctx context.Context, mailboxID [codec.HashSize]byte, afterTS int64) ([]MailboxEntry, error)
}
