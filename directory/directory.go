// Package directory declares the abstract, centralized directory
// collaborator (spec §2.4, §6). The directory is the sole root of
// cryptographic trust: it maps usernames to {server, root-of-trust hash}
// and server names to {urls, public key}. Its RPC wire format, sparse-
// Merkle-tree inclusion proofs, and transport are out of scope for this
// core — callers inject a concrete implementation satisfying Directory.
package directory

import (
	"context"
	"crypto/ed25519"

	"github.com/nullspacechat/core/codec"
)

// UserRecord is what the directory returns for a resolved username.
type UserRecord struct {
	ServerName string
	RootHash   [codec.HashSize]byte
}

// ServerRecord is what the directory returns for a resolved server name.
type ServerRecord struct {
	URLs     []string
	ServerPK ed25519.PublicKey
}

// Directory is the capability surface the crypto-composition and worker
// layers use to resolve identities and trust anchors. Every response is
// assumed to already carry an inclusion proof verified by the concrete
// implementation against a client-cached signed trust anchor (spec §6);
// that verification is outside this interface's contract.
type Directory interface {
	// ResolveUser maps a username to its hosting server and root-of-trust
	// hash.
	ResolveUser(ctx context.Context, username string) (UserRecord, error)

	// ResolveServer maps a server name to its URLs and public key.
	ResolveServer(ctx context.Context, serverName string) (ServerRecord, error)

	// RegisterUser claims username for the caller's server and root
	// device key. Used only during registration.
	RegisterUser(ctx context.Context, username, serverName string, rootPK ed25519.PublicKey) error

	// AddOwner records an additional owning device/key for an existing
	// username. Used only during registration / device provisioning.
	AddOwner(ctx context.Context, username string, ownerPK ed25519.PublicKey) error

	// SetUserDescriptor updates directory-visible metadata for username
	// (e.g. after a root key rotation). Used only during registration.
	SetUserDescriptor(ctx context.Context, username string, rootHash [codec.HashSize]byte) error
}
