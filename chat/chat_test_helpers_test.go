package chat

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/device"
	"github.com/nullspacechat/core/directory"
)

// fakeDirectory resolves every registered username to a fixed root hash,
// standing in for the out-of-scope directory RPC (spec §2.4).
type fakeDirectory struct {
	roots map[string][codec.HashSize]byte
}

func newFakeDirectory() *fakeDirectory { return &fakeDirectory{roots: map[string][codec.HashSize]byte{}} }

func (f *fakeDirectory) register(username string, rootHash [codec.HashSize]byte) {
	f.roots[username] = rootHash
}

func (f *fakeDirectory) ResolveUser(ctx context.Context, username string) (directory.UserRecord, error) {
	return directory.UserRecord{ServerName: "~test", RootHash: f.roots[username]}, nil
}

func (f *fakeDirectory) ResolveServer(ctx context.Context, name string) (directory.ServerRecord, error) {
	return directory.ServerRecord{}, nil
}
func (f *fakeDirectory) RegisterUser(ctx context.Context, username, serverName string, rootPK ed25519.PublicKey) error {
	return nil
}
func (f *fakeDirectory) AddOwner(ctx context.Context, username string, ownerPK ed25519.PublicKey) error {
	return nil
}
func (f *fakeDirectory) SetUserDescriptor(ctx context.Context, username string, rootHash [codec.HashSize]byte) error {
	return nil
}

type testIdentity struct {
	username string
	signing  crypto.SigningKeyPair
	chain    device.Chain
}

func newTestIdentity(t *testing.T, dir *fakeDirectory, username string) testIdentity {
	t.Helper()
	root, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	rootCert := device.Sign(root, root.Public, time.Now().Add(24*time.Hour), true)
	chain := device.Chain{This: rootCert}
	dir.register(username, device.RootHash(root.Public))
	return testIdentity{username: username, signing: root, chain: chain}
}
