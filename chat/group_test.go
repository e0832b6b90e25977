package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullspacechat/core/crypto"
)

func testGroupID(t *testing.T) [32]byte {
	t.Helper()
	b, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	var id [32]byte
	copy(id[:], b)
	return id
}

func TestGroupMessageRoundTrip(t *testing.T) {
	dir := newFakeDirectory()
	alice := newTestIdentity(t, dir, "@alice")
	groupID := testGroupID(t)

	var key [32]byte
	copy(key[:], mustRandom(t, 32))

	body, err := BoxGroupMessage(groupID, alice.username, alice.chain, alice.signing, key,
		time.Now().UnixNano(), "text/plain", []byte("hello group"))
	require.NoError(t, err)

	sender, ev, err := UnboxGroupMessage(context.Background(), dir, groupID, key, nil, body)
	require.NoError(t, err)
	require.Equal(t, "@alice", sender)
	require.Equal(t, []byte("hello group"), ev.Body)
}

func TestGroupMessageWrongGroupIDRejected(t *testing.T) {
	dir := newFakeDirectory()
	alice := newTestIdentity(t, dir, "@alice")
	groupID := testGroupID(t)
	otherGroupID := testGroupID(t)

	var key [32]byte
	copy(key[:], mustRandom(t, 32))

	body, err := BoxGroupMessage(groupID, alice.username, alice.chain, alice.signing, key,
		time.Now().UnixNano(), "text/plain", []byte("hello"))
	require.NoError(t, err)

	_, _, err = UnboxGroupMessage(context.Background(), dir, otherGroupID, key, nil, body)
	require.Error(t, err)
}

func TestGroupMessageDecryptsViaPreviousKeyAfterRekey(t *testing.T) {
	dir := newFakeDirectory()
	alice := newTestIdentity(t, dir, "@alice")
	groupID := testGroupID(t)

	var oldKey [32]byte
	copy(oldKey[:], mustRandom(t, 32))

	body, err := BoxGroupMessage(groupID, alice.username, alice.chain, alice.signing, oldKey,
		time.Now().UnixNano(), "text/plain", []byte("straggler"))
	require.NoError(t, err)

	var newKey [32]byte
	copy(newKey[:], mustRandom(t, 32))

	sender, ev, err := UnboxGroupMessage(context.Background(), dir, groupID, newKey, &oldKey, body)
	require.NoError(t, err)
	require.Equal(t, "@alice", sender)
	require.Equal(t, []byte("straggler"), ev.Body)
}

func TestGroupMessageBitFlipFails(t *testing.T) {
	dir := newFakeDirectory()
	alice := newTestIdentity(t, dir, "@alice")
	groupID := testGroupID(t)

	var key [32]byte
	copy(key[:], mustRandom(t, 32))

	body, err := BoxGroupMessage(groupID, alice.username, alice.chain, alice.signing, key,
		time.Now().UnixNano(), "text/plain", []byte("hello"))
	require.NoError(t, err)
	body[len(body)-1] ^= 0xff

	_, _, err = UnboxGroupMessage(context.Background(), dir, groupID, key, nil, body)
	require.Error(t, err)
}

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b, err := crypto.RandomBytes(n)
	require.NoError(t, err)
	return b
}
