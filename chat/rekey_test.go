package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
)

func TestRekeyRoundTripTaggedForm(t *testing.T) {
	dir := newFakeDirectory()
	admin := newTestIdentity(t, dir, "@admin")
	member, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	groupID := testGroupID(t)
	var newKey [32]byte
	copy(newKey[:], mustRandom(t, 32))

	envelope, err := BoxRekey(admin.username, admin.chain, admin.signing, groupID, newKey, [][32]byte{member.Public})
	require.NoError(t, err)

	sender, payload, err := UnboxRekey(context.Background(), dir, member.Private, member.Public, nil, nil, envelope)
	require.NoError(t, err)
	require.Equal(t, "@admin", sender)
	require.Equal(t, groupID, payload.GroupID)
	require.Equal(t, newKey, payload.NewGroupKey)
}

func TestRekeyAcceptsUntaggedForm(t *testing.T) {
	dir := newFakeDirectory()
	admin := newTestIdentity(t, dir, "@admin")
	member, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	groupID := testGroupID(t)
	var newKey [32]byte
	copy(newKey[:], mustRandom(t, 32))

	// Build the untagged legacy form by hand: sign+header_encrypt a bare
	// (group_id, new_group_key) tuple with no "v1.aead_key" wrapper.
	payload := RekeyPayload{GroupID: groupID, NewGroupKey: newKey}
	signed := DeviceSign(admin.username, admin.chain, admin.signing, codec.Encode(payload))
	envelope, err := HeaderEncrypt([][32]byte{member.Public}, signed)
	require.NoError(t, err)

	sender, got, err := UnboxRekey(context.Background(), dir, member.Private, member.Public, nil, nil, envelope)
	require.NoError(t, err)
	require.Equal(t, "@admin", sender)
	require.Equal(t, payload, got)
}
