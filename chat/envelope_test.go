package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullspacechat/core/crypto"
)

func TestHeaderEncryptMultiRecipient(t *testing.T) {
	alice, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)
	bob, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)
	carol, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	plaintext := []byte("hello multi-recipient world")
	envelope, err := HeaderEncrypt([][32]byte{alice.Public, bob.Public, carol.Public}, plaintext)
	require.NoError(t, err)

	for _, kp := range []crypto.DHKeyPair{alice, bob, carol} {
		got, err := HeaderDecrypt(kp.Private, kp.Public, envelope)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	}
}

func TestHeaderDecryptFailsForNonRecipient(t *testing.T) {
	alice, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)
	mallory, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	envelope, err := HeaderEncrypt([][32]byte{alice.Public}, []byte("secret"))
	require.NoError(t, err)

	_, err = HeaderDecrypt(mallory.Private, mallory.Public, envelope)
	require.Error(t, err)
}

func TestHeaderEncryptTamperedBodyFails(t *testing.T) {
	alice, err := crypto.GenerateDHKeyPair()
	require.NoError(t, err)

	envelope, err := HeaderEncrypt([][32]byte{alice.Public}, []byte("secret"))
	require.NoError(t, err)
	envelope[len(envelope)-1] ^= 0xff

	_, err = HeaderDecrypt(alice.Private, alice.Public, envelope)
	require.Error(t, err)
}
