package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	require.NoError(t, err)

	msg := []byte("device signing covers this")
	sig := Sign(kp, msg)
	require.True(t, Verify(kp.Public, msg, sig))

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0xff
	require.False(t, Verify(kp.Public, tampered, sig))
}

func TestDHAgreement(t *testing.T) {
	a, err := GenerateDHKeyPair()
	require.NoError(t, err)
	b, err := GenerateDHKeyPair()
	require.NoError(t, err)

	ssA, err := DH(a.Private, b.Public)
	require.NoError(t, err)
	ssB, err := DH(b.Private, a.Public)
	require.NoError(t, err)
	require.Equal(t, ssA, ssB)
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], mustRandom(t, 32))
	var nonce [24]byte
	copy(nonce[:], mustRandom(t, 24))

	pt := []byte("plaintext body")
	aad := []byte("associated data")
	ct, err := Seal(key, nonce, aad, pt)
	require.NoError(t, err)

	got, err := Open(key, nonce, aad, ct)
	require.NoError(t, err)
	require.Equal(t, pt, got)
}

func TestOpenFailsOnBitFlip(t *testing.T) {
	var key [32]byte
	copy(key[:], mustRandom(t, 32))
	var nonce [24]byte
	copy(nonce[:], mustRandom(t, 24))

	ct, err := Seal(key, nonce, nil, []byte("hello"))
	require.NoError(t, err)
	ct[0] ^= 0x01

	_, err = Open(key, nonce, nil, ct)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestStreamXORIsInvertible(t *testing.T) {
	var key [32]byte
	copy(key[:], mustRandom(t, 32))
	var nonce [24]byte
	copy(nonce[:], mustRandom(t, 24))

	pt := []byte("32-byte symmetric key goes here")
	ct, err := StreamXOR(key, nonce, 0, pt)
	require.NoError(t, err)
	require.NotEqual(t, pt, ct)

	back, err := StreamXOR(key, nonce, 0, ct)
	require.NoError(t, err)
	require.Equal(t, pt, back)
}

func mustRandom(t *testing.T, n int) []byte {
	t.Helper()
	b, err := RandomBytes(n)
	require.NoError(t, err)
	return b
}
