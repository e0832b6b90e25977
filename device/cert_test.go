package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullspacechat/core/crypto"
)

func selfSignedRoot(t *testing.T) (crypto.SigningKeyPair, Certificate) {
	t.Helper()
	root, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	cert := Sign(root, root.Public, time.Now().Add(100*365*24*time.Hour), true)
	return root, cert
}

func TestVerifySelfSignedRootOnly(t *testing.T) {
	root, rootCert := selfSignedRoot(t)
	_ = root
	rootHash := RootHash(rootCert.PK)

	chain := Chain{This: rootCert}
	require.NoError(t, Verify(chain, rootHash, time.Now()))
}

func TestVerifyIssuedLeaf(t *testing.T) {
	root, rootCert := selfSignedRoot(t)
	rootHash := RootHash(rootCert.PK)

	device, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	leafCert := Sign(root, device.Public, time.Now().Add(24*time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert}, This: leafCert}
	require.NoError(t, Verify(chain, rootHash, time.Now()))
}

func TestVerifyRejectsUntrustedIssuer(t *testing.T) {
	_, rootCert := selfSignedRoot(t)
	rootHash := RootHash(rootCert.PK)

	attacker, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	device, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	forgedLeaf := Sign(attacker, device.Public, time.Now().Add(24*time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert}, This: forgedLeaf}
	require.Error(t, Verify(chain, rootHash, time.Now()))
}

func TestVerifyRejectsLeafIssuedByExpiredAncestor(t *testing.T) {
	root, rootCert := selfSignedRoot(t)
	rootHash := RootHash(rootCert.PK)

	mid, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	expiredMid := Sign(root, mid.Public, time.Now().Add(-time.Hour), true)

	device, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	leaf := Sign(mid, device.Public, time.Now().Add(time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert, expiredMid}, This: leaf}
	require.Error(t, Verify(chain, rootHash, time.Now()), "leaf signed by an expired-and-ignored issuer must not verify")
}

func TestVerifyRejectsExpiredLeaf(t *testing.T) {
	root, rootCert := selfSignedRoot(t)
	rootHash := RootHash(rootCert.PK)

	device, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	leaf := Sign(root, device.Public, time.Now().Add(-time.Hour), false)

	chain := Chain{Ancestors: []Certificate{rootCert}, This: leaf}
	require.Error(t, Verify(chain, rootHash, time.Now()))
}

func TestVerifyRejectsTamperedCertificate(t *testing.T) {
	root, rootCert := selfSignedRoot(t)
	rootHash := RootHash(rootCert.PK)

	device, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	leaf := Sign(root, device.Public, time.Now().Add(time.Hour), false)
	leaf.Signature[0] ^= 0xff

	chain := Chain{Ancestors: []Certificate{rootCert}, This: leaf}
	require.Error(t, Verify(chain, rootHash, time.Now()))
}
