// Package crypto wraps the primitives the rest of nullspace composes:
// Ed25519 signing, X25519 Diffie-Hellman, XChaCha20 as a bare stream
// cipher for header key-wrap, and XChaCha20-Poly1305 as the AEAD for
// message bodies. Nothing here decides *when* to use which primitive;
// that composition lives in package chat.
package crypto

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// ErrAuthFailed is returned by Open when the AEAD tag does not verify.
var ErrAuthFailed = errors.New("crypto: authentication failed")

// SigningKeyPair is an Ed25519 device signing keypair.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKeyPair creates a fresh Ed25519 keypair.
func GenerateSigningKeyPair() (SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return SigningKeyPair{}, fmt.Errorf("crypto: generate signing key: %w", err)
	}
	return SigningKeyPair{Public: pub, Private: priv}, nil
}

// Sign signs msg with the device signing key.
func Sign(kp SigningKeyPair, msg []byte) []byte {
	return ed25519.Sign(kp.Private, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg under pk.
func Verify(pk ed25519.PublicKey, msg, sig []byte) bool {
	if len(pk) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pk, msg, sig)
}

// DHKeyPair is an X25519 keypair used for header encryption (medium-term
// keys and the per-message ephemeral sender key).
type DHKeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateDHKeyPair creates a fresh X25519 keypair.
func GenerateDHKeyPair() (DHKeyPair, error) {
	var priv [32]byte
	if _, err := cryptorand.Read(priv[:]); err != nil {
		return DHKeyPair{}, fmt.Errorf("crypto: generate dh key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return DHKeyPair{}, fmt.Errorf("crypto: derive dh public key: %w", err)
	}
	var kp DHKeyPair
	kp.Private = priv
	copy(kp.Public[:], pub)
	return kp, nil
}

// DH computes the X25519 shared secret between a local private key and a
// peer's public key.
func DH(private, peerPublic [32]byte) ([32]byte, error) {
	ss, err := curve25519.X25519(private[:], peerPublic[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("crypto: dh: %w", err)
	}
	var out [32]byte
	copy(out[:], ss)
	return out, nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := cryptorand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random bytes: %w", err)
	}
	return b, nil
}

// StreamXOR applies the bare XChaCha20 stream cipher (no authentication)
// with the given 32-byte key and 24-byte nonce, used only to key-wrap the
// per-message symmetric key inside the header-encryption envelope (spec
// §4.3). It is deliberately never used to protect anything an attacker can
// choose the plaintext of without an outer authenticator.
func StreamXOR(key [32]byte, nonce [24]byte, counter uint32, in []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: xchacha20: %w", err)
	}
	c.SetCounter(counter)
	out := make([]byte, len(in))
	c.XORKeyStream(out, in)
	return out, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under key/nonce,
// authenticating aad, and returns ciphertext||tag.
func Seal(key [32]byte, nonce [24]byte, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// Open decrypts and authenticates ciphertext produced by Seal. It returns
// ErrAuthFailed (never a lower-level error) on any verification failure, so
// callers can treat it uniformly as "drop this message" per spec §7.
func Open(key [32]byte, nonce [24]byte, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}
