// Package device represents device certificates and verifies certificate
// chains against a trusted root hash. A chain is a flat ordered list with
// an explicit leaf, never a parent-pointer graph — verification is a
// left-to-right fold over a growing trusted-signer set (spec §4.2, §9).
package device

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
)

// Certificate is the tuple (pk, expiry, can_issue, signature). signature
// covers the canonical encoding of (pk, expiry, can_issue) under the
// issuer's device signing key.
type Certificate struct {
	PK        ed25519.PublicKey
	Expiry    time.Time
	CanIssue  bool
	Signature []byte
}

// signedPayload returns the canonical encoding covered by Signature.
func (c Certificate) signedPayload() []byte {
	w := codec.NewWriter()
	w.WriteBytes(c.PK)
	w.WriteInt64(c.Expiry.Unix())
	w.WriteBool(c.CanIssue)
	return w.Bytes()
}

// Encode writes the full certificate, including its signature.
func (c Certificate) Encode(w *codec.Writer) {
	w.WriteBytes(c.PK)
	w.WriteInt64(c.Expiry.Unix())
	w.WriteBool(c.CanIssue)
	w.WriteBytes(c.Signature)
}

// Decode reads a full certificate.
func (c *Certificate) Decode(r *codec.Reader) error {
	pk, err := r.ReadBytes()
	if err != nil {
		return err
	}
	expiry, err := r.ReadInt64()
	if err != nil {
		return err
	}
	canIssue, err := r.ReadBool()
	if err != nil {
		return err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return err
	}
	c.PK = pk
	c.Expiry = time.Unix(expiry, 0).UTC()
	c.CanIssue = canIssue
	c.Signature = sig
	return nil
}

// Expired reports whether the certificate has expired as of at.
func (c Certificate) Expired(at time.Time) bool {
	return at.After(c.Expiry)
}

// SelfSigned reports whether the certificate's signature verifies under
// its own public key.
func (c Certificate) SelfSigned() bool {
	return crypto.Verify(c.PK, c.signedPayload(), c.Signature)
}

// VerifiesUnder reports whether the certificate's signature verifies under
// signerPK (an issuer distinct from, or equal to, the certificate's own
// key).
func (c Certificate) VerifiesUnder(signerPK ed25519.PublicKey) bool {
	return crypto.Verify(signerPK, c.signedPayload(), c.Signature)
}

// Sign produces a Certificate for pk, signed by issuer.
func Sign(issuer crypto.SigningKeyPair, pk ed25519.PublicKey, expiry time.Time, canIssue bool) Certificate {
	c := Certificate{PK: pk, Expiry: expiry, CanIssue: canIssue}
	c.Signature = crypto.Sign(issuer, c.signedPayload())
	return c
}

// Chain is the tuple (ancestors, this). A self-signed root chain has an
// empty ancestors list and a root `this` whose signature verifies under
// its own pk.
type Chain struct {
	Ancestors []Certificate
	This      Certificate
}

// Encode writes the full chain.
func (ch Chain) Encode(w *codec.Writer) {
	w.WriteSeqHeader(len(ch.Ancestors))
	for _, a := range ch.Ancestors {
		a.Encode(w)
	}
	ch.This.Encode(w)
}

// Decode reads a full chain.
func (ch *Chain) Decode(r *codec.Reader) error {
	n, err := r.ReadSeqHeader()
	if err != nil {
		return err
	}
	ch.Ancestors = make([]Certificate, n)
	for i := range ch.Ancestors {
		if err := ch.Ancestors[i].Decode(r); err != nil {
			return err
		}
	}
	return ch.This.Decode(r)
}

// RootHash computes BLAKE3(encode(pk)) for the given root public key, the
// value the directory publishes as a user's root-of-trust hash.
func RootHash(pk ed25519.PublicKey) [codec.HashSize]byte {
	w := codec.NewWriter()
	w.WriteBytes(pk)
	return codec.Hash(w.Bytes())
}

// Verify implements spec §4.2's chain-verification procedure: locate the
// self-signed root whose key hashes to rootHash, fold ancestors left to
// right growing the trusted-signer set, and finally check that This
// verifies under that set and is not expired.
func Verify(ch Chain, rootHash [codec.HashSize]byte, at time.Time) error {
	all := append(append([]Certificate{}, ch.Ancestors...), ch.This)

	var root *Certificate
	for i := range all {
		if RootHash(all[i].PK) == rootHash && all[i].SelfSigned() {
			root = &all[i]
			break
		}
	}
	if root == nil {
		return fmt.Errorf("device: no certificate in chain matches trusted root hash")
	}

	trusted := map[string]bool{string(root.PK): true}
	for _, cert := range ch.Ancestors {
		if cert.Expired(at) {
			continue // expired ancestors are ignored, not a failure
		}
		signed := false
		for signer := range trusted {
			if cert.VerifiesUnder(ed25519.PublicKey(signer)) {
				signed = true
				break
			}
		}
		if !signed {
			continue
		}
		if cert.CanIssue {
			trusted[string(cert.PK)] = true
		}
	}

	if ch.This.Expired(at) {
		return fmt.Errorf("device: leaf certificate expired")
	}
	for signer := range trusted {
		if ch.This.VerifiesUnder(ed25519.PublicKey(signer)) {
			return nil
		}
	}
	return fmt.Errorf("device: leaf certificate does not verify under any trusted signer")
}

// Leaf returns the leaf (This) certificate's public key, the key that
// signs on behalf of this chain.
func (ch Chain) Leaf() ed25519.PublicKey { return ch.This.PK }
