// Package chat is the crypto-composition layer: header encryption,
// device signing, and the DM / group-message / rekey / management
// packagers built on top of them (spec §4.3-§4.6). This is the layer
// every wire message passes through in both directions.
package chat

import (
	"fmt"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
)

// shortTagSize is the 2-byte recipient hint size (spec §4.3).
const shortTagSize = 2

// header is one per-recipient entry in a header-encryption envelope: a
// 2-byte hint derived from the recipient's medium public key, and the
// per-message symmetric key wrapped (unauthenticated XChaCha20) under the
// DH shared secret with that recipient.
type header struct {
	Short [shortTagSize]byte
	Wrap  []byte // 32-byte wrapped symmetric key
}

func (h header) encode(w *codec.Writer) {
	w.WriteRaw(h.Short[:])
	w.WriteBytes(h.Wrap)
}

func decodeHeader(r *codec.Reader) (header, error) {
	short, err := r.ReadRaw(shortTagSize)
	if err != nil {
		return header{}, err
	}
	wrap, err := r.ReadBytes()
	if err != nil {
		return header{}, err
	}
	var h header
	copy(h.Short[:], short)
	h.Wrap = wrap
	return h, nil
}

// recipientShort computes BLAKE3(encode(mpk))[0:2], the hint identifying
// which header belongs to which recipient medium key.
func recipientShort(mpk [32]byte) [shortTagSize]byte {
	w := codec.NewWriter()
	w.WriteRaw(mpk[:])
	digest := codec.Hash(w.Bytes())
	var out [shortTagSize]byte
	copy(out[:], digest[:shortTagSize])
	return out
}

var zeroNonce24 [24]byte

// HeaderEncrypt implements spec §4.3: for every recipient medium public
// key, wrap a fresh per-message symmetric key under a DH shared secret
// with a fresh ephemeral sender keypair, then seal plaintext once under
// that symmetric key with the ephemeral public key and all headers as
// AAD. Zero nonces are safe here because both the DH shared secret and
// the symmetric key are per-message fresh.
func HeaderEncrypt(recipientMPKs [][32]byte, plaintext []byte) ([]byte, error) {
	if len(recipientMPKs) == 0 {
		return nil, fmt.Errorf("chat: header_encrypt: no recipients")
	}

	esk, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("chat: header_encrypt: generate ephemeral key: %w", err)
	}

	kBytes, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("chat: header_encrypt: random key: %w", err)
	}
	var k [32]byte
	copy(k[:], kBytes)

	headers := make([]header, 0, len(recipientMPKs))
	for _, mpk := range recipientMPKs {
		ss, err := crypto.DH(esk.Private, mpk)
		if err != nil {
			return nil, fmt.Errorf("chat: header_encrypt: dh: %w", err)
		}
		wrap, err := crypto.StreamXOR(ss, zeroNonce24, 0, k[:])
		if err != nil {
			return nil, fmt.Errorf("chat: header_encrypt: wrap: %w", err)
		}
		headers = append(headers, header{Short: recipientShort(mpk), Wrap: wrap})
	}

	headersW := codec.NewWriter()
	headersW.WriteSeqHeader(len(headers))
	for _, h := range headers {
		h.encode(headersW)
	}

	aadW := codec.NewWriter()
	aadW.WriteRaw(esk.Public[:])
	aadW.WriteRaw(headersW.Bytes())
	aad := aadW.Bytes()

	body, err := crypto.Seal(k, zeroNonce24, aad, plaintext)
	if err != nil {
		return nil, fmt.Errorf("chat: header_encrypt: seal: %w", err)
	}

	out := codec.NewWriter()
	out.WriteRaw(esk.Public[:])
	out.WriteRaw(headersW.Bytes())
	out.WriteBytes(body)
	return out.Bytes(), nil
}

// HeaderDecrypt implements the recipient side of spec §4.3: recompute the
// local recipient's short hint, and try every header whose hint matches
// (collisions are a hint, not a guarantee — all matches must be tried
// before declaring failure).
func HeaderDecrypt(ownMediumSecret [32]byte, ownMediumPublic [32]byte, envelope []byte) ([]byte, error) {
	r := codec.NewReader(envelope)
	senderEPK, err := r.ReadRaw(32)
	if err != nil {
		return nil, fmt.Errorf("chat: header_decrypt: %w", err)
	}
	var epk [32]byte
	copy(epk[:], senderEPK)

	n, err := r.ReadSeqHeader()
	if err != nil {
		return nil, fmt.Errorf("chat: header_decrypt: %w", err)
	}

	headers := make([]header, n)
	for i := range headers {
		if headers[i], err = decodeHeader(r); err != nil {
			return nil, fmt.Errorf("chat: header_decrypt: %w", err)
		}
	}

	// Reconstruct the exact headers-field bytes (seq header + each
	// header) for AAD recomputation, matching what the sender hashed.
	headersW := codec.NewWriter()
	headersW.WriteSeqHeader(len(headers))
	for _, h := range headers {
		h.encode(headersW)
	}

	body, err := r.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("chat: header_decrypt: %w", err)
	}

	aadW := codec.NewWriter()
	aadW.WriteRaw(epk[:])
	aadW.WriteRaw(headersW.Bytes())
	aad := aadW.Bytes()

	myShort := recipientShort(ownMediumPublic)
	ss, err := crypto.DH(ownMediumSecret, epk)
	if err != nil {
		return nil, fmt.Errorf("chat: header_decrypt: dh: %w", err)
	}

	var lastErr error
	for _, h := range headers {
		if h.Short != myShort {
			continue
		}
		kBytes, err := crypto.StreamXOR(ss, zeroNonce24, 0, h.Wrap)
		if err != nil {
			lastErr = err
			continue
		}
		var k [32]byte
		copy(k[:], kBytes)
		pt, err := crypto.Open(k, zeroNonce24, aad, body)
		if err != nil {
			lastErr = err
			continue
		}
		return pt, nil
	}
	if lastErr == nil {
		lastErr = crypto.ErrAuthFailed
	}
	return nil, fmt.Errorf("chat: header_decrypt: no matching header decrypted: %w", lastErr)
}
