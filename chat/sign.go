package chat

import (
	"context"
	"fmt"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/cryptoerr"
	"github.com/nullspacechat/core/device"
	"github.com/nullspacechat/core/directory"
)

// Signed is the device-signing envelope: encode((sender_username,
// cert_chain, body, signature)) (spec §4.4). Signing covers the full
// tuple (sender_username, cert_chain, body), not just body, as a defense
// against malleability of the surrounding envelope.
type Signed struct {
	SenderUsername string
	CertChain      device.Chain
	Body           []byte
	Signature      []byte
}

func (s Signed) signedPayload() []byte {
	w := codec.NewWriter()
	w.WriteString(s.SenderUsername)
	s.CertChain.Encode(w)
	w.WriteBytes(s.Body)
	return w.Bytes()
}

// Encode writes the full signed envelope.
func (s Signed) Encode(w *codec.Writer) {
	w.WriteString(s.SenderUsername)
	s.CertChain.Encode(w)
	w.WriteBytes(s.Body)
	w.WriteBytes(s.Signature)
}

// Decode reads a signed envelope.
func (s *Signed) Decode(r *codec.Reader) error {
	var err error
	if s.SenderUsername, err = r.ReadString(); err != nil {
		return err
	}
	if err = s.CertChain.Decode(r); err != nil {
		return err
	}
	if s.Body, err = r.ReadBytes(); err != nil {
		return err
	}
	if s.Signature, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// DeviceSign signs body as senderUsername under signingKey, attaching
// certChain (the sender's device certificate chain) so a verifier can
// check it against the directory without a separate fetch.
func DeviceSign(senderUsername string, certChain device.Chain, signingKey crypto.SigningKeyPair, body []byte) []byte {
	s := Signed{SenderUsername: senderUsername, CertChain: certChain, Body: body}
	s.Signature = crypto.Sign(signingKey, s.signedPayload())
	return codec.Encode(s)
}

// DeviceVerify decodes a device-signed envelope, verifies its certificate
// chain against the directory-resolved root hash for the claimed sender,
// and verifies the signature under the chain's leaf key (spec §4.4).
func DeviceVerify(ctx context.Context, dir directory.Directory, encoded []byte) (sender string, body []byte, err error) {
	var s Signed
	if decErr := codec.Decode(encoded, &s); decErr != nil {
		return "", nil, cryptoerr.New(cryptoerr.ProtocolViolation, "decode signed envelope", decErr)
	}

	rec, err := dir.ResolveUser(ctx, s.SenderUsername)
	if err != nil {
		return "", nil, cryptoerr.New(cryptoerr.Transport, "resolve sender", err)
	}

	if verr := device.Verify(s.CertChain, rec.RootHash, nowFunc()); verr != nil {
		return "", nil, cryptoerr.New(cryptoerr.CryptoVerification, "verify cert chain", verr)
	}

	if !crypto.Verify(s.CertChain.Leaf(), s.signedPayload(), s.Signature) {
		return "", nil, cryptoerr.New(cryptoerr.CryptoVerification, "verify signature", fmt.Errorf("signature invalid"))
	}

	return s.SenderUsername, s.Body, nil
}
