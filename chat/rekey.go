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

// RekeyPayload is the (group_id, new_group_key) tuple a rekey message
// signs and distributes (spec §4.6).
type RekeyPayload struct {
	GroupID     [32]byte
	NewGroupKey [32]byte
}

func (p RekeyPayload) Encode(w *codec.Writer) {
	w.WriteRaw(p.GroupID[:])
	w.WriteRaw(p.NewGroupKey[:])
}

func (p *RekeyPayload) Decode(r *codec.Reader) error {
	id, err := r.ReadRaw(32)
	if err != nil {
		return err
	}
	copy(p.GroupID[:], id)
	key, err := r.ReadRaw(32)
	if err != nil {
		return err
	}
	copy(p.NewGroupKey[:], key)
	return nil
}

// BoxRekey implements spec §4.6's rekey construction: a header-encrypted,
// device-signed payload sent to the group's messages mailbox under
// KindGroupRekey. Per spec §9's resolution of the wrapping ambiguity, the
// conservative choice is made on send: always emit the tagged
// ("v1.aead_key", ...) form.
func BoxRekey(senderUsername string, certChain device.Chain, signingKey crypto.SigningKeyPair,
	groupID [32]byte, newGroupKey [32]byte, recipientMPKs [][32]byte) ([]byte, error) {

	payload := RekeyPayload{GroupID: groupID, NewGroupKey: newGroupKey}
	tagged := TaggedBlob{Kind: TagAEADKey, Inner: codec.Encode(payload)}

	signed := DeviceSign(senderUsername, certChain, signingKey, codec.Encode(tagged))
	envelope, err := HeaderEncrypt(recipientMPKs, signed)
	if err != nil {
		return nil, fmt.Errorf("chat: box rekey: %w", err)
	}
	return envelope, nil
}

// UnboxRekey implements the receive side: header-decrypt, device-verify,
// then accept either the tagged ("v1.aead_key", ...) form or the plain
// (group_id, new_group_key) form (spec §9: both forms are observed in the
// corpus and must be accepted).
func UnboxRekey(ctx context.Context, dir directory.Directory, mediumSecretCurrent [32]byte, mediumPublicCurrent [32]byte,
	mediumSecretPrevious *[32]byte, mediumPublicPrevious *[32]byte, envelope []byte) (sender string, payload RekeyPayload, err error) {

	signed, herr := HeaderDecrypt(mediumSecretCurrent, mediumPublicCurrent, envelope)
	if herr != nil && mediumSecretPrevious != nil && mediumPublicPrevious != nil {
		signed, herr = HeaderDecrypt(*mediumSecretPrevious, *mediumPublicPrevious, envelope)
	}
	if herr != nil {
		return "", RekeyPayload{}, cryptoerr.New(cryptoerr.CryptoVerification, "header decrypt", herr)
	}

	sender, body, verr := DeviceVerify(ctx, dir, signed)
	if verr != nil {
		return "", RekeyPayload{}, verr
	}

	var tagged TaggedBlob
	if derr := codec.Decode(body, &tagged); derr == nil && tagged.Kind == TagAEADKey {
		if derr := codec.Decode(tagged.Inner, &payload); derr != nil {
			return "", RekeyPayload{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode aead_key payload", derr)
		}
		return sender, payload, nil
	}

	// Fall back to the plain, untagged (group_id, new_group_key) form.
	if derr := codec.Decode(body, &payload); derr != nil {
		return "", RekeyPayload{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode rekey payload", derr)
	}
	return sender, payload, nil
}
