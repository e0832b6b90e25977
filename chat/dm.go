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

// DMMailboxID derives a user's own direct-message mailbox id from their
// username, following the same BLAKE3_keyed domain-separation pattern
// spec §4.6 defines for group mailboxes.
func DMMailboxID(username string) [codec.HashSize]byte {
	return codec.KeyedHash("direct-messages", []byte(username))
}

// BoxDirect implements the outbound half of spec §4.5: build the event,
// wrap it as "v1.message_content", device-sign it, and header-encrypt the
// signed blob for every recipient medium public key. The returned bytes
// are sent to the recipient's DM mailbox under KindDirectMessage.
func BoxDirect(senderUsername string, certChain device.Chain, signingKey crypto.SigningKeyPair,
	recipientUsername string, sentAtNs int64, mime string, body []byte, recipientMPKs [][32]byte) ([]byte, error) {

	ev := Event{Recipient: []byte(recipientUsername), SentAtNs: sentAtNs, MIME: mime, Body: body}
	blob := messageContentBlob(ev)
	signed := DeviceSign(senderUsername, certChain, signingKey, codec.Encode(blob))

	envelope, err := HeaderEncrypt(recipientMPKs, signed)
	if err != nil {
		return nil, fmt.Errorf("chat: box direct: %w", err)
	}
	return envelope, nil
}

// UnboxDirect implements the inbound half of spec §4.5: try the current
// medium secret, then the previous on failure, device-verify, assert the
// inner tag, and decode the event. Any cryptographic or protocol failure
// is returned as a classified, droppable error (spec §7) — callers must
// never surface it as message content.
func UnboxDirect(ctx context.Context, dir directory.Directory, mediumSecretCurrent [32]byte, mediumPublicCurrent [32]byte,
	mediumSecretPrevious *[32]byte, mediumPublicPrevious *[32]byte, envelope []byte) (sender string, ev Event, err error) {

	signed, herr := HeaderDecrypt(mediumSecretCurrent, mediumPublicCurrent, envelope)
	if herr != nil && mediumSecretPrevious != nil && mediumPublicPrevious != nil {
		signed, herr = HeaderDecrypt(*mediumSecretPrevious, *mediumPublicPrevious, envelope)
	}
	if herr != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.CryptoVerification, "header decrypt", herr)
	}

	sender, body, verr := DeviceVerify(ctx, dir, signed)
	if verr != nil {
		return "", Event{}, verr
	}

	var blob TaggedBlob
	if err := codec.Decode(body, &blob); err != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode tagged blob", err)
	}
	if blob.Kind != TagMessageContent {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "unexpected inner tag: "+blob.Kind, nil)
	}

	if err := codec.Decode(blob.Inner, &ev); err != nil {
		return "", Event{}, cryptoerr.New(cryptoerr.ProtocolViolation, "decode event", err)
	}
	return sender, ev, nil
}
