package chat

import (
	"github.com/nullspacechat/core/codec"
)

// Wire kinds (spec §6), stable across implementations.
const (
	KindDirectMessage   = "v1.direct_message"
	KindGroupMessage    = "v1.group_message"
	KindGroupRekey      = "v1.group_rekey"
	KindGroupManagement = "v1.group_management"
	TagMessageContent   = "v1.message_content"
	TagAEADKey          = "v1.aead_key"

	MIMEGroupManage = "application/vnd.nullspace.v1.group_manage"
)

// TaggedBlob is the externally-tagged (kind_string, inner_bytes) envelope
// (spec §6 glossary: "Envelope / tagged blob").
type TaggedBlob struct {
	Kind  string
	Inner []byte
}

// Encode writes the tagged blob.
func (t TaggedBlob) Encode(w *codec.Writer) {
	w.WriteString(t.Kind)
	w.WriteBytes(t.Inner)
}

// Decode reads a tagged blob.
func (t *TaggedBlob) Decode(r *codec.Reader) error {
	var err error
	if t.Kind, err = r.ReadString(); err != nil {
		return err
	}
	if t.Inner, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// Event is the plaintext payload (recipient, sent_at_ns, mime, body)
// (spec §6). Recipient is a username's bytes for direct messages, or a
// group id's bytes for group messages.
type Event struct {
	Recipient []byte
	SentAtNs  int64
	MIME      string
	Body      []byte
}

// Encode writes the event tuple.
func (e Event) Encode(w *codec.Writer) {
	w.WriteBytes(e.Recipient)
	w.WriteInt64(e.SentAtNs)
	w.WriteString(e.MIME)
	w.WriteBytes(e.Body)
}

// Decode reads an event tuple.
func (e *Event) Decode(r *codec.Reader) error {
	var err error
	if e.Recipient, err = r.ReadBytes(); err != nil {
		return err
	}
	if e.SentAtNs, err = r.ReadInt64(); err != nil {
		return err
	}
	if e.MIME, err = r.ReadString(); err != nil {
		return err
	}
	if e.Body, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// messageContentBlob wraps an Event as a "v1.message_content" tagged
// blob, the common inner payload of both DM and group chat messages.
func messageContentBlob(ev Event) TaggedBlob {
	return TaggedBlob{Kind: TagMessageContent, Inner: codec.Encode(ev)}
}
