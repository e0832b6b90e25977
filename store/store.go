// Package store is nullspace's local, append-only-by-convention state: the
// one-row identity, conversations, messages, groups, group members,
// mailbox cursors, and the pending-send queue. Spec §1 puts SQLite
// migration DDL out of scope, so this is an in-process, mutex-guarded
// store with the same row shapes a relational schema would have — the
// interface this package exposes is what a `database/sql`-backed
// implementation would also need to satisfy.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/device"
	"github.com/nullspacechat/core/roster"
)

// ConvoKind distinguishes direct-message conversations from group
// conversations.
type ConvoKind string

const (
	ConvoDirect ConvoKind = "direct"
	ConvoGroup  ConvoKind = "group"
)

// MemberStatus is a group member's membership state.
type MemberStatus string

const (
	MemberPending MemberStatus = "pending"
	MemberAccepted MemberStatus = "accepted"
	MemberBanned  MemberStatus = "banned"
)

// Identity is the single, exclusive-to-the-process identity row.
type Identity struct {
	Username             string
	ServerName           string
	DeviceSigningSecret  []byte // ed25519.PrivateKey bytes
	DeviceSigningPublic  []byte
	CertChain            device.Chain
	MediumSecretCurrent  [32]byte
	MediumPublicCurrent  [32]byte
	MediumSecretPrevious *[32]byte
	MediumPublicPrevious *[32]byte
}

// Conversation is (id, kind, counterparty, created_at); unique on
// (kind, counterparty).
type Conversation struct {
	ID           string
	Kind         ConvoKind
	Counterparty string // username for direct, group id (hex) for group
	CreatedAt    time.Time
}

// ConversationMessage is one row of conversation history.
type ConversationMessage struct {
	ID             string
	ConvoID        string
	SenderUsername string
	MIME           string
	Body           []byte
	SendError      *string
	ReceivedAt     *time.Time
}

// GroupDescriptor is the tuple group_id is derived from:
// BLAKE3(encode(descriptor)).
type GroupDescriptor struct {
	Nonce          [32]byte
	InitAdmin      string
	CreatedAt      time.Time
	ServerName     string
	ManagementKey  [32]byte
}

// Encode writes the canonical descriptor encoding.
func (d GroupDescriptor) Encode(w *codec.Writer) {
	w.WriteRaw(d.Nonce[:])
	w.WriteString(d.InitAdmin)
	w.WriteInt64(d.CreatedAt.UnixNano())
	w.WriteString(d.ServerName)
	w.WriteRaw(d.ManagementKey[:])
}

// Decode reads a descriptor.
func (d *GroupDescriptor) Decode(r *codec.Reader) error {
	nonce, err := r.ReadRaw(32)
	if err != nil {
		return err
	}
	copy(d.Nonce[:], nonce)
	if d.InitAdmin, err = r.ReadString(); err != nil {
		return err
	}
	ts, err := r.ReadInt64()
	if err != nil {
		return err
	}
	d.CreatedAt = time.Unix(0, ts).UTC()
	if d.ServerName, err = r.ReadString(); err != nil {
		return err
	}
	mk, err := r.ReadRaw(32)
	if err != nil {
		return err
	}
	copy(d.ManagementKey[:], mk)
	return nil
}

// GroupID computes BLAKE3(encode(descriptor)), the group's identifier.
func (d GroupDescriptor) GroupID() [codec.HashSize]byte { return codec.ID(d) }

// Group is a joined group's local descriptor, keys, and roster version.
type Group struct {
	GroupID           [codec.HashSize]byte
	Descriptor        GroupDescriptor
	ServerName        string
	GroupToken        string
	GroupKeyCurrent   [32]byte
	GroupKeyPrevious  *[32]byte
	RosterVersion     uint64
}

// GroupMember is derived (not authoritative) from replaying the
// management log; rebuilt wholesale on each replay.
type GroupMember struct {
	GroupID  [codec.HashSize]byte
	Username string
	Status   MemberStatus
	IsAdmin  bool
}

// mailboxCursorKey identifies one (server, mailbox) cursor.
type mailboxCursorKey struct {
	ServerName string
	MailboxID  string
}

// Store is the single source of truth every worker loop and façade
// operation reads and writes through. All mutation is mutex-serialized;
// Notifier.Signal is called after every mutation that should be visible to
// next_event (spec §4.11, §5).
type Store struct {
	mu       sync.Mutex
	log      zerolog.Logger
	notifier *Notifier

	identity *Identity

	conversations map[string]*Conversation     // by id
	convoByKey    map[string]string            // (kind, counterparty) -> id
	messages      map[string]*ConversationMessage
	messagesByConvo map[string][]string // convo id -> ordered message ids

	groups  map[[codec.HashSize]byte]*Group
	members map[[codec.HashSize]byte]map[string]*GroupMember
	manageLog map[[codec.HashSize]byte][]roster.Event

	cursors map[mailboxCursorKey]int64
}

// New returns an empty Store.
func New(log zerolog.Logger) *Store {
	return &Store{
		log:             log,
		notifier:        NewNotifier(),
		conversations:   make(map[string]*Conversation),
		convoByKey:      make(map[string]string),
		messages:        make(map[string]*ConversationMessage),
		messagesByConvo: make(map[string][]string),
		groups:          make(map[[codec.HashSize]byte]*Group),
		members:         make(map[[codec.HashSize]byte]map[string]*GroupMember),
		manageLog:       make(map[[codec.HashSize]byte][]roster.Event),
		cursors:         make(map[mailboxCursorKey]int64),
	}
}

// Notifier returns the store's change-notification primitive, for the
// event loop to watch.
func (s *Store) Notifier() *Notifier { return s.notifier }

// SetIdentity installs the process identity, created on registration.
func (s *Store) SetIdentity(id Identity) {
	s.mu.Lock()
	s.identity = &id
	s.mu.Unlock()
	s.notifier.Signal()
}

// Identity returns the current identity, or (Identity{}, false) if not
// yet logged in.
func (s *Store) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// UpdateMediumKeys rotates medium-term keys: current shifts to previous,
// newSecret/newPublic become current (spec §4.10).
func (s *Store) UpdateMediumKeys(newSecret, newPublic [32]byte) {
	s.mu.Lock()
	if s.identity != nil {
		prevS := s.identity.MediumSecretCurrent
		prevP := s.identity.MediumPublicCurrent
		s.identity.MediumSecretPrevious = &prevS
		s.identity.MediumPublicPrevious = &prevP
		s.identity.MediumSecretCurrent = newSecret
		s.identity.MediumPublicCurrent = newPublic
	}
	s.mu.Unlock()
	s.notifier.Signal()
}

func convoKey(kind ConvoKind, counterparty string) string {
	return string(kind) + "|" + counterparty
}

// EnsureConversation returns the conversation for (kind, counterparty),
// creating it if absent (unique on (kind, counterparty), spec §3).
func (s *Store) EnsureConversation(kind ConvoKind, counterparty string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := convoKey(kind, counterparty)
	if id, ok := s.convoByKey[key]; ok {
		return s.conversations[id]
	}
	c := &Conversation{
		ID:           uuid.NewString(),
		Kind:         kind,
		Counterparty: counterparty,
		CreatedAt:    time.Now().UTC(),
	}
	s.convoByKey[key] = c.ID
	s.conversations[c.ID] = c
	s.notifier.Signal()
	return c
}

// ConversationByID returns the conversation for id, if any.
func (s *Store) ConversationByID(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// ConvoList returns every known conversation.
func (s *Store) ConvoList() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// EnqueueOutbound inserts a new pending (unsent) message and returns its
// id. ReceivedAt and SendError are both nil until the send loop resolves
// the send.
func (s *Store) EnqueueOutbound(convoID, sender, mime string, body []byte) string {
	s.mu.Lock()
	id := uuid.NewString()
	s.messages[id] = &ConversationMessage{
		ID:             id,
		ConvoID:        convoID,
		SenderUsername: sender,
		MIME:           mime,
		Body:           body,
	}
	s.messagesByConvo[convoID] = append(s.messagesByConvo[convoID], id)
	s.mu.Unlock()
	s.notifier.Signal()
	return id
}

// PendingOutbound returns every message with ReceivedAt == nil and
// SendError == nil, in per-conversation FIFO order (spec §4.8).
func (s *Store) PendingOutbound() []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ConversationMessage
	for _, convoID := range sortedKeys(s.messagesByConvo) {
		for _, id := range s.messagesByConvo[convoID] {
			m := s.messages[id]
			if m.ReceivedAt == nil && m.SendError == nil {
				out = append(out, *m)
			}
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveSendOK marks a pending message as sent successfully.
func (s *Store) ResolveSendOK(id string, at time.Time) {
	s.mu.Lock()
	if m, ok := s.messages[id]; ok {
		m.ReceivedAt = &at
	}
	s.mu.Unlock()
	s.notifier.Signal()
}

// ResolveSendError marks a pending message as failed. ReceivedAt is set to
// a synthetic timestamp so it is no longer selected by PendingOutbound
// (spec §4.8: this prevents infinite retry).
func (s *Store) ResolveSendError(id string, desc string, at time.Time) {
	s.mu.Lock()
	if m, ok := s.messages[id]; ok {
		m.SendError = &desc
		m.ReceivedAt = &at
	}
	s.mu.Unlock()
	s.notifier.Signal()
}

// InsertReceived inserts an inbound message, deduplicating by
// (convo_id, sender, received_at) (spec §3, §8: "send idempotence under
// duplicate delivery"). It returns true if a new row was inserted.
func (s *Store) InsertReceived(convoID, sender, mime string, body []byte, receivedAt time.Time) bool {
	s.mu.Lock()
	for _, id := range s.messagesByConvo[convoID] {
		m := s.messages[id]
		if m.SenderUsername == sender && m.ReceivedAt != nil && m.ReceivedAt.Equal(receivedAt) {
			s.mu.Unlock()
			return false // store-conflict treated as idempotent success (spec §7)
		}
	}
	id := uuid.NewString()
	s.messages[id] = &ConversationMessage{
		ID:             id,
		ConvoID:        convoID,
		SenderUsername: sender,
		MIME:           mime,
		Body:           body,
		ReceivedAt:     &receivedAt,
	}
	s.messagesByConvo[convoID] = append(s.messagesByConvo[convoID], id)
	s.mu.Unlock()
	s.notifier.Signal()
	return true
}

// MessageByID returns a single conversation message by id, if any.
func (s *Store) MessageByID(id string) (ConversationMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ConversationMessage{}, false
	}
	return *m, true
}

// ConvoHistory returns messages for convoID in receipt/insertion order,
// optionally bounded by before/after and limit (0 = unbounded).
func (s *Store) ConvoHistory(convoID string, before, after *time.Time, limit int) []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ConversationMessage
	for _, id := range s.messagesByConvo[convoID] {
		m := s.messages[id]
		if before != nil && m.ReceivedAt != nil && !m.ReceivedAt.Before(*before) {
			continue
		}
		if after != nil && m.ReceivedAt != nil && !m.ReceivedAt.After(*after) {
			continue
		}
		out = append(out, *m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// UpsertGroup inserts or replaces a group's local descriptor/keys.
func (s *Store) UpsertGroup(g Group) {
	s.mu.Lock()
	s.groups[g.GroupID] = &g
	s.mu.Unlock()
	s.notifier.Signal()
}

// Group returns the group for id, if joined.
func (s *Store) Group(id [codec.HashSize]byte) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return Group{}, false
	}
	return *g, true
}

// Groups returns every joined group.
func (s *Store) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, *g)
	}
	return out
}

// Rekey applies a rekey rotation: current shifts to previous, newKey
// becomes current (spec §4.6).
func (s *Store) Rekey(id [codec.HashSize]byte, newKey [32]byte) error {
	s.mu.Lock()
	g, ok := s.groups[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("store: unknown group")
	}
	prev := g.GroupKeyCurrent
	g.GroupKeyPrevious = &prev
	g.GroupKeyCurrent = newKey
	g.RosterVersion++
	s.mu.Unlock()
	s.notifier.Signal()
	return nil
}

// AppendManagementEvent appends one verified management-log entry for a
// group and returns the full log so far, for the caller to re-derive the
// roster via roster.Compute. Neither this log nor the management receive
// loop deduplicates: the loop appends one event per verified entry it
// reads past the mailbox cursor.
func (s *Store) AppendManagementEvent(id [codec.HashSize]byte, ev roster.Event) []roster.Event {
	s.mu.Lock()
	s.manageLog[id] = append(s.manageLog[id], ev)
	out := make([]roster.Event, len(s.manageLog[id]))
	copy(out, s.manageLog[id])
	s.mu.Unlock()
	return out
}

// ManagementEvents returns a group's full verified management log.
func (s *Store) ManagementEvents(id [codec.HashSize]byte) []roster.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roster.Event, len(s.manageLog[id]))
	copy(out, s.manageLog[id])
	return out
}

// ReplaceRoster atomically replaces a group's derived membership map, the
// output of roster.Compute over the verified management log.
func (s *Store) ReplaceRoster(id [codec.HashSize]byte, roster map[string]GroupMember) {
	s.mu.Lock()
	s.members[id] = make(map[string]*GroupMember, len(roster))
	for u, m := range roster {
		mm := m
		s.members[id][u] = &mm
	}
	s.mu.Unlock()
	s.notifier.Signal()
}

// Members returns a group's current derived membership.
func (s *Store) Members(id [codec.HashSize]byte) []GroupMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GroupMember
	for _, m := range s.members[id] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// CursorAfter returns the current after-timestamp for (serverName,
// mailboxID), defaulting to 0 (the beginning) if unseen.
func (s *Store) CursorAfter(serverName, mailboxID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[mailboxCursorKey{serverName, mailboxID}]
}

// AdvanceCursor moves a mailbox cursor forward, never backward (spec §8:
// "cursor monotonicity").
func (s *Store) AdvanceCursor(serverName, mailboxID string, ts int64) {
	s.mu.Lock()
	key := mailboxCursorKey{serverName, mailboxID}
	if ts > s.cursors[key] {
		s.cursors[key] = ts
	}
	s.mu.Unlock()
}

// LoggedIn reports whether an identity has been installed.
func (s *Store) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil
}

// WaitForChange blocks until the store's generation counter advances past
// since, or ctx ends.
func (s *Store) WaitForChange(ctx context.Context, since uint64) (uint64, error) {
	return s.notifier.Wait(ctx, since)
}

// Generation returns the store's current change generation.
func (s *Store) Generation() uint64 { return s.notifier.Generation() }
