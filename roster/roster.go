// Package roster is the pure group-roster engine (spec §4.7): a function
// from a sequence of verified management events to a roster map. It does
// not touch the network, the store, or the crypto layer — everything it
// needs is passed in, and everything it produces is a value. The log is
// adversarial; an event failing its precondition is dropped, never an
// error, so a hostile log can never corrupt the derived state.
package roster

import (
	"encoding/json"
	"fmt"
)

// Status is a member's membership state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusBanned   Status = "banned"
)

// Member is one entry of the derived roster.
type Member struct {
	Status Status
	Admin  bool
}

// active reports spec §4.7's "active" predicate: status is pending or
// accepted (not banned).
func (m Member) active() bool { return m.Status == StatusPending || m.Status == StatusAccepted }

// activeAdmin reports spec §4.7's "active admin" predicate.
func (m Member) activeAdmin() bool { return m.active() && m.Admin }

// EventKind identifies which of the seven management-log transitions an
// Event represents.
type EventKind string

const (
	EventInviteSent     EventKind = "invite_sent"
	EventInviteAccepted EventKind = "invite_accepted"
	EventLeave          EventKind = "leave"
	EventBan            EventKind = "ban"
	EventUnban          EventKind = "unban"
	EventAddAdmin       EventKind = "add_admin"
	EventRemoveAdmin    EventKind = "remove_admin"
)

// Event is one verified management-log entry. Target is the username
// named by events that take one ({invite_sent:u}, {ban:u}, {unban:u},
// {add_admin:u}, {remove_admin:u}); it is empty for "invite_accepted" and
// "leave", which act on Sender.
type Event struct {
	Sender string
	Kind   EventKind
	Target string
}

// EventBody is the externally-tagged JSON wire shape of a management
// message's body (spec.md line 148, mime
// "application/vnd.nullspace.v1.group_manage"): a bare JSON string for
// events with no target ("invite_accepted", "leave"), a single-key
// object carrying the target as the tag's value for the rest
// ({"invite_sent":"@u"}, {"ban":"@u"}, {"unban":"@u"},
// {"add_admin":"@u"}, {"remove_admin":"@u"}). Sender is never part of
// this body — it comes from the verified device signature on the
// enclosing envelope, so a forged field here cannot impersonate another
// member.
type EventBody struct {
	Kind   EventKind
	Target string
}

func (b EventBody) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case EventInviteAccepted, EventLeave:
		return json.Marshal(string(b.Kind))
	case EventInviteSent, EventBan, EventUnban, EventAddAdmin, EventRemoveAdmin:
		return json.Marshal(map[string]string{string(b.Kind): b.Target})
	default:
		return nil, fmt.Errorf("roster: unknown management event kind %q", b.Kind)
	}
}

func (b *EventBody) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch EventKind(bare) {
		case EventInviteAccepted, EventLeave:
			b.Kind, b.Target = EventKind(bare), ""
			return nil
		default:
			return fmt.Errorf("roster: unknown bare management event %q", bare)
		}
	}

	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("roster: decode management event: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("roster: tagged management event must have exactly one key")
	}
	for k, v := range tagged {
		switch kind := EventKind(k); kind {
		case EventInviteSent, EventBan, EventUnban, EventAddAdmin, EventRemoveAdmin:
			b.Kind, b.Target = kind, v
			return nil
		default:
			return fmt.Errorf("roster: unknown tagged management event %q", k)
		}
	}
	return nil
}

// Roster maps username to derived membership state.
type Roster map[string]Member

func (r Roster) get(username string) (Member, bool) {
	m, ok := r[username]
	return m, ok
}

// Compute replays events in order over the initial state
// {initAdmin -> {accepted, admin}}, dropping any event whose precondition
// fails (spec §4.7's transition table). Two calls given identical
// (initAdmin, events) always produce identical rosters — Compute has no
// hidden state.
func Compute(initAdmin string, events []Event) Roster {
	r := Roster{initAdmin: {Status: StatusAccepted, Admin: true}}

	for _, ev := range events {
		sender, ok := r.get(ev.Sender)
		switch ev.Kind {
		case EventInviteSent:
			if !ok || !sender.active() {
				continue
			}
			if target, exists := r.get(ev.Target); exists && (target.Status == StatusAccepted || target.Status == StatusBanned) {
				continue
			}
			r[ev.Target] = Member{Status: StatusPending, Admin: false}

		case EventInviteAccepted:
			if !ok || sender.Status == StatusBanned {
				continue
			}
			sender.Status = StatusAccepted
			r[ev.Sender] = sender

		case EventLeave:
			if !ok || sender.Status == StatusBanned {
				continue
			}
			delete(r, ev.Sender)

		case EventBan:
			if !ok || !sender.activeAdmin() {
				continue
			}
			target, exists := r.get(ev.Target)
			if !exists {
				target = Member{}
			}
			target.Status = StatusBanned
			r[ev.Target] = target

		case EventUnban:
			if !ok || !sender.activeAdmin() {
				continue
			}
			target, exists := r.get(ev.Target)
			if !exists {
				continue
			}
			target.Status = StatusPending
			r[ev.Target] = target

		case EventAddAdmin:
			if !ok || !sender.activeAdmin() {
				continue
			}
			target, exists := r.get(ev.Target)
			if !exists || target.Status != StatusAccepted {
				continue
			}
			target.Admin = true
			r[ev.Target] = target

		case EventRemoveAdmin:
			if !ok || !sender.activeAdmin() {
				continue
			}
			target, exists := r.get(ev.Target)
			if !exists {
				continue
			}
			target.Admin = false
			r[ev.Target] = target
		}
	}

	return r
}
