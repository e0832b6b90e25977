// Package events implements the push-style half of the client façade: a
// watcher that suspends until the store's change notifier fires, then
// diffs store state against its last-seen snapshot to derive the concrete
// events next_event returns (spec §4.11). No other component emits
// events directly — every producer just writes the store and signals the
// change notifier; this package is the only reader of that signal that
// turns it into UI-facing events.
package events

import (
	"context"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/store"
)

// Kind distinguishes the three event shapes next_event can return.
type Kind int

const (
	KindState Kind = iota
	KindConvoUpdated
	KindGroupUpdated
)

// Event is the tagged union next_event returns. Only the field matching
// Kind is meaningful.
type Event struct {
	Kind     Kind
	LoggedIn bool
	ConvoID  string
	GroupID  [codec.HashSize]byte
}

type groupSnapshot struct {
	rosterVersion uint64
	keyCurrent    [32]byte
}

// Watcher tracks a consumer's last-observed store snapshot so it can emit
// only what changed since the previous next_event call. It is not
// safe for concurrent use by multiple goroutines — spec §4.11 describes
// next_event as a single sequential push stream, one Watcher per client.
type Watcher struct {
	store *store.Store
	gen   uint64

	loggedIn bool
	convoLen map[string]int
	groups   map[[codec.HashSize]byte]groupSnapshot

	pending []Event
}

// New returns a Watcher with an empty baseline snapshot: the first call to
// Next will emit every event implied by the store's current state (e.g. a
// State{logged_in:true} if an identity is already installed).
func New(s *store.Store) *Watcher {
	return &Watcher{
		store:    s,
		convoLen: make(map[string]int),
		groups:   make(map[[codec.HashSize]byte]groupSnapshot),
	}
}

// Next blocks until the store changes and returns the next derived event.
// Events accumulated from a single generation change are returned one at a
// time across successive calls; Next only suspends on the store's
// notifier when its internal queue is empty (spec §4.11: "next_event ...
// never fails: it suspends until the store emits a change").
func (w *Watcher) Next(ctx context.Context) (Event, error) {
	for len(w.pending) == 0 {
		next, err := w.store.WaitForChange(ctx, w.gen)
		if err != nil {
			return Event{}, err
		}
		w.gen = next
		w.pending = w.diff()
	}
	ev := w.pending[0]
	w.pending = w.pending[1:]
	return ev, nil
}

// diff compares current store state against the watcher's last-seen
// snapshot and returns every event implied by the difference, in an order
// that respects spec §4.11's monotonicity guarantee: State before
// ConvoUpdated/GroupUpdated, since a conversation or group cannot exist
// before login.
func (w *Watcher) diff() []Event {
	var out []Event

	if loggedIn := w.store.LoggedIn(); loggedIn != w.loggedIn {
		w.loggedIn = loggedIn
		out = append(out, Event{Kind: KindState, LoggedIn: loggedIn})
	}

	for _, c := range w.store.ConvoList() {
		n := len(w.store.ConvoHistory(c.ID, nil, nil, 0))
		if n != w.convoLen[c.ID] {
			w.convoLen[c.ID] = n
			out = append(out, Event{Kind: KindConvoUpdated, ConvoID: c.ID})
		}
	}

	for _, g := range w.store.Groups() {
		snap := groupSnapshot{rosterVersion: g.RosterVersion, keyCurrent: g.GroupKeyCurrent}
		if snap != w.groups[g.GroupID] {
			w.groups[g.GroupID] = snap
			out = append(out, Event{Kind: KindGroupUpdated, GroupID: g.GroupID})
		}
	}

	return out
}
