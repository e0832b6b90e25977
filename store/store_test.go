package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return New(zerolog.Nop())
}

func TestEnsureConversationIsUniqueOnKindAndCounterparty(t *testing.T) {
	s := newTestStore()
	a := s.EnsureConversation(ConvoDirect, "@bob")
	b := s.EnsureConversation(ConvoDirect, "@bob")
	require.Equal(t, a.ID, b.ID)

	c := s.EnsureConversation(ConvoGroup, "@bob")
	require.NotEqual(t, a.ID, c.ID)
}

func TestInsertReceivedDeduplicates(t *testing.T) {
	s := newTestStore()
	convo := s.EnsureConversation(ConvoDirect, "@alice")
	at := time.Now().UTC()

	inserted := s.InsertReceived(convo.ID, "@alice", "text/plain", []byte("hi"), at)
	require.True(t, inserted)

	insertedAgain := s.InsertReceived(convo.ID, "@alice", "text/plain", []byte("hi"), at)
	require.False(t, insertedAgain)

	history := s.ConvoHistory(convo.ID, nil, nil, 0)
	require.Len(t, history, 1)
}

func TestPendingOutboundOrderingIsFIFOPerConversation(t *testing.T) {
	s := newTestStore()
	convo := s.EnsureConversation(ConvoDirect, "@bob")

	id1 := s.EnqueueOutbound(convo.ID, "@me", "text/plain", []byte("first"))
	id2 := s.EnqueueOutbound(convo.ID, "@me", "text/plain", []byte("second"))

	pending := s.PendingOutbound()
	require.Len(t, pending, 2)
	require.Equal(t, id1, pending[0].ID)
	require.Equal(t, id2, pending[1].ID)
}

func TestResolveSendErrorStopsRetry(t *testing.T) {
	s := newTestStore()
	convo := s.EnsureConversation(ConvoDirect, "@bob")
	id := s.EnqueueOutbound(convo.ID, "@me", "text/plain", []byte("x"))

	s.ResolveSendError(id, "transport failure", time.Now().UTC())
	require.Empty(t, s.PendingOutbound())
}

func TestCursorMonotonicity(t *testing.T) {
	s := newTestStore()
	s.AdvanceCursor("~server", "mbox", 100)
	s.AdvanceCursor("~server", "mbox", 50) // must not regress
	require.EqualValues(t, 100, s.CursorAfter("~server", "mbox"))
	s.AdvanceCursor("~server", "mbox", 200)
	require.EqualValues(t, 200, s.CursorAfter("~server", "mbox"))
}

func TestWaitForChangeWakesOnSignal(t *testing.T) {
	s := newTestStore()
	gen := s.Generation()

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := s.WaitForChange(ctx, gen)
		require.NoError(t, err)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	s.EnsureConversation(ConvoDirect, "@trigger")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForChange did not wake up after Signal")
	}
}
