// Package client is the façade: the small, sequential, long-poll-style
// local RPC surface a UI drives (spec §4.11). Construction wires a Store
// to a Supervisor running every worker loop and an events.Watcher; every
// façade method either reads the store directly or performs one round of
// crypto composition before handing bytes to a Server/Directory
// collaborator. Secrets never cross this boundary outward.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nullspacechat/core/cryptoerr"
	"github.com/nullspacechat/core/directory"
	"github.com/nullspacechat/core/events"
	"github.com/nullspacechat/core/server"
	"github.com/nullspacechat/core/store"
	"github.com/nullspacechat/core/worker"
)

// Client is one logged-in (or pre-login) session's façade.
type Client struct {
	store   *store.Store
	dir     directory.Directory
	dial    worker.ServerDialer
	log     zerolog.Logger
	sup     *worker.Supervisor
	watcher *events.Watcher

	pending *pendingRegistration
}

// New constructs a façade over a fresh store and starts its worker loops
// under a Supervisor derived from ctx. Cancel ctx (or call Close) to stop
// every loop (spec §5's cancellation policy).
func New(ctx context.Context, dir directory.Directory, dial worker.ServerDialer, log zerolog.Logger) *Client {
	s := store.New(log)
	sup := worker.NewSupervisor(ctx)
	deps := worker.Deps{Store: s, Dir: dir, Dial: dial, Log: log, Config: worker.DefaultConfig()}
	worker.Start(sup, deps)

	return &Client{
		store:   s,
		dir:     dir,
		dial:    dial,
		log:     log,
		sup:     sup,
		watcher: events.New(s),
	}
}

// Close cancels every worker loop and waits for them to stop.
func (c *Client) Close() error {
	c.sup.Stop()
	return c.sup.Wait()
}

// NextEvent blocks until the store changes and returns the next derived
// UI event (spec §4.11's sole push-style operation).
func (c *Client) NextEvent(ctx context.Context) (events.Event, error) {
	return c.watcher.Next(ctx)
}

// ConvoList returns every known conversation.
func (c *Client) ConvoList() []store.Conversation {
	return c.store.ConvoList()
}

// ConvoHistory returns a conversation's messages, optionally bounded.
func (c *Client) ConvoHistory(convoID string, before, after *time.Time, limit int) []store.ConversationMessage {
	return c.store.ConvoHistory(convoID, before, after, limit)
}

// ConvoSend enqueues an outbound message for the send loop to deliver,
// returning its id immediately (spec §4.8). It is a Precondition failure
// to send into a conversation the store doesn't know about.
func (c *Client) ConvoSend(convoID, mime string, body []byte) (string, error) {
	if _, ok := c.store.ConversationByID(convoID); !ok {
		return "", cryptoerr.New(cryptoerr.Precondition, fmt.Sprintf("unknown conversation %q", convoID), nil)
	}
	id, ok := c.store.Identity()
	if !ok {
		return "", cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}
	return c.store.EnqueueOutbound(convoID, id.Username, mime, body), nil
}

// ConvoOpenDirect returns (creating if absent) the direct conversation
// with username.
func (c *Client) ConvoOpenDirect(username string) store.Conversation {
	return *c.store.EnsureConversation(store.ConvoDirect, username)
}

// OwnServer returns the logged-in identity's home server name.
func (c *Client) OwnServer() (string, error) {
	id, ok := c.store.Identity()
	if !ok {
		return "", cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}
	return id.ServerName, nil
}

func (c *Client) dialOwnServer(ctx context.Context) (server.Server, string, error) {
	id, ok := c.store.Identity()
	if !ok {
		return nil, "", cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}
	srv, err := c.dial(ctx, id.ServerName)
	if err != nil {
		return nil, "", cryptoerr.New(cryptoerr.Transport, "dial own server", err)
	}
	return srv, id.ServerName, nil
}
