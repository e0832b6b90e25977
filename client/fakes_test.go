package client

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/device"
	"github.com/nullspacechat/core/directory"
	"github.com/nullspacechat/core/server"
)

// fakeNetwork is a shared in-memory directory+server pair standing in for
// the out-of-scope RPC transports (spec §1), used only by this package's
// tests to drive two or more Clients against each other.
type fakeNetwork struct {
	mu      sync.Mutex
	users   map[string]directory.UserRecord
	servers map[string]*fakeServer
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		users:   make(map[string]directory.UserRecord),
		servers: make(map[string]*fakeServer),
	}
}

func (n *fakeNetwork) serverFor(name string) *fakeServer {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.servers[name]
	if !ok {
		s = newFakeServer()
		n.servers[name] = s
	}
	return s
}

func (n *fakeNetwork) dialer() func(ctx context.Context, serverName string) (server.Server, error) {
	return func(ctx context.Context, serverName string) (server.Server, error) {
		return n.serverFor(serverName), nil
	}
}

// fakeDirectory implements directory.Directory over a fakeNetwork.
type fakeDirectory struct{ net *fakeNetwork }

func (d *fakeDirectory) ResolveUser(ctx context.Context, username string) (directory.UserRecord, error) {
	d.net.mu.Lock()
	defer d.net.mu.Unlock()
	rec, ok := d.net.users[username]
	if !ok {
		return directory.UserRecord{}, fmt.Errorf("fake directory: unknown user %q", username)
	}
	return rec, nil
}

func (d *fakeDirectory) ResolveServer(ctx context.Context, name string) (directory.ServerRecord, error) {
	return directory.ServerRecord{URLs: []string{"fake://" + name}}, nil
}

func (d *fakeDirectory) RegisterUser(ctx context.Context, username, serverName string, rootPK ed25519.PublicKey) error {
	d.net.mu.Lock()
	defer d.net.mu.Unlock()
	if _, exists := d.net.users[username]; exists {
		return fmt.Errorf("fake directory: username %q already registered", username)
	}
	d.net.users[username] = directory.UserRecord{ServerName: serverName, RootHash: device.RootHash(rootPK)}
	return nil
}

func (d *fakeDirectory) AddOwner(ctx context.Context, username string, ownerPK ed25519.PublicKey) error {
	return nil
}

func (d *fakeDirectory) SetUserDescriptor(ctx context.Context, username string, rootHash [codec.HashSize]byte) error {
	d.net.mu.Lock()
	defer d.net.mu.Unlock()
	rec := d.net.users[username]
	rec.RootHash = rootHash
	d.net.users[username] = rec
	return nil
}

// fakeServer implements server.Server as in-memory mailboxes keyed by hex
// mailbox id. MailboxPoll genuinely blocks on new entries, matching the
// real long-poll contract the worker loops rely on.
type fakeServer struct {
	mu      sync.Mutex
	mailbox map[string][]server.MailboxEntry
	mpks    map[string][]server.SignedMediumPK
	nextSeq int64
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		mailbox: make(map[string][]server.MailboxEntry),
		mpks:    make(map[string][]server.SignedMediumPK),
	}
}

func (s *fakeServer) DeviceAuth(ctx context.Context, chain device.Chain) (string, error) {
	return "fake-token", nil
}

func (s *fakeServer) PublishMediumPK(ctx context.Context, signed server.SignedMediumPK) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mpks[signed.Owner] = append([]server.SignedMediumPK{signed}, s.mpks[signed.Owner]...)
	return nil
}

func (s *fakeServer) FetchMediumPKs(ctx context.Context, username string) ([]server.SignedMediumPK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.mpks[username]
	if len(out) == 0 {
		return nil, fmt.Errorf("fake server: no medium keys for %q", username)
	}
	// Only the newest is "current" for these tests.
	return out[:1], nil
}

func (s *fakeServer) FetchCertChain(ctx context.Context, username string) (device.Chain, error) {
	return device.Chain{}, fmt.Errorf("fake server: FetchCertChain not used by these tests")
}

func (s *fakeServer) RegisterGroup(ctx context.Context, groupID [codec.HashSize]byte) error {
	return nil
}

func (s *fakeServer) SetMailboxACL(ctx context.Context, mailboxID [codec.HashSize]byte, authToken string, acl server.MailboxACL) error {
	return nil
}

func mailboxKey(id [codec.HashSize]byte) string { return hex.EncodeToString(id[:]) }

func (s *fakeServer) MailboxSend(ctx context.Context, mailboxID [codec.HashSize]byte, kind string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	key := mailboxKey(mailboxID)
	s.mailbox[key] = append(s.mailbox[key], server.MailboxEntry{
		EntryID:    fmt.Sprintf("e%d", s.nextSeq),
		ReceivedAt: s.nextSeq,
		Kind:       kind,
		Body:       body,
	})
	return nil
}

// mailboxPollInterval is how often MailboxPoll re-checks for new entries
// while emulating a blocking long-poll.
const mailboxPollInterval = 10 * time.Millisecond

func (s *fakeServer) MailboxPoll(ctx context.Context, mailboxID [codec.HashSize]byte, afterTS int64) ([]server.MailboxEntry, error) {
	key := mailboxKey(mailboxID)
	for {
		s.mu.Lock()
		var out []server.MailboxEntry
		for _, e := range s.mailbox[key] {
			if e.ReceivedAt > afterTS {
				out = append(out, e)
			}
		}
		s.mu.Unlock()
		if len(out) > 0 {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(mailboxPollInterval):
		}
	}
}
