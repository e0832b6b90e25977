// Package worker holds the cooperating loops that drive mailbox traffic:
// the send loop, one receive loop per mailbox of interest, the rekey
// loop, and the medium-key rotation loop (spec §4.8-§4.10, §5). They all
// share a single Store and are raced together by a Supervisor — if any
// terminates with an error, every other loop is canceled.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nullspacechat/core/directory"
	"github.com/nullspacechat/core/server"
	"github.com/nullspacechat/core/store"
)

// ServerDialer resolves a server name to a live Server capability. This is
// the "capability records injected at construction" pattern from spec §9
// — the worker layer never imports a concrete transport.
type ServerDialer func(ctx context.Context, serverName string) (server.Server, error)

// Config holds the worker loops' tunables.
type Config struct {
	// PollBackoffMin/Max bound the retry delay after a transport failure
	// on mailbox_poll or mailbox_send.
	PollBackoffMin time.Duration
	PollBackoffMax time.Duration

	// MediumKeyRotationInterval is how often the medium-key rotation loop
	// generates a fresh keypair; spec §4.10 requires this be no more
	// often than hourly.
	MediumKeyRotationInterval time.Duration
	// MediumKeyRotationJitter adds up to this much random delay to each
	// rotation, per spec §4.10's "small jitter."
	MediumKeyRotationJitter time.Duration
}

// DefaultConfig returns production-shaped tunables.
func DefaultConfig() Config {
	return Config{
		PollBackoffMin:            500 * time.Millisecond,
		PollBackoffMax:            30 * time.Second,
		MediumKeyRotationInterval: time.Hour,
		MediumKeyRotationJitter:   5 * time.Minute,
	}
}

// Deps is the explicit context threaded through every worker loop: the
// store handle, the directory/server collaborators, and a logger. Spec §9
// calls for this instead of a global singleton so tasks close over it and
// the façade constructs it once.
type Deps struct {
	Store  *store.Store
	Dir    directory.Directory
	Dial   ServerDialer
	Log    zerolog.Logger
	Config Config
}

func backoff(cur, min, max time.Duration) time.Duration {
	if cur < min {
		return min
	}
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
