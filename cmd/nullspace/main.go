// Package main is the thin CLI entrypoint wiring the façade together.
// Directory/Server transport wiring is out of scope for this core (spec
// §1); callers in a real deployment inject concrete implementations of
// directory.Directory and worker.ServerDialer where noUpstream is used
// below.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rs/zerolog"

	"github.com/nullspacechat/core/client"
	"github.com/nullspacechat/core/codec"
	"github.com/nullspacechat/core/directory"
	"github.com/nullspacechat/core/server"
	"github.com/nullspacechat/core/worker"
)

// noUpstream is a placeholder Directory: this core ships no concrete RPC
// transport, so the CLI refuses to dial out rather than silently no-op. A
// real deployment wires its own transport at this seam.
type noUpstream struct{}

func (noUpstream) ResolveUser(ctx context.Context, username string) (directory.UserRecord, error) {
	return directory.UserRecord{}, fmt.Errorf("no directory transport configured")
}
func (noUpstream) ResolveServer(ctx context.Context, name string) (directory.ServerRecord, error) {
	return directory.ServerRecord{}, fmt.Errorf("no directory transport configured")
}
func (noUpstream) RegisterUser(ctx context.Context, username, serverName string, rootPK ed25519.PublicKey) error {
	return fmt.Errorf("no directory transport configured")
}
func (noUpstream) AddOwner(ctx context.Context, username string, ownerPK ed25519.PublicKey) error {
	return fmt.Errorf("no directory transport configured")
}
func (noUpstream) SetUserDescriptor(ctx context.Context, username string, rootHash [codec.HashSize]byte) error {
	return fmt.Errorf("no directory transport configured")
}

func dialNoUpstream(ctx context.Context, serverName string) (server.Server, error) {
	return nil, fmt.Errorf("no server transport configured for %q", serverName)
}

func newClient(c *cli.Context) *client.Client {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	if c.Bool("debug") {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}
	return client.New(context.Background(), noUpstream{}, worker.ServerDialer(dialNoUpstream), log)
}

func main() {
	app := &cli.App{
		Name:  "nullspace",
		Usage: "confederal end-to-end-encrypted chat core",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			cmdRegister(),
			cmdConvoList(),
			cmdConvoHistory(),
			cmdConvoSend(),
			cmdGroupCreate(),
			cmdGroupInvite(),
			cmdGroupAccept(),
			cmdNextEvent(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cmdRegister() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "claim a username and create a new root device identity",
		ArgsUsage: "<username> <server-name>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("usage: nullspace register <username> <server-name>")
			}
			cl := newClient(c)
			defer cl.Close()
			ctx := context.Background()
			info, err := cl.RegisterStart(ctx, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			if err := cl.RegisterFinish(ctx, client.RegisterNewAccount); err != nil {
				return err
			}
			fmt.Printf("registered %s (root pk %x)\n", info.Username, info.RootPK)
			return nil
		},
	}
}

func cmdConvoList() *cli.Command {
	return &cli.Command{
		Name:  "convo-list",
		Usage: "list known conversations",
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			defer cl.Close()
			for _, convo := range cl.ConvoList() {
				fmt.Printf("%s\t%s\t%s\n", convo.ID, convo.Kind, convo.Counterparty)
			}
			return nil
		},
	}
}

func cmdConvoHistory() *cli.Command {
	return &cli.Command{
		Name:      "convo-history",
		Usage:     "print a conversation's message history",
		ArgsUsage: "<convo-id>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: nullspace convo-history <convo-id>")
			}
			cl := newClient(c)
			defer cl.Close()
			for _, m := range cl.ConvoHistory(c.Args().Get(0), nil, nil, 0) {
				fmt.Printf("%s\t%s\t%s\t%s\n", m.ID, m.SenderUsername, m.MIME, m.Body)
			}
			return nil
		},
	}
}

func cmdConvoSend() *cli.Command {
	return &cli.Command{
		Name:      "convo-send",
		Usage:     "enqueue an outbound message",
		ArgsUsage: "<convo-id> <mime> <body>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 3 {
				return fmt.Errorf("usage: nullspace convo-send <convo-id> <mime> <body>")
			}
			cl := newClient(c)
			defer cl.Close()
			id, err := cl.ConvoSend(c.Args().Get(0), c.Args().Get(1), []byte(c.Args().Get(2)))
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

func cmdGroupCreate() *cli.Command {
	return &cli.Command{
		Name:      "group-create",
		Usage:     "create a new group hosted on server-name",
		ArgsUsage: "<server-name>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: nullspace group-create <server-name>")
			}
			cl := newClient(c)
			defer cl.Close()
			id, err := cl.ConvoCreateGroup(context.Background(), c.Args().Get(0))
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", id)
			return nil
		},
	}
}

func cmdGroupInvite() *cli.Command {
	return &cli.Command{
		Name:      "group-invite",
		Usage:     "invite a user to a group",
		ArgsUsage: "<group-id-hex> <username>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return fmt.Errorf("usage: nullspace group-invite <group-id-hex> <username>")
			}
			groupID, err := parseGroupID(c.Args().Get(0))
			if err != nil {
				return err
			}
			cl := newClient(c)
			defer cl.Close()
			return cl.GroupInvite(context.Background(), groupID, c.Args().Get(1))
		},
	}
}

func cmdGroupAccept() *cli.Command {
	return &cli.Command{
		Name:      "group-accept",
		Usage:     "accept a received group invite by its DM message id",
		ArgsUsage: "<dm-message-id>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("usage: nullspace group-accept <dm-message-id>")
			}
			cl := newClient(c)
			defer cl.Close()
			id, err := cl.GroupAcceptInvite(context.Background(), c.Args().Get(0))
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", id)
			return nil
		},
	}
}

func cmdNextEvent() *cli.Command {
	return &cli.Command{
		Name:  "next-event",
		Usage: "block until the next UI event and print it",
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			defer cl.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			ev, err := cl.NextEvent(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", ev)
			return nil
		},
	}
}

func parseGroupID(s string) ([32]byte, error) {
	var id [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("group id must be %d hex bytes", len(id))
	}
	copy(id[:], b)
	return id, nil
}
