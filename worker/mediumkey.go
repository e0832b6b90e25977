package worker

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"time"

	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/server"
)

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// MediumKeyRotationLoop rotates the local identity's medium-term X25519
// key on Config.MediumKeyRotationInterval plus up to Jitter of random
// delay, publishing the freshly signed key to the home server (spec
// §4.10). The previous key is retained by the store so in-flight
// envelopes encrypted under it can still be opened.
func MediumKeyRotationLoop(deps Deps) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for {
			wait := deps.Config.MediumKeyRotationInterval + jitter(deps.Config.MediumKeyRotationJitter)
			if err := sleep(ctx, wait); err != nil {
				return err
			}

			id, ok := deps.Store.Identity()
			if !ok {
				continue
			}

			kp, err := crypto.GenerateDHKeyPair()
			if err != nil {
				deps.Log.Debug().Err(err).Msg("medium key rotation: generate failed, retrying next tick")
				continue
			}

			sig := crypto.Sign(signingKeyOf(id), kp.Public[:])

			srv, err := deps.Dial(ctx, id.ServerName)
			if err != nil {
				deps.Log.Debug().Err(err).Msg("medium key rotation: dial failed, retrying next tick")
				continue
			}
			signed := server.SignedMediumPK{
				Owner:     id.Username,
				PK:        kp.Public,
				Signature: sig,
				SignerPK:  id.DeviceSigningPublic,
			}
			if err := srv.PublishMediumPK(ctx, signed); err != nil {
				deps.Log.Debug().Err(err).Msg("medium key rotation: publish failed, retrying next tick")
				continue
			}

			deps.Store.UpdateMediumKeys(kp.Private, kp.Public)
		}
	}
}
