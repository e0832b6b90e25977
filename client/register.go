package client

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/nullspacechat/core/cryptoerr"
	"github.com/nullspacechat/core/device"
	"github.com/nullspacechat/core/crypto"
	"github.com/nullspacechat/core/server"
	"github.com/nullspacechat/core/store"
)

// rootCertExpiry is the far-future expiry given to a freshly minted
// self-signed root certificate; the core does not implement root-key
// rotation or expiry-driven renewal (out of scope, spec §1).
const rootCertExpiry = 100 * 365 * 24 * time.Hour

// RegisterStartInfo is what register_start hands back to the caller to
// display/confirm before submitting registration.
type RegisterStartInfo struct {
	Username  string
	RootPK    ed25519.PublicKey
	RootChain device.Chain
}

// pendingRegistration holds secret material generated by RegisterStart
// until RegisterFinish persists it as the process identity. It never
// leaves the façade.
type pendingRegistration struct {
	username    string
	serverName  string
	rootKP      crypto.SigningKeyPair
	mediumKP    crypto.DHKeyPair
	rootChain   device.Chain
}

// RegisterVariant selects a register_finish outcome. RegisterNewAccount
// is the only variant this core implements — account recovery/backup
// restore is an explicit non-goal (spec §1).
type RegisterVariant int

const (
	RegisterNewAccount RegisterVariant = iota
)

// RegisterStart claims username on the directory for a brand-new root
// device identity (spec §4.12 supplement): generates a root Ed25519
// keypair, a self-signed root certificate, and the first medium-term
// X25519 keypair, then calls directory.RegisterUser. The secret material
// is held pending RegisterFinish.
func (c *Client) RegisterStart(ctx context.Context, username, serverName string) (RegisterStartInfo, error) {
	if _, err := c.dir.ResolveUser(ctx, username); err == nil {
		return RegisterStartInfo{}, cryptoerr.New(cryptoerr.Precondition, fmt.Sprintf("username %q already taken", username), nil)
	}

	rootKP, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return RegisterStartInfo{}, fmt.Errorf("client: register start: %w", err)
	}
	rootCert := device.Sign(rootKP, rootKP.Public, time.Now().Add(rootCertExpiry).UTC(), true)
	chain := device.Chain{This: rootCert}

	mediumKP, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return RegisterStartInfo{}, fmt.Errorf("client: register start: %w", err)
	}

	if err := c.dir.RegisterUser(ctx, username, serverName, rootKP.Public); err != nil {
		return RegisterStartInfo{}, cryptoerr.New(cryptoerr.Transport, "register user", err)
	}

	c.pending = &pendingRegistration{
		username:   username,
		serverName: serverName,
		rootKP:     rootKP,
		mediumKP:   mediumKP,
		rootChain:  chain,
	}

	return RegisterStartInfo{Username: username, RootPK: rootKP.Public, RootChain: chain}, nil
}

// RegisterFinish authenticates the pending device with its server,
// publishes its first medium public key, and persists the identity row,
// which flips the store's logged-in flag and surfaces State{logged_in:
// true} via the event loop (spec §4.11, §4.12 supplement).
func (c *Client) RegisterFinish(ctx context.Context, variant RegisterVariant) error {
	if c.pending == nil {
		return cryptoerr.New(cryptoerr.Precondition, "no pending registration", nil)
	}
	if variant != RegisterNewAccount {
		return cryptoerr.New(cryptoerr.Precondition, "unsupported register variant", nil)
	}
	p := c.pending

	srv, err := c.dial(ctx, p.serverName)
	if err != nil {
		return cryptoerr.New(cryptoerr.Transport, "dial server", err)
	}
	if _, err := srv.DeviceAuth(ctx, p.rootChain); err != nil {
		return cryptoerr.New(cryptoerr.Transport, "device auth", err)
	}

	sig := crypto.Sign(p.rootKP, p.mediumKP.Public[:])
	signed := server.SignedMediumPK{Owner: p.username, PK: p.mediumKP.Public, Signature: sig, SignerPK: p.rootKP.Public}
	if err := srv.PublishMediumPK(ctx, signed); err != nil {
		return cryptoerr.New(cryptoerr.Transport, "publish medium pk", err)
	}

	c.store.SetIdentity(store.Identity{
		Username:            p.username,
		ServerName:          p.serverName,
		DeviceSigningSecret: []byte(p.rootKP.Private),
		DeviceSigningPublic: []byte(p.rootKP.Public),
		CertChain:           p.rootChain,
		MediumSecretCurrent: p.mediumKP.Private,
		MediumPublicCurrent: p.mediumKP.Public,
	})
	c.pending = nil
	return nil
}

// DeviceBundle is a new device's provisioning material: a certificate
// chain rooted at the existing identity's trust anchor, plus the fresh
// device signing key the new device will hold. Out-of-band transport
// (QR code, etc.) is out of scope (spec §1); this is just the payload.
type DeviceBundle struct {
	Chain         device.Chain
	DevicePrivate ed25519.PrivateKey
}

// NewDeviceBundle issues a certificate for a freshly generated device
// keypair, signed under the current device key, and returns it alongside
// the new device's private key (spec §4.12 supplement).
func (c *Client) NewDeviceBundle(canIssue bool, expiry time.Time) (DeviceBundle, error) {
	id, ok := c.store.Identity()
	if !ok {
		return DeviceBundle{}, cryptoerr.New(cryptoerr.Precondition, "not logged in", nil)
	}

	newKP, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return DeviceBundle{}, fmt.Errorf("client: new device bundle: %w", err)
	}

	issuer := crypto.SigningKeyPair{
		Public:  ed25519.PublicKey(id.DeviceSigningPublic),
		Private: ed25519.PrivateKey(id.DeviceSigningSecret),
	}
	cert := device.Sign(issuer, newKP.Public, expiry.UTC(), canIssue)

	ancestors := append(append([]device.Certificate{}, id.CertChain.Ancestors...), id.CertChain.This)
	chain := device.Chain{Ancestors: ancestors, This: cert}

	return DeviceBundle{Chain: chain, DevicePrivate: newKP.Private}, nil
}
