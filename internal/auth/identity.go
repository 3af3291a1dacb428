// Package auth provides the optional ~alias/~pubkey identity boundary
// (spec.md §6): key-pair identities, field encryption at rest, and a
// proof-of-work puzzle for alias registration. None of C1-C12's core
// sync paths import this package — it is consumed only where a caller
// chooses to address a node by public key.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// Identity is an ed25519 key pair addressable as a "~<hex pubkey>" node id.
type Identity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewIdentity generates a fresh identity.
func NewIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Identity{Public: pub, private: priv}, nil
}

// Alias returns the "~<hex pubkey>" node id this identity signs for.
func (id *Identity) Alias() string {
	return "~" + hex.EncodeToString(id.Public)
}

// Sign signs msg with the identity's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.private, msg)
}

var ErrBadSignature = errors.New("auth: signature verification failed")

// Verify checks sig over msg against pub, the key embedded in an
// alias produced by Identity.Alias.
func Verify(pub ed25519.PublicKey, msg, sig []byte) error {
	if !ed25519.Verify(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// ParseAlias decodes a "~<hex pubkey>" node id back into a public key.
func ParseAlias(alias string) (ed25519.PublicKey, error) {
	if len(alias) == 0 || alias[0] != '~' {
		return nil, errors.New("auth: not an alias node id")
	}
	raw, err := hex.DecodeString(alias[1:])
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("auth: wrong public key length")
	}
	return ed25519.PublicKey(raw), nil
}
