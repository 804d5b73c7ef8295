// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package auth signs and verifies requests made against player records.
//
// Identities are ed25519 public keys in lowercase hex. A request travels as a
// signed Envelope; verifying it yields the caller identity that the player
// operations check against the owner and the payer policy.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/player"
)

// Sentinel errors.
var (
	ErrInvalidIdentity = errors.New("identity is not an ed25519 public key")
	ErrBadSignature    = errors.New("envelope signature does not verify")
	ErrExpired         = errors.New("envelope is outside its validity window")
	ErrReplayed        = errors.New("envelope nonce was already used")
	ErrKeyLocked       = errors.New("key file is encrypted")
	ErrWrongPassphrase = errors.New("key file passphrase is wrong")
)

// KeyPair is an ed25519 signing key.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKey creates a new key pair from crypto/rand.
func GenerateKey() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, oops.Code("AUTH_KEYGEN_FAILED").Wrap(err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyFromSeed rebuilds a key pair from its 32-byte seed.
func KeyFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, oops.Code("AUTH_KEY_INVALID").Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Identity returns the player identity for this key.
func (k *KeyPair) Identity() player.Identity {
	return IdentityOf(k.Public)
}

// IdentityOf returns the player identity for pub.
func IdentityOf(pub ed25519.PublicKey) player.Identity {
	return player.Identity(hex.EncodeToString(pub))
}

// PublicKey parses an identity back into the public key it names.
func PublicKey(id player.Identity) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(string(id))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, oops.Code("AUTH_INVALID_IDENTITY").With("identity", id.String()).Wrap(ErrInvalidIdentity)
	}
	return ed25519.PublicKey(raw), nil
}
