// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package auth

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/codec"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// Operation names carried in envelopes.
const (
	OpInitialize = "initialize"
	OpDelegate   = "delegate"
	OpAction     = "action"
	OpUndelegate = "undelegate"
)

// DefaultMaxAge is how long a signed envelope stays valid.
const DefaultMaxAge = 5 * time.Minute

// Envelope is a request to operate on owner's record, signed by Caller.
type Envelope struct {
	Operation string            `cbor:"1,keyasint"`
	Owner     player.Identity   `cbor:"2,keyasint"`
	Caller    player.Identity   `cbor:"3,keyasint"`
	Nonce     ulid.ULID         `cbor:"4,keyasint"`
	IssuedAt  time.Time         `cbor:"5,keyasint"`
	Args      map[string]string `cbor:"6,keyasint,omitempty"`
}

// signed is the wire form: the exact payload bytes and their signature.
type signed struct {
	Payload   codec.RawMessage `cbor:"1,keyasint"`
	Signature []byte           `cbor:"2,keyasint"`
}

// NewEnvelope creates an envelope for op with a fresh nonce.
func NewEnvelope(op string, owner player.Identity, args map[string]string) Envelope {
	return Envelope{
		Operation: op,
		Owner:     owner,
		Nonce:     oplog.NewULID(),
		IssuedAt:  time.Now().UTC(),
		Args:      args,
	}
}

// Sign stamps env with k's identity and returns the signed wire bytes.
func Sign(k *KeyPair, env Envelope) ([]byte, error) {
	env.Caller = k.Identity()
	payload, err := codec.Marshal(env)
	if err != nil {
		return nil, oops.Code("AUTH_ENVELOPE_ENCODE_FAILED").Wrap(err)
	}
	data, err := codec.Marshal(signed{Payload: payload, Signature: ed25519.Sign(k.Private, payload)})
	if err != nil {
		return nil, oops.Code("AUTH_ENVELOPE_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

// Verifier checks signed envelopes and rejects replays within the validity
// window.
type Verifier struct {
	maxAge time.Duration
	now    func() time.Time
	nonces NonceStore
}

// NewVerifier creates a verifier. maxAge <= 0 uses DefaultMaxAge; a nil
// nonces store keeps nonces in process memory.
func NewVerifier(maxAge time.Duration, nonces NonceStore) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if nonces == nil {
		nonces = NewMemoryNonces()
	}
	return &Verifier{maxAge: maxAge, now: time.Now, nonces: nonces}
}

// Verify decodes data, checks the signature against the embedded caller
// identity, claims the envelope's nonce, and returns the envelope. The caller
// identity is only trusted once Verify succeeds. A claimed nonce stays used
// even if the operation it carries later fails.
func (v *Verifier) Verify(ctx context.Context, data []byte) (Envelope, error) {
	var s signed
	if err := codec.Unmarshal(data, &s); err != nil {
		return Envelope{}, oops.Code("AUTH_ENVELOPE_INVALID").Wrap(err)
	}
	var env Envelope
	if err := codec.Unmarshal(s.Payload, &env); err != nil {
		return Envelope{}, oops.Code("AUTH_ENVELOPE_INVALID").Wrap(err)
	}
	pub, err := PublicKey(env.Caller)
	if err != nil {
		return Envelope{}, err
	}
	if !ed25519.Verify(pub, s.Payload, s.Signature) {
		return Envelope{}, oops.Code("AUTH_BAD_SIGNATURE").With("caller", env.Caller.String()).Wrap(ErrBadSignature)
	}

	now := v.now()
	if env.IssuedAt.After(now.Add(v.maxAge)) || now.Sub(env.IssuedAt) > v.maxAge {
		return Envelope{}, oops.Code("AUTH_ENVELOPE_EXPIRED").
			With("issued_at", env.IssuedAt).
			With("max_age", v.maxAge.String()).
			Wrap(ErrExpired)
	}

	// Anything issued before the cutoff fails the window check above, so its
	// nonce no longer needs remembering.
	if err := v.nonces.Forget(ctx, now.Add(-v.maxAge)); err != nil {
		return Envelope{}, err
	}
	if err := v.nonces.Claim(ctx, env.Nonce, env.IssuedAt); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
