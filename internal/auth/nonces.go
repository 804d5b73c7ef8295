// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package auth

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// NonceStore remembers the nonces of accepted envelopes. Every process that
// verifies envelopes for one ledger must share a store, or a signed request
// can be applied once per process.
type NonceStore interface {
	// Claim records nonce. It fails with ErrReplayed when nonce was claimed
	// before and has not been forgotten.
	Claim(ctx context.Context, nonce ulid.ULID, issuedAt time.Time) error
	// Forget drops nonces issued before cutoff.
	Forget(ctx context.Context, cutoff time.Time) error
}

// Replayed returns the error a NonceStore reports for a reused nonce.
func Replayed(nonce ulid.ULID) error {
	return oops.Code("AUTH_ENVELOPE_REPLAYED").With("nonce", nonce.String()).Wrap(ErrReplayed)
}

// MemoryNonces is a NonceStore for a single process.
type MemoryNonces struct {
	mu   sync.Mutex
	seen map[ulid.ULID]time.Time
}

// NewMemoryNonces creates an empty in-memory nonce store.
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{seen: make(map[ulid.ULID]time.Time)}
}

// Claim implements NonceStore.
func (m *MemoryNonces) Claim(_ context.Context, nonce ulid.ULID, issuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[nonce]; ok {
		return Replayed(nonce)
	}
	m.seen[nonce] = issuedAt
	return nil
}

// Forget implements NonceStore.
func (m *MemoryNonces) Forget(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for nonce, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, nonce)
		}
	}
	return nil
}

// Len returns the number of remembered nonces.
func (m *MemoryNonces) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

var _ NonceStore = (*MemoryNonces)(nil)
