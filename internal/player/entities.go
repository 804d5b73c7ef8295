// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/observability"
	"github.com/nrdxhq/blockstranding/internal/oplog"
)

// Authorizer decides whether caller may act on owner's record. Owners are
// always authorized; payers must be explicitly allowed.
type Authorizer interface {
	Authorized(ctx context.Context, owner, caller Identity) bool
}

// OwnerOnly authorizes nobody but the owner.
type OwnerOnly struct{}

// Authorized implements Authorizer.
func (OwnerOnly) Authorized(_ context.Context, owner, caller Identity) bool {
	return owner == caller
}

// CheckCaller returns ErrNotOwner unless caller may act for owner.
func CheckCaller(ctx context.Context, authz Authorizer, owner, caller Identity) error {
	if caller == "" {
		return oops.Code(CodeNotOwner).With("owner", owner.String()).Wrap(ErrNotOwner)
	}
	if caller == owner {
		return nil
	}
	if authz != nil && authz.Authorized(ctx, owner, caller) {
		return nil
	}
	return oops.Code(CodeNotOwner).
		With("owner", owner.String()).
		With("caller", caller.String()).
		Wrap(ErrNotOwner)
}

// ActorFor describes caller for the operation log.
func ActorFor(owner, caller Identity) oplog.Actor {
	if caller == owner {
		return oplog.Actor{Kind: oplog.ActorOwner, ID: caller.String()}
	}
	return oplog.Actor{Kind: oplog.ActorPayer, ID: caller.String()}
}

// Entities is the base-ledger entity store: it creates player records and
// reads them back by owner or address.
type Entities struct {
	store   Store
	journal *oplog.Journal
	now     func() time.Time
}

// NewEntities creates an entity store over s.
func NewEntities(s Store, journal *oplog.Journal) *Entities {
	return &Entities{store: s, journal: journal, now: time.Now}
}

// Initialize creates the player record for owner with zeroed counters and
// base-ledger authority.
func (s *Entities) Initialize(ctx context.Context, owner Identity) (ent *Entity, err error) {
	start := time.Now()
	defer func() { observability.RecordOperation("initialize", Status(err), time.Since(start)) }()

	rec, err := NewRecord(owner)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ent = &Entity{
		Record:    *rec,
		Authority: BaseOwned,
		Space:     AccountSpace,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, ent); err != nil {
		return nil, err
	}

	s.journal.Record(ctx, ent.Address.String(), oplog.EntryInitialized,
		oplog.Actor{Kind: oplog.ActorOwner, ID: owner.String()},
		"Player initialized", map[string]any{"owner": owner.String(), "space": ent.Space})
	slog.DebugContext(ctx, "player record allocated", "address", ent.Address.String(), "space", ent.Space)
	return ent.Clone(), nil
}

// Get returns the entity owned by owner.
func (s *Entities) Get(ctx context.Context, owner Identity) (*Entity, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, Derive(owner))
}

// GetByAddress returns the entity at addr.
func (s *Entities) GetByAddress(ctx context.Context, addr Address) (*Entity, error) {
	return s.store.Get(ctx, addr)
}
