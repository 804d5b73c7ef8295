// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"context"
	"time"
)

// Entity is a player record together with its authority marker, as held by
// the base ledger.
type Entity struct {
	Record
	Authority  Authority
	Descriptor *Descriptor
	// Space is the account allocation in bytes; always AccountSpace.
	Space     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers cannot alias store state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Descriptor != nil {
		d := *e.Descriptor
		c.Descriptor = &d
	}
	return &c
}

// Commit writes snapshot counters into the base copy. The whole record is
// replaced (last writer wins), never merged.
func (e *Entity) Commit(s Snapshot, now time.Time) {
	e.MoveCounter = s.MoveCounter
	e.AttackCounter = s.AttackCounter
	if e.Descriptor != nil {
		e.Descriptor.CommittedSlot = s.Slot
		e.Descriptor.LastCommitAt = now
	}
}

// Store persists entities keyed by derived address.
type Store interface {
	// Create persists a new entity. Returns ErrAlreadyExists if the address is taken.
	Create(ctx context.Context, e *Entity) error

	// Get returns a copy of the entity at addr, or ErrNotFound.
	Get(ctx context.Context, addr Address) (*Entity, error)

	// Update reads the entity at addr, passes a copy to fn, and persists the
	// copy if fn returns nil. The read and write are atomic with respect to
	// other Updates of the same address. Returns the persisted entity.
	Update(ctx context.Context, addr Address, fn func(e *Entity) error) (*Entity, error)

	// ListByAuthority returns entities whose marker is one of states.
	ListByAuthority(ctx context.Context, states ...Authority) ([]*Entity, error)
}
