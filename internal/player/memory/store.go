// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package memory provides an in-process player.Store: an arena of entities
// keyed by derived address.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/player"
)

// Store implements player.Store in memory. Updates are serialized by a single
// mutex, which makes every Update an atomic check-and-set.
type Store struct {
	mu       sync.Mutex
	entities map[player.Address]*player.Entity
	now      func() time.Time
}

// NewStore creates an empty arena.
func NewStore() *Store {
	return &Store{
		entities: make(map[player.Address]*player.Entity),
		now:      time.Now,
	}
}

// Create persists a new entity.
func (s *Store) Create(_ context.Context, e *player.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[e.Address]; ok {
		return oops.Code(player.CodeAlreadyExists).
			With("address", e.Address.String()).
			With("owner", e.Owner.String()).
			Wrap(player.ErrAlreadyExists)
	}
	s.entities[e.Address] = e.Clone()
	return nil
}

// Get returns a copy of the entity at addr.
func (s *Store) Get(_ context.Context, addr player.Address) (*player.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[addr]
	if !ok {
		return nil, notFound(addr)
	}
	return e.Clone(), nil
}

// Update applies fn to a copy of the entity and stores it if fn succeeds.
func (s *Store) Update(_ context.Context, addr player.Address, fn func(e *player.Entity) error) (*player.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entities[addr]
	if !ok {
		return nil, notFound(addr)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	// Identity fields are fixed at creation.
	next.Address = current.Address
	next.Owner = current.Owner
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()
	s.entities[addr] = next
	return next.Clone(), nil
}

// ListByAuthority returns entities in any of the given states, ordered by address.
func (s *Store) ListByAuthority(_ context.Context, states ...player.Authority) ([]*player.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*player.Entity, 0)
	for _, e := range s.entities {
		if slices.Contains(states, e.Authority) {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *player.Entity) int {
		return slices.Compare(a.Address[:], b.Address[:])
	})
	return out, nil
}

// Len returns the number of entities in the arena.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

func notFound(addr player.Address) error {
	return oops.Code(player.CodeNotFound).With("address", addr.String()).Wrap(player.ErrNotFound)
}

// Compile-time interface check.
var _ player.Store = (*Store)(nil)
