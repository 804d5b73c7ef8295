// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"context"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/observability"
)

// Registry owns the authority marker of every entity and the delegation
// descriptor while an entity is delegated. Every transition is a
// check-and-set through Store.Update, so two contexts can never both observe
// themselves as the writer.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over s.
func NewRegistry(s Store) *Registry {
	return &Registry{store: s}
}

// CurrentAuthority returns the marker state of the entity at addr. Errors are
// limited to ErrNotFound for an uninitialized address and store read failures.
func (r *Registry) CurrentAuthority(ctx context.Context, addr Address) (Authority, error) {
	e, err := r.store.Get(ctx, addr)
	if err != nil {
		return BaseOwned, err
	}
	return e.Authority, nil
}

// Lookup returns the marker state together with the active descriptor, if any.
func (r *Registry) Lookup(ctx context.Context, addr Address) (Authority, *Descriptor, error) {
	e, err := r.store.Get(ctx, addr)
	if err != nil {
		return BaseOwned, nil, err
	}
	return e.Authority, e.Descriptor, nil
}

// Transition moves the entity at addr from one state to the next sanctioned
// state. mutate, if non-nil, runs inside the same atomic update after the
// state check, letting callers attach a descriptor or commit a snapshot in
// the same step. An error from mutate aborts the transition.
func (r *Registry) Transition(ctx context.Context, addr Address, from, to Authority, mutate func(e *Entity) error) (*Entity, error) {
	if !CanTransition(from, to) {
		return nil, invalidTransition(addr, from, to, from)
	}
	ent, err := r.store.Update(ctx, addr, func(e *Entity) error {
		if e.Authority != from {
			return invalidTransition(addr, from, to, e.Authority)
		}
		if mutate != nil {
			if err := mutate(e); err != nil {
				return err
			}
		}
		e.Authority = to
		if to == BaseOwned {
			// The descriptor does not outlive the delegation.
			e.Descriptor = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.RecordTransition(from.String(), to.String())
	return ent, nil
}

func invalidTransition(addr Address, from, to, current Authority) error {
	return oops.Code(CodeInvalidTransition).
		With("address", addr.String()).
		With("from", from.String()).
		With("to", to.String()).
		With("current", current.String()).
		Wrap(ErrInvalidTransition)
}
