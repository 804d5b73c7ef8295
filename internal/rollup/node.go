// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package rollup is a delegated execution context: it holds replicas of
// delegated player records, applies actions to them at high frequency, and
// hands snapshots back for commit to the base ledger.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/player"
)

// ErrReplicaNotFound is returned when the node holds no replica for a
// descriptor and never retired it either. It matches player.ErrNotDelegated.
var ErrReplicaNotFound = fmt.Errorf("rollup replica not found: %w", player.ErrNotDelegated)

// Node is a rollup node. Operations are serialized by a single mutex within
// the process; the replica store keeps concurrent nodes on one file consistent.
type Node struct {
	id      string
	mu      sync.Mutex
	store   *replicaStore
	logger  *slog.Logger
	now     func() time.Time
	entropy func() ulid.ULID
}

// Open opens (or creates) the replica database at path for the node named id.
// path may be ":memory:".
func Open(ctx context.Context, id, path string, logger *slog.Logger) (*Node, error) {
	if id == "" {
		return nil, oops.Code("ROLLUP_CONFIG_INVALID").Errorf("rollup id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := openReplicaStore(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Node{
		id:      id,
		store:   s,
		logger:  logger.With("rollup", id),
		now:     time.Now,
		entropy: ulid.Make,
	}, nil
}

// ID returns the context id this node writes into descriptors.
func (n *Node) ID() string {
	return n.id
}

// Close closes the replica database.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.close()
}

// Delegate clones rec into a new replica and returns its descriptor. While a
// live replica for rec.Address exists the existing descriptor is returned, so
// a retried hand-off does not fork the record. A sealed leftover from an
// earlier delegation is retired and replaced.
func (n *Node) Delegate(ctx context.Context, rec player.Record, payer player.Identity, cfg player.DelegateConfig) (player.Descriptor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		existing, err := n.store.get(ctx, rec.Address)
		switch {
		case err == nil && !existing.sealed:
			n.logger.DebugContext(ctx, "delegate replayed", "address", rec.Address.String(), "descriptor", existing.desc.ID.String())
			return existing.desc, nil
		case err == nil:
			if err := n.store.retire(ctx, rec.Address, existing.desc.ID, n.now()); err != nil {
				return player.Descriptor{}, err
			}
		case !errors.Is(err, errNoReplica):
			return player.Descriptor{}, err
		}

		desc := player.Descriptor{
			ID:        n.entropy(),
			Address:   rec.Address,
			ContextID: n.id,
			Payer:     payer,
			Config:    cfg.WithDefaults(),
			CreatedAt: n.now(),
		}
		created, err := n.store.insert(ctx, &replica{desc: desc, account: player.EncodeAccount(rec)})
		if err != nil {
			return player.Descriptor{}, err
		}
		if created {
			n.logger.InfoContext(ctx, "replica created", "address", rec.Address.String(), "descriptor", desc.ID.String())
			return desc, nil
		}
		// Another process created a replica first; adopt it on the next pass.
		if err := ctx.Err(); err != nil {
			return player.Descriptor{}, oops.Code("ROLLUP_WRITE_FAILED").Wrap(err)
		}
	}
}

// Execute applies action to the live replica for desc and returns the new
// record. It refuses with player.ErrWrongAuthority once the replica is sealed,
// released, or replaced. A write only lands on the exact slot it was computed
// from, so a concurrent seal from another process is never overwritten.
func (n *Node) Execute(ctx context.Context, desc player.Descriptor, action player.Action) (player.Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for {
		r, err := n.live(ctx, desc)
		if err != nil {
			return player.Record{}, err
		}
		if r.sealed {
			return player.Record{}, n.refuse(desc, "sealed")
		}

		rec, err := player.DecodeAccount(r.account)
		if err != nil {
			return player.Record{}, err
		}
		rec.Address = desc.Address
		if err := rec.Apply(action); err != nil {
			return player.Record{}, err
		}
		ok, err := n.store.advance(ctx, desc.ID, player.EncodeAccount(rec), r.slot)
		if err != nil {
			return player.Record{}, err
		}
		if ok {
			return rec, nil
		}
		if err := ctx.Err(); err != nil {
			return player.Record{}, oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", desc.ID.String()).Wrap(err)
		}
	}
}

// Snapshot returns the current replica state without sealing it.
func (n *Node) Snapshot(ctx context.Context, desc player.Descriptor) (player.Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	r, err := n.live(ctx, desc)
	if err != nil {
		return player.Snapshot{}, err
	}
	return n.snapshot(r)
}

// FetchLatest seals the replica so no further delegated write can land and
// returns its final state. Repeated calls return the same snapshot.
func (n *Node) FetchLatest(ctx context.Context, desc player.Descriptor) (player.Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := n.live(ctx, desc); err != nil {
		return player.Snapshot{}, err
	}
	sealed, err := n.store.seal(ctx, desc.ID)
	if err != nil {
		return player.Snapshot{}, err
	}
	// Read back after sealing: every write acknowledged before the seal is in
	// the row, and none can follow it.
	r, err := n.live(ctx, desc)
	if err != nil {
		return player.Snapshot{}, err
	}
	if sealed {
		n.logger.InfoContext(ctx, "replica sealed", "address", desc.Address.String(), "slot", r.slot)
	}
	return n.snapshot(r)
}

// Release drops the replica for desc and retires its descriptor. Releasing
// an unknown or already released descriptor is a no-op.
func (n *Node) Release(ctx context.Context, desc player.Descriptor) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.store.retire(ctx, desc.Address, desc.ID, n.now()); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "replica released", "address", desc.Address.String(), "descriptor", desc.ID.String())
	return nil
}

// Replicas returns the number of replicas the node currently holds.
func (n *Node) Replicas(ctx context.Context) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.count(ctx)
}

// live returns the replica belonging to desc, refusing retired or replaced
// descriptors. Sealed replicas are returned; callers decide.
func (n *Node) live(ctx context.Context, desc player.Descriptor) (*replica, error) {
	r, err := n.store.get(ctx, desc.Address)
	if err != nil && !errors.Is(err, errNoReplica) {
		return nil, err
	}
	if err == nil && r.desc.ID == desc.ID {
		return r, nil
	}

	retired, rerr := n.store.retired(ctx, desc.ID)
	if rerr != nil {
		return nil, rerr
	}
	if retired || err == nil {
		return nil, n.refuse(desc, "retired")
	}
	return nil, oops.Code("ROLLUP_REPLICA_NOT_FOUND").
		With("rollup", n.id).
		With("address", desc.Address.String()).
		With("descriptor", desc.ID.String()).
		Wrap(ErrReplicaNotFound)
}

func (n *Node) refuse(desc player.Descriptor, reason string) error {
	return oops.Code(player.CodeWrongAuthority).
		With("rollup", n.id).
		With("address", desc.Address.String()).
		With("descriptor", desc.ID.String()).
		With("reason", reason).
		Wrap(player.ErrWrongAuthority)
}

func (n *Node) snapshot(r *replica) (player.Snapshot, error) {
	rec, err := player.DecodeAccount(r.account)
	if err != nil {
		return player.Snapshot{}, err
	}
	return player.Snapshot{
		DescriptorID:  r.desc.ID,
		Address:       r.desc.Address,
		MoveCounter:   rec.MoveCounter,
		AttackCounter: rec.AttackCounter,
		Slot:          r.slot,
		TakenAt:       n.now(),
	}, nil
}

var _ player.Executor = (*Node)(nil)
