// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package delegation

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/observability"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
)

var systemActor = oplog.Actor{Kind: oplog.ActorSystem, ID: "sweeper"}

// Reconciler commits delegated state back to the base ledger.
type Reconciler struct {
	base
}

// NewReconciler creates a reconciliation controller.
func NewReconciler(cfg Config) *Reconciler {
	return &Reconciler{base: newBase(cfg)}
}

// Undelegate seals the delegated copy of owner's record, commits its latest
// state into the base copy, and returns authority to the base ledger.
//
// Calling Undelegate on an entity already in Reconciling retries the commit;
// this is how a caller recovers from ErrCommitFailed.
func (r *Reconciler) Undelegate(ctx context.Context, caller, owner player.Identity) (ent *player.Entity, err error) {
	start := time.Now()
	defer func() { observability.RecordOperation("undelegate", player.Status(err), time.Since(start)) }()

	ent, err = r.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	ctx, span := r.startSpan(ctx, "Undelegate", ent.Address)
	defer func() { endSpan(span, err) }()

	if err := player.CheckCaller(ctx, r.authz, ent.Owner, caller); err != nil {
		return nil, err
	}
	return r.reconcile(ctx, ent, player.ActorFor(ent.Owner, caller))
}

// Reclaim is Undelegate initiated by the system for an expired delegation.
// No caller check applies.
func (r *Reconciler) Reclaim(ctx context.Context, addr player.Address) (ent *player.Entity, err error) {
	start := time.Now()
	defer func() { observability.RecordOperation("reclaim", player.Status(err), time.Since(start)) }()

	ctx, span := r.startSpan(ctx, "Reclaim", addr)
	defer func() { endSpan(span, err) }()

	ent, err = r.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "reclaiming delegation", "authority", ent.Authority.String())
	return r.reconcile(ctx, ent, systemActor)
}

// Resume completes a reconciliation left in the Reconciling checkpoint. It
// reports whether there was anything to resume.
func (r *Reconciler) Resume(ctx context.Context, addr player.Address) (resumed bool, err error) {
	ctx, span := r.startSpan(ctx, "Resume", addr)
	defer func() { endSpan(span, err) }()

	ent, err := r.store.Get(ctx, addr)
	if err != nil {
		return false, err
	}
	if ent.Authority != player.Reconciling {
		return false, nil
	}
	_, err = r.finish(ctx, ent, oplog.Actor{Kind: oplog.ActorSystem, ID: "resume"})
	if errors.Is(err, player.ErrNotDelegated) {
		// Another reconciliation finished it first.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Commit writes the delegated state into the base copy while the entity
// stays delegated. Counters are written only if the delegated context has
// advanced past the last committed slot; it reports whether they were.
func (r *Reconciler) Commit(ctx context.Context, addr player.Address) (committed bool, err error) {
	start := time.Now()
	defer func() { observability.RecordOperation("commit", player.Status(err), time.Since(start)) }()

	ctx, span := r.startSpan(ctx, "Commit", addr)
	defer func() { endSpan(span, err) }()

	ent, err := r.store.Get(ctx, addr)
	if err != nil {
		return false, err
	}
	if ent.Authority != player.DelegatedOwned || ent.Descriptor == nil {
		return false, notDelegated(addr, ent.Authority)
	}
	desc := *ent.Descriptor

	snap, err := r.transport.Snapshot(ctx, desc)
	if err != nil {
		return false, oops.Code("DELEGATION_SNAPSHOT_FAILED").With("address", addr.String()).Wrap(err)
	}

	now := r.now()
	updated, err := r.store.Update(ctx, addr, func(e *player.Entity) error {
		if e.Authority != player.DelegatedOwned || e.Descriptor == nil || e.Descriptor.ID != desc.ID {
			return notDelegated(addr, e.Authority)
		}
		if snap.Slot > e.Descriptor.CommittedSlot {
			e.Commit(snap, now)
			committed = true
			return nil
		}
		e.Descriptor.LastCommitAt = now
		return nil
	})
	if err != nil {
		return false, err
	}
	if committed {
		r.journal.Record(ctx, addr.String(), oplog.EntryCommitted, systemActor, "Player committed",
			map[string]any{"slot": snap.Slot, "move": updated.MoveCounter, "attack": updated.AttackCounter})
	}
	return committed, nil
}

// reconcile moves a DelegatedOwned entity to Reconciling and finishes it.
// Reconciling entities go straight to finish.
func (r *Reconciler) reconcile(ctx context.Context, ent *player.Entity, actor oplog.Actor) (*player.Entity, error) {
	switch ent.Authority {
	case player.DelegatedOwned:
		moved, err := r.registry.Transition(ctx, ent.Address, player.DelegatedOwned, player.Reconciling, nil)
		if errors.Is(err, player.ErrInvalidTransition) {
			// Lost a race with another reconciliation.
			return nil, r.currentlyNotDelegated(ctx, ent.Address, err)
		}
		if err != nil {
			return nil, err
		}
		ent = moved
	case player.Reconciling:
		r.logger.InfoContext(ctx, "retrying reconciliation")
	default:
		return nil, notDelegated(ent.Address, ent.Authority)
	}
	return r.finish(ctx, ent, actor)
}

// finish fetches the sealed delegated state, commits it with the transition
// back to BaseOwned, and releases the delegated copy.
func (r *Reconciler) finish(ctx context.Context, ent *player.Entity, actor oplog.Actor) (*player.Entity, error) {
	if ent.Descriptor == nil || ent.Descriptor.Pending() {
		return nil, oops.Code(player.CodeCommitFailed).
			With("address", ent.Address.String()).
			With("cause", "no active descriptor").
			Wrap(player.ErrCommitFailed)
	}
	desc := *ent.Descriptor

	var snap player.Snapshot
	err := r.withRetry(ctx, "fetch_latest", func(ctx context.Context) error {
		var err error
		snap, err = r.transport.FetchLatest(ctx, desc)
		if err != nil {
			observability.RecordReconcileAttempt(observability.OutcomeRetry)
		}
		return err
	}, isPermanent)
	if err != nil {
		observability.RecordReconcileAttempt(observability.OutcomeExhausted)
		failed := oops.Code(player.CodeCommitFailed).
			With("address", ent.Address.String()).
			With("descriptor", desc.ID.String()).
			With("cause", err.Error()).
			Wrap(player.ErrCommitFailed)
		if settled := r.settledElsewhere(ctx, ent.Address); settled != nil {
			return nil, settled
		}
		r.logger.ErrorContext(ctx, "reconciliation fetch failed; entity stays reconciling", "error", err)
		return nil, failed
	}
	observability.RecordReconcileAttempt(observability.OutcomeCommitted)

	now := r.now()
	done, err := r.registry.Transition(ctx, ent.Address, player.Reconciling, player.BaseOwned, func(e *player.Entity) error {
		if e.Descriptor == nil || e.Descriptor.ID != snap.DescriptorID {
			return oops.Code(player.CodeCommitFailed).
				With("address", ent.Address.String()).
				With("cause", "snapshot belongs to another delegation").
				Wrap(player.ErrCommitFailed)
		}
		e.Commit(snap, now)
		return nil
	})
	if err != nil {
		if settled := r.settledElsewhere(ctx, ent.Address); settled != nil {
			return nil, settled
		}
		return nil, err
	}

	if err := r.transport.Release(ctx, desc); err != nil {
		r.logger.WarnContext(ctx, "failed to release delegated copy", "descriptor", desc.ID.String(), "error", err)
	}

	r.journal.Record(ctx, ent.Address.String(), oplog.EntryUndelegated, actor, "Player committed and undelegated",
		map[string]any{
			"slot":   snap.Slot,
			"move":   done.MoveCounter,
			"attack": done.AttackCounter,
		})
	return done, nil
}

// settledElsewhere re-reads the entity after a failed reconciliation step. If
// it has left Reconciling, a concurrent reconciliation completed it and the
// returned error is NotDelegated; otherwise it returns nil and the caller's
// own failure stands.
func (r *Reconciler) settledElsewhere(ctx context.Context, addr player.Address) error {
	current, err := r.store.Get(ctx, addr)
	if err != nil || current.Authority == player.Reconciling {
		return nil
	}
	r.logger.InfoContext(ctx, "reconciliation completed concurrently", "authority", current.Authority.String())
	return notDelegated(addr, current.Authority)
}

// currentlyNotDelegated reports NotDelegated with the entity's present state,
// falling back to cause when it cannot be read.
func (r *Reconciler) currentlyNotDelegated(ctx context.Context, addr player.Address, cause error) error {
	current, err := r.store.Get(ctx, addr)
	if err != nil {
		return cause
	}
	return notDelegated(addr, current.Authority)
}
