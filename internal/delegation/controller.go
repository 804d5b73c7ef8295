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

// Controller hands player records from the base ledger to the delegated
// context.
type Controller struct {
	base
}

// NewController creates a delegation controller.
func NewController(cfg Config) *Controller {
	return &Controller{base: newBase(cfg)}
}

// Delegate moves owner's record into the delegated context on behalf of
// caller, who must be the owner or an authorized payer. The entity passes
// through the Delegating checkpoint; if the transport fails there,
// ErrHandoffFailed is returned and Resume completes the hand-off later.
func (c *Controller) Delegate(ctx context.Context, caller, owner player.Identity, cfg player.DelegateConfig) (desc player.Descriptor, err error) {
	start := time.Now()
	defer func() { observability.RecordOperation("delegate", player.Status(err), time.Since(start)) }()

	ent, err := c.load(ctx, owner)
	if err != nil {
		return player.Descriptor{}, err
	}
	ctx, span := c.startSpan(ctx, "Delegate", ent.Address)
	defer func() { endSpan(span, err) }()

	if err := player.CheckCaller(ctx, c.authz, ent.Owner, caller); err != nil {
		return player.Descriptor{}, err
	}
	if ent.Authority != player.BaseOwned {
		return player.Descriptor{}, alreadyDelegated(ent.Address, ent.Authority)
	}

	ent, err = c.registry.Transition(ctx, ent.Address, player.BaseOwned, player.Delegating, func(e *player.Entity) error {
		e.Descriptor = &player.Descriptor{
			Address:   e.Address,
			Payer:     caller,
			Config:    cfg.WithDefaults(),
			CreatedAt: c.now(),
		}
		return nil
	})
	if errors.Is(err, player.ErrInvalidTransition) {
		// Lost a race with another delegate.
		return player.Descriptor{}, alreadyDelegated(player.Derive(owner), player.Delegating)
	}
	if err != nil {
		return player.Descriptor{}, err
	}

	return c.complete(ctx, ent, player.ActorFor(ent.Owner, caller))
}

// Resume finishes a hand-off left in the Delegating checkpoint. It reports
// whether there was anything to resume.
func (c *Controller) Resume(ctx context.Context, addr player.Address) (resumed bool, err error) {
	ctx, span := c.startSpan(ctx, "Resume", addr)
	defer func() { endSpan(span, err) }()

	ent, err := c.store.Get(ctx, addr)
	if err != nil {
		return false, err
	}
	if ent.Authority != player.Delegating {
		return false, nil
	}
	c.logger.InfoContext(ctx, "resuming delegation")
	if _, err := c.complete(ctx, ent, oplog.Actor{Kind: oplog.ActorSystem, ID: "resume"}); err != nil {
		return false, err
	}
	return true, nil
}

// complete runs the second half of a delegation: clone the record into the
// delegated context and move the marker to DelegatedOwned.
func (c *Controller) complete(ctx context.Context, ent *player.Entity, actor oplog.Actor) (player.Descriptor, error) {
	pending := ent.Descriptor
	if pending == nil {
		// A Delegating entity always carries its pending descriptor; rebuild
		// one with defaults if a store lost it.
		pending = &player.Descriptor{Address: ent.Address, Payer: ent.Owner, Config: player.DelegateConfig{}.WithDefaults(), CreatedAt: c.now()}
	}

	var desc player.Descriptor
	err := c.withRetry(ctx, "delegate", func(ctx context.Context) error {
		var err error
		desc, err = c.transport.Delegate(ctx, ent.Record, pending.Payer, pending.Config)
		return err
	}, isPermanent)
	if err != nil {
		return player.Descriptor{}, oops.Code(player.CodeHandoffFailed).
			With("address", ent.Address.String()).
			With("cause", err.Error()).
			Wrap(errors.Join(player.ErrHandoffFailed, err))
	}

	_, err = c.registry.Transition(ctx, ent.Address, player.Delegating, player.DelegatedOwned, func(e *player.Entity) error {
		e.Descriptor = &desc
		return nil
	})
	if errors.Is(err, player.ErrInvalidTransition) {
		// Lost a race with a concurrent resume of the same hand-off.
		if current, gerr := c.store.Get(ctx, ent.Address); gerr == nil &&
			current.Authority == player.DelegatedOwned && current.Descriptor != nil {
			c.logger.InfoContext(ctx, "delegation completed concurrently", "descriptor", current.Descriptor.ID.String())
			return *current.Descriptor, nil
		}
	}
	if err != nil {
		return player.Descriptor{}, err
	}

	c.journal.Record(ctx, ent.Address.String(), oplog.EntryDelegated, actor, "Player delegated",
		map[string]any{
			"context":          desc.ContextID,
			"descriptor":       desc.ID.String(),
			"payer":            desc.Payer.String(),
			"commit_frequency": desc.Config.CommitFrequency.String(),
			"expiry":           desc.Config.Expiry.String(),
		})
	return desc, nil
}

func alreadyDelegated(addr player.Address, state player.Authority) error {
	return oops.Code(player.CodeAlreadyDelegated).
		With("address", addr.String()).
		With("authority", state.String()).
		Wrap(player.ErrAlreadyDelegated)
}

// isPermanent reports errors that retrying a transport call cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, player.ErrWrongAuthority) ||
		errors.Is(err, player.ErrNotDelegated) ||
		errors.Is(err, player.ErrCounterOverflow) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
