// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/logging"
	"github.com/nrdxhq/blockstranding/internal/observability"
	"github.com/nrdxhq/blockstranding/internal/oplog"
)

// Executor applies actions inside a delegated context. Implementations must
// refuse with ErrWrongAuthority when they hold no live replica for desc.
type Executor interface {
	Execute(ctx context.Context, desc Descriptor, action Action) (Record, error)
}

// ProcessorConfig holds dependencies for Processor.
type ProcessorConfig struct {
	Store      Store
	Authorizer Authorizer
	// Executors maps delegated context ids to the context that runs actions
	// for entities delegated there.
	Executors map[string]Executor
	Journal   *oplog.Journal
}

// Processor applies Move and Attack to player records. It is the only
// mutator of counters.
type Processor struct {
	store     Store
	authz     Authorizer
	executors map[string]Executor
	journal   *oplog.Journal
}

// NewProcessor creates a Processor with the given configuration.
func NewProcessor(cfg ProcessorConfig) *Processor {
	authz := cfg.Authorizer
	if authz == nil {
		authz = OwnerOnly{}
	}
	return &Processor{
		store:     cfg.Store,
		authz:     authz,
		executors: cfg.Executors,
		journal:   cfg.Journal,
	}
}

// ApplyAction applies action to the entity at addr on behalf of caller,
// submitted through exec. It fails with ErrWrongAuthority, leaving counters
// untouched, unless exec is the context that currently holds authority.
func (p *Processor) ApplyAction(ctx context.Context, caller Identity, addr Address, action Action, exec ExecutionContext) (rec *Record, err error) {
	start := time.Now()
	defer func() { observability.RecordOperation("action", Status(err), time.Since(start)) }()
	ctx = logging.WithExecContext(logging.WithPlayer(ctx, addr.String()), exec.String())

	if action != ActionMove && action != ActionAttack {
		return nil, &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %d", action)}
	}

	var owner Identity
	switch exec.Kind {
	case ContextBase:
		ent, err := p.store.Update(ctx, addr, func(e *Entity) error {
			if err := CheckCaller(ctx, p.authz, e.Owner, caller); err != nil {
				return err
			}
			if !e.Authority.Permits(exec, e.Descriptor) {
				return wrongAuthority(addr, exec, e.Authority)
			}
			return e.Apply(action)
		})
		if err != nil {
			return nil, err
		}
		owner = ent.Owner
		rec = &ent.Record
	case ContextDelegated:
		ent, err := p.store.Get(ctx, addr)
		if err != nil {
			return nil, err
		}
		if err := CheckCaller(ctx, p.authz, ent.Owner, caller); err != nil {
			return nil, err
		}
		if !ent.Authority.Permits(exec, ent.Descriptor) {
			return nil, wrongAuthority(addr, exec, ent.Authority)
		}
		executor, ok := p.executors[exec.ID]
		if !ok {
			return nil, oops.Code(CodeWrongAuthority).
				With("address", addr.String()).
				With("context", exec.String()).
				Wrapf(ErrWrongAuthority, "no executor registered for context")
		}
		out, err := executor.Execute(ctx, *ent.Descriptor, action)
		if err != nil {
			return nil, err
		}
		owner = ent.Owner
		out.Address = addr
		out.Owner = ent.Owner
		rec = &out
	default:
		return nil, &ValidationError{Field: "context", Message: "unknown execution context"}
	}

	p.journal.Record(ctx, addr.String(), oplog.EntryAction, ActorFor(owner, caller),
		fmt.Sprintf("Player %s performed action %s. %s: %d", addr, action, action.CounterName(), rec.Counter(action)),
		map[string]any{"action": action.String(), "context": exec.String(), "value": rec.Counter(action)})
	return rec, nil
}

func wrongAuthority(addr Address, exec ExecutionContext, current Authority) error {
	return oops.Code(CodeWrongAuthority).
		With("address", addr.String()).
		With("context", exec.String()).
		With("authority", current.String()).
		Wrap(ErrWrongAuthority)
}
