// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// Envelope argument keys.
const (
	argAction          = "action"
	argContext         = "context"
	argCommitFrequency = "commit-frequency"
	argExpiry          = "expiry"
)

// Execution context selectors for actions.
const (
	contextAuto      = "auto"
	contextBase      = "base"
	contextDelegated = "delegated"
)

// result is what an executed envelope produced. Exactly one field is set.
type result struct {
	Entity     *player.Entity
	Record     *player.Record
	Descriptor *player.Descriptor
}

// submit verifies a signed envelope and executes it.
func (a *app) submit(ctx context.Context, data []byte) (auth.Envelope, *result, error) {
	env, err := a.verifier.Verify(ctx, data)
	if err != nil {
		return auth.Envelope{}, nil, err
	}
	res, err := a.execute(ctx, env)
	return env, res, err
}

// execute runs a verified envelope on behalf of its signer.
func (a *app) execute(ctx context.Context, env auth.Envelope) (*result, error) {
	switch env.Operation {
	case auth.OpInitialize:
		if env.Caller != env.Owner {
			return nil, oops.Code(player.CodeNotOwner).
				With("owner", env.Owner.String()).
				With("caller", env.Caller.String()).
				Wrapf(player.ErrNotOwner, "only the owner can initialize a record")
		}
		ent, err := a.entities.Initialize(ctx, env.Owner)
		if err != nil {
			return nil, err
		}
		return &result{Entity: ent}, nil

	case auth.OpDelegate:
		cfg, err := delegateConfig(env.Args)
		if err != nil {
			return nil, err
		}
		desc, err := a.controller.Delegate(ctx, env.Caller, env.Owner, cfg)
		if err != nil {
			return nil, err
		}
		return &result{Descriptor: &desc}, nil

	case auth.OpAction:
		action, err := player.ParseAction(env.Args[argAction])
		if err != nil {
			return nil, err
		}
		if err := env.Owner.Validate(); err != nil {
			return nil, err
		}
		addr := player.Derive(env.Owner)
		exec, err := a.resolveContext(ctx, addr, env.Args[argContext])
		if err != nil {
			return nil, err
		}
		rec, err := a.processor.ApplyAction(ctx, env.Caller, addr, action, exec)
		if err != nil {
			return nil, err
		}
		return &result{Record: rec}, nil

	case auth.OpUndelegate:
		ent, err := a.reconciler.Undelegate(ctx, env.Caller, env.Owner)
		if err != nil {
			return nil, err
		}
		return &result{Entity: ent}, nil
	}
	return nil, &player.ValidationError{Field: "operation", Message: "unknown operation " + env.Operation}
}

// resolveContext picks the execution context an action is submitted through.
// auto follows the authority marker; base and delegated are taken as given so
// that a submission to the wrong side is refused.
func (a *app) resolveContext(ctx context.Context, addr player.Address, sel string) (player.ExecutionContext, error) {
	switch sel {
	case "", contextAuto:
		state, desc, err := a.registry.Lookup(ctx, addr)
		if err != nil {
			return player.ExecutionContext{}, err
		}
		if state == player.DelegatedOwned && desc != nil {
			return player.Delegated(desc.ContextID), nil
		}
		return player.Base(), nil
	case contextBase:
		return player.Base(), nil
	case contextDelegated:
		return player.Delegated(a.node.ID()), nil
	}
	return player.ExecutionContext{}, &player.ValidationError{Field: "context", Message: "must be auto, base, or delegated"}
}

func delegateConfig(args map[string]string) (player.DelegateConfig, error) {
	var cfg player.DelegateConfig
	if v := args[argCommitFrequency]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, &player.ValidationError{Field: argCommitFrequency, Message: "must be a positive duration"}
		}
		cfg.CommitFrequency = d
	}
	if v := args[argExpiry]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, &player.ValidationError{Field: argExpiry, Message: "must be a non-negative duration"}
		}
		cfg.Expiry = d
	}
	return cfg, nil
}
