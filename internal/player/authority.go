// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import "fmt"

// Authority is the persisted marker saying which execution context may write
// a player record. Delegating and Reconciling are checkpoints between the two
// halves of a hand-off; no context may write while an entity is in either.
type Authority uint8

const (
	BaseOwned Authority = iota
	Delegating
	DelegatedOwned
	Reconciling
)

func (a Authority) String() string {
	switch a {
	case BaseOwned:
		return "base_owned"
	case Delegating:
		return "delegating"
	case DelegatedOwned:
		return "delegated_owned"
	case Reconciling:
		return "reconciling"
	default:
		return fmt.Sprintf("authority(%d)", uint8(a))
	}
}

// ParseAuthority parses the persisted text form of an Authority.
func ParseAuthority(s string) (Authority, error) {
	switch s {
	case "base_owned":
		return BaseOwned, nil
	case "delegating":
		return Delegating, nil
	case "delegated_owned":
		return DelegatedOwned, nil
	case "reconciling":
		return Reconciling, nil
	default:
		return 0, &ValidationError{Field: "authority", Message: fmt.Sprintf("unknown state %q", s)}
	}
}

// IsCheckpoint reports whether the state is an intermediate hand-off state.
func (a Authority) IsCheckpoint() bool {
	return a == Delegating || a == Reconciling
}

// sanctioned lists the only allowed transitions.
var sanctioned = map[Authority]Authority{
	BaseOwned:      Delegating,
	Delegating:     DelegatedOwned,
	DelegatedOwned: Reconciling,
	Reconciling:    BaseOwned,
}

// CanTransition reports whether from→to is a sanctioned edge.
func CanTransition(from, to Authority) bool {
	next, ok := sanctioned[from]
	return ok && next == to
}

// ContextKind distinguishes the base ledger from a delegated context.
type ContextKind uint8

const (
	ContextBase ContextKind = iota
	ContextDelegated
)

func (k ContextKind) String() string {
	if k == ContextDelegated {
		return "delegated"
	}
	return "base"
}

// ExecutionContext identifies where an action was submitted. ID names the
// delegated context (rollup node) and is empty for the base ledger.
type ExecutionContext struct {
	Kind ContextKind
	ID   string
}

// Base returns the base ledger execution context.
func Base() ExecutionContext {
	return ExecutionContext{Kind: ContextBase}
}

// Delegated returns the execution context of the delegated context id.
func Delegated(id string) ExecutionContext {
	return ExecutionContext{Kind: ContextDelegated, ID: id}
}

func (c ExecutionContext) String() string {
	if c.Kind == ContextDelegated {
		return "delegated:" + c.ID
	}
	return "base"
}

// Permits reports whether exec may write an entity in state a. For
// DelegatedOwned the context id must match the active descriptor, so a
// context holding a retired descriptor is refused.
func (a Authority) Permits(exec ExecutionContext, desc *Descriptor) bool {
	switch a {
	case BaseOwned:
		return exec.Kind == ContextBase
	case DelegatedOwned:
		return exec.Kind == ContextDelegated && desc != nil && desc.ContextID == exec.ID
	default:
		return false
	}
}
