// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package auth

import (
	"context"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/player"
)

// AnyOwner is the owner key whose patterns apply to every owner.
const AnyOwner = "*"

type compiledPayer struct {
	pattern string
	glob    glob.Glob
}

// PayerPolicy authorizes payers to act for owners. Patterns are globs over
// payer identities; "*" matches every payer. Owners are always authorized
// for their own records.
type PayerPolicy struct {
	mu     sync.RWMutex
	payers map[player.Identity][]compiledPayer
}

// NewPayerPolicy compiles rules, a map from owner identity (or AnyOwner) to
// payer patterns.
func NewPayerPolicy(rules map[string][]string) (*PayerPolicy, error) {
	p := &PayerPolicy{payers: make(map[player.Identity][]compiledPayer, len(rules))}
	for owner, patterns := range rules {
		if err := p.Allow(player.Identity(owner), patterns...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Allow adds payer patterns for owner. Nothing is added if any pattern
// fails to compile.
func (p *PayerPolicy) Allow(owner player.Identity, patterns ...string) error {
	if owner == "" {
		return oops.Code("AUTH_POLICY_INVALID").Errorf("owner cannot be empty")
	}
	compiled := make([]compiledPayer, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern == "" {
			return oops.Code("AUTH_POLICY_INVALID").With("owner", owner.String()).Errorf("empty payer pattern")
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return oops.Code("AUTH_POLICY_INVALID").
				With("owner", owner.String()).
				With("pattern", pattern).
				Wrap(err)
		}
		compiled = append(compiled, compiledPayer{pattern: pattern, glob: g})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.payers[owner] = append(p.payers[owner], compiled...)
	return nil
}

// Patterns returns the payer patterns that apply to owner, including the
// AnyOwner patterns.
func (p *PayerPolicy) Patterns(owner player.Identity) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for _, key := range []player.Identity{owner, AnyOwner} {
		for _, c := range p.payers[key] {
			out = append(out, c.pattern)
		}
	}
	return out
}

// Authorized implements player.Authorizer.
func (p *PayerPolicy) Authorized(_ context.Context, owner, caller player.Identity) bool {
	if caller == "" {
		return false
	}
	if owner == caller {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, key := range []player.Identity{owner, AnyOwner} {
		for _, c := range p.payers[key] {
			if c.glob.Match(caller.String()) {
				return true
			}
		}
	}
	return false
}

var _ player.Authorizer = (*PayerPolicy)(nil)
