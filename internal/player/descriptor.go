// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultCommitFrequency is used when a DelegateConfig leaves CommitFrequency unset.
const DefaultCommitFrequency = 30 * time.Second

// DelegateConfig is the delegation policy requested by the caller.
type DelegateConfig struct {
	// CommitFrequency is how often delegated state is committed back to the
	// base ledger while the entity stays delegated.
	CommitFrequency time.Duration `cbor:"1,keyasint" json:"commit_frequency"`
	// Expiry forces reconciliation once the delegation is this old. Zero
	// means the delegation never expires.
	Expiry time.Duration `cbor:"2,keyasint" json:"expiry"`
}

// WithDefaults fills unset fields.
func (c DelegateConfig) WithDefaults() DelegateConfig {
	if c.CommitFrequency <= 0 {
		c.CommitFrequency = DefaultCommitFrequency
	}
	if c.Expiry < 0 {
		c.Expiry = 0
	}
	return c
}

// Descriptor records an active delegation. It is owned by the authority
// registry and discarded when reconciliation completes.
type Descriptor struct {
	// ID is assigned by the delegated context. Zero while the entity is
	// still in the Delegating checkpoint.
	ID      ulid.ULID `cbor:"1,keyasint"`
	Address Address   `cbor:"2,keyasint"`
	// ContextID names the delegated context holding authority.
	ContextID string         `cbor:"3,keyasint"`
	Payer     Identity       `cbor:"4,keyasint"`
	Config    DelegateConfig `cbor:"5,keyasint"`
	CreatedAt time.Time      `cbor:"6,keyasint"`
	// CommittedSlot is the rollup slot of the last snapshot written into the
	// base copy.
	CommittedSlot uint64    `cbor:"7,keyasint"`
	LastCommitAt  time.Time `cbor:"8,keyasint"`
}

// Pending reports whether the delegated context has not yet acknowledged.
func (d *Descriptor) Pending() bool {
	return d.ID.IsZero()
}

// Expired reports whether the delegation has outlived its configured expiry.
func (d *Descriptor) Expired(now time.Time) bool {
	if d.Config.Expiry <= 0 || d.CreatedAt.IsZero() {
		return false
	}
	return !now.Before(d.CreatedAt.Add(d.Config.Expiry))
}

// CommitDue reports whether a periodic commit should run.
func (d *Descriptor) CommitDue(now time.Time) bool {
	last := d.LastCommitAt
	if last.IsZero() {
		last = d.CreatedAt
	}
	freq := d.Config.WithDefaults().CommitFrequency
	return !now.Before(last.Add(freq))
}

// Snapshot is the state of a delegated replica at a rollup slot.
type Snapshot struct {
	DescriptorID  ulid.ULID `cbor:"1,keyasint"`
	Address       Address   `cbor:"2,keyasint"`
	MoveCounter   uint64    `cbor:"3,keyasint"`
	AttackCounter uint64    `cbor:"4,keyasint"`
	Slot          uint64    `cbor:"5,keyasint"`
	TakenAt       time.Time `cbor:"6,keyasint"`
}
