// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samber/oops"
	"github.com/zeebo/blake3"
)

// Account layout: an 8-byte type discriminator followed by the two counters
// as little-endian u64. AccountSpace is the exact allocation for one record.
const (
	discriminatorSize = 8
	counterSize       = 8
	AccountSpace      = discriminatorSize + 2*counterSize
)

// accountDiscriminator tags player account data.
var accountDiscriminator = func() [discriminatorSize]byte {
	sum := blake3.Sum256([]byte("account:Player"))
	var d [discriminatorSize]byte
	copy(d[:], sum[:discriminatorSize])
	return d
}()

// Action is a domain operation applied to a player record.
type Action uint8

const (
	ActionMove Action = iota + 1
	ActionAttack
)

func (a Action) String() string {
	switch a {
	case ActionMove:
		return "Move"
	case ActionAttack:
		return "Attack"
	default:
		return "unknown"
	}
}

// CounterName returns the human-readable name of the counter the action bumps.
func (a Action) CounterName() string {
	switch a {
	case ActionMove:
		return "Move counter"
	case ActionAttack:
		return "Attack counter"
	default:
		return "unknown counter"
	}
}

// ParseAction parses an action name: "move" or "attack", lower case or
// capitalized.
func ParseAction(s string) (Action, error) {
	switch s {
	case "move", "Move":
		return ActionMove, nil
	case "attack", "Attack":
		return ActionAttack, nil
	default:
		return 0, &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", s)}
	}
}

// Record is the player state: who owns it and two monotonic counters.
type Record struct {
	Address       Address
	Owner         Identity
	MoveCounter   uint64
	AttackCounter uint64
}

// NewRecord returns a zeroed record for owner at its derived address.
func NewRecord(owner Identity) (*Record, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return &Record{Address: Derive(owner), Owner: owner}, nil
}

// Apply increments the counter selected by action. The record is unchanged
// when the increment would overflow.
func (r *Record) Apply(action Action) error {
	var counter *uint64
	switch action {
	case ActionMove:
		counter = &r.MoveCounter
	case ActionAttack:
		counter = &r.AttackCounter
	default:
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %d", action)}
	}
	if *counter == math.MaxUint64 {
		return oops.Code(CodeCounterOverflow).
			With("address", r.Address.String()).
			With("action", action.String()).
			Wrap(ErrCounterOverflow)
	}
	*counter++
	return nil
}

// Counter returns the value of the counter selected by action.
func (r *Record) Counter(action Action) uint64 {
	if action == ActionAttack {
		return r.AttackCounter
	}
	return r.MoveCounter
}

// EncodeAccount serializes the counters into exactly AccountSpace bytes.
func EncodeAccount(r Record) []byte {
	buf := make([]byte, AccountSpace)
	copy(buf, accountDiscriminator[:])
	binary.LittleEndian.PutUint64(buf[discriminatorSize:], r.MoveCounter)
	binary.LittleEndian.PutUint64(buf[discriminatorSize+counterSize:], r.AttackCounter)
	return buf
}

// DecodeAccount reads counters from account data written by EncodeAccount.
// Address and owner are not part of the account data and must be set by the caller.
func DecodeAccount(data []byte) (Record, error) {
	if len(data) != AccountSpace {
		return Record{}, oops.Code("ACCOUNT_DECODE_FAILED").
			With("size", len(data)).
			Errorf("account data must be %d bytes", AccountSpace)
	}
	if [discriminatorSize]byte(data[:discriminatorSize]) != accountDiscriminator {
		return Record{}, oops.Code("ACCOUNT_DECODE_FAILED").Errorf("account discriminator mismatch")
	}
	return Record{
		MoveCounter:   binary.LittleEndian.Uint64(data[discriminatorSize:]),
		AttackCounter: binary.LittleEndian.Uint64(data[discriminatorSize+counterSize:]),
	}, nil
}
