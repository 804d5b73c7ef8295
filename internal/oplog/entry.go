// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package oplog records a human-readable trail of player lifecycle operations.
package oplog

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EntryType identifies the kind of operation recorded.
type EntryType string

const (
	EntryInitialized EntryType = "initialized"
	EntryDelegated   EntryType = "delegated"
	EntryAction      EntryType = "action"
	EntryCommitted   EntryType = "committed"
	EntryUndelegated EntryType = "undelegated"
	EntryRecovered   EntryType = "recovered"
)

// ActorKind identifies who caused an operation.
type ActorKind uint8

const (
	ActorOwner ActorKind = iota
	ActorPayer
	ActorSystem
)

func (a ActorKind) String() string {
	switch a {
	case ActorOwner:
		return "owner"
	case ActorPayer:
		return "payer"
	case ActorSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Actor represents who or what caused an operation.
type Actor struct {
	Kind ActorKind
	ID   string // identity, or "sweeper" for system actors
}

// Entry is one operation log record.
type Entry struct {
	ID        ulid.ULID
	Stream    string // "player:<address>"
	Type      EntryType
	Timestamp time.Time
	Actor     Actor
	Message   string
	Payload   []byte // JSON
}

// Stream returns the stream name for a player address in hex form.
func Stream(address string) string {
	return "player:" + address
}
