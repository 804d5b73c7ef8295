// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package oplog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrStreamEmpty is returned when a stream has no entries.
var ErrStreamEmpty = errors.New("stream is empty")

// Sink receives operation log entries.
type Sink interface {
	// Append persists an entry to its stream.
	Append(ctx context.Context, entry Entry) error
}

// Store is a Sink that can also replay entries.
type Store interface {
	Sink

	// Replay returns up to limit entries from a stream, starting after afterID.
	// If afterID is the zero ULID, starts from the beginning.
	Replay(ctx context.Context, stream string, afterID ulid.ULID, limit int) ([]Entry, error)
}

// Journal builds entries and hands them to a sink. The log is advisory, so
// sink failures are logged and never returned to the operation that caused them.
type Journal struct {
	sink   Sink
	logger *slog.Logger
}

// NewJournal creates a journal. A nil sink discards entries; a nil logger
// uses slog.Default.
func NewJournal(sink Sink, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{sink: sink, logger: logger}
}

// Record appends an entry for the player at address.
func (j *Journal) Record(ctx context.Context, address string, typ EntryType, actor Actor, message string, payload any) {
	if j == nil {
		return
	}
	entry := Entry{
		ID:        NewULID(),
		Stream:    Stream(address),
		Type:      typ,
		Timestamp: time.Now(),
		Actor:     actor,
		Message:   message,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			j.logger.WarnContext(ctx, "failed to marshal operation payload", "type", typ, "error", err)
		} else {
			entry.Payload = data
		}
	}
	j.logger.InfoContext(ctx, message, "address", address, "type", string(typ), "actor", actor.ID)
	if j.sink == nil {
		return
	}
	if err := j.sink.Append(ctx, entry); err != nil {
		j.logger.WarnContext(ctx, "failed to append operation log entry",
			"address", address,
			"type", string(typ),
			"error", err,
		)
	}
}

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]Entry
}

// NewMemoryStore creates a new in-memory operation log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]Entry),
	}
}

// Append persists an entry in memory.
func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[entry.Stream] = append(s.streams[entry.Stream], entry)
	return nil
}

// Replay returns entries from a stream starting after the given ID.
func (s *MemoryStore) Replay(_ context.Context, stream string, afterID ulid.ULID, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.streams[stream]
	if len(entries) == 0 {
		return nil, nil
	}

	startIdx := 0
	if !afterID.IsZero() {
		for i, e := range entries {
			if e.ID == afterID {
				startIdx = i + 1
				break
			}
		}
	}

	endIdx := min(startIdx+limit, len(entries))

	result := make([]Entry, endIdx-startIdx)
	copy(result, entries[startIdx:endIdx])
	return result, nil
}

// LastEntryID returns the most recent entry ID for a stream.
func (s *MemoryStore) LastEntryID(_ context.Context, stream string) (ulid.ULID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.streams[stream]
	if len(entries) == 0 {
		return ulid.ULID{}, ErrStreamEmpty
	}
	return entries[len(entries)-1].ID, nil
}
