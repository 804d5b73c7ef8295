// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/oplog"
)

// PostgresOpLog implements oplog.Store on the operation_log table.
type PostgresOpLog struct {
	pool Pool
}

// NewPostgresOpLog creates an operation log over pool.
func NewPostgresOpLog(pool Pool) *PostgresOpLog {
	return &PostgresOpLog{pool: pool}
}

// Append persists an entry.
func (s *PostgresOpLog) Append(ctx context.Context, e oplog.Entry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operation_log (id, stream, type, actor_kind, actor_id, message, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID.String(), e.Stream, string(e.Type), int16(e.Actor.Kind), e.Actor.ID, e.Message, payload, e.Timestamp)
	if err != nil {
		return oops.Code("OPLOG_APPEND_FAILED").
			With("id", e.ID.String()).
			With("stream", e.Stream).
			Wrap(err)
	}
	return nil
}

// Replay returns up to limit entries of stream after afterID, oldest first.
func (s *PostgresOpLog) Replay(ctx context.Context, stream string, afterID ulid.ULID, limit int) ([]oplog.Entry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if afterID.IsZero() {
		rows, err = s.pool.Query(ctx,
			`SELECT id, stream, type, actor_kind, actor_id, message, payload, created_at
			 FROM operation_log WHERE stream = $1 ORDER BY id LIMIT $2`,
			stream, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, stream, type, actor_kind, actor_id, message, payload, created_at
			 FROM operation_log WHERE stream = $1 AND id > $2 ORDER BY id LIMIT $3`,
			stream, afterID.String(), limit)
	}
	if err != nil {
		return nil, oops.Code("OPLOG_REPLAY_FAILED").With("stream", stream).Wrap(err)
	}
	defer rows.Close()

	var entries []oplog.Entry
	for rows.Next() {
		var (
			e         oplog.Entry
			id, typ   string
			actorKind int16
		)
		if err := rows.Scan(&id, &e.Stream, &typ, &actorKind, &e.Actor.ID, &e.Message, &e.Payload, &e.Timestamp); err != nil {
			return nil, oops.Code("OPLOG_REPLAY_FAILED").With("stream", stream).Wrap(err)
		}
		if e.ID, err = ulid.Parse(id); err != nil {
			return nil, oops.Code("OPLOG_CORRUPT_ID").With("stream", stream).With("id", id).Wrap(err)
		}
		e.Type = oplog.EntryType(typ)
		e.Actor.Kind = oplog.ActorKind(actorKind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("OPLOG_REPLAY_FAILED").With("stream", stream).Wrap(err)
	}
	return entries, nil
}

// LastEntryID returns the newest entry id of stream, or oplog.ErrStreamEmpty.
func (s *PostgresOpLog) LastEntryID(ctx context.Context, stream string) (ulid.ULID, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM operation_log WHERE stream = $1 ORDER BY id DESC LIMIT 1`,
		stream).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oplog.ErrStreamEmpty
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("OPLOG_QUERY_FAILED").With("stream", stream).Wrap(err)
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return ulid.ULID{}, oops.Code("OPLOG_CORRUPT_ID").With("stream", stream).With("id", id).Wrap(err)
	}
	return parsed, nil
}

var _ oplog.Store = (*PostgresOpLog)(nil)
