// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package postgres implements player.Store on the players and delegations
// tables.
package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/internal/store"
)

// Counters are NUMERIC(20,0) so the full u64 range fits; they cross the wire
// as text.
const selectEntity = `SELECT p.address, p.owner, p.move_counter::text, p.attack_counter::text,
	p.space, p.authority, p.created_at, p.updated_at,
	d.descriptor_id, d.context_id, d.payer, d.commit_frequency_ms, d.expiry_ms,
	d.committed_slot::text, d.last_commit_at, d.created_at
	FROM players p LEFT JOIN delegations d ON d.address = p.address`

// Store implements player.Store using PostgreSQL.
type Store struct {
	pool store.Pool
	now  func() time.Time
}

// NewStore creates a Postgres-backed entity store.
func NewStore(pool store.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Create inserts a new player row. A duplicate address or owner maps to
// player.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, e *player.Entity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (address, owner, move_counter, attack_counter, space, authority, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8)`,
		e.Address.String(), e.Owner.String(),
		formatCounter(e.MoveCounter), formatCounter(e.AttackCounter),
		e.Space, e.Authority.String(), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(player.CodeAlreadyExists).
				With("address", e.Address.String()).
				With("owner", e.Owner.String()).
				Wrap(player.ErrAlreadyExists)
		}
		return oops.Code("PLAYER_CREATE_FAILED").With("address", e.Address.String()).Wrap(err)
	}
	return nil
}

// Get returns the entity at addr.
func (s *Store) Get(ctx context.Context, addr player.Address) (*player.Entity, error) {
	row := s.pool.QueryRow(ctx, selectEntity+` WHERE p.address = $1`, addr.String())
	return scanOne(row, addr)
}

// Update locks the player row, applies fn, and writes the result back in the
// same transaction.
func (s *Store) Update(ctx context.Context, addr player.Address, fn func(e *player.Entity) error) (*player.Entity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code("TX_BEGIN_FAILED").With("address", addr.String()).Wrap(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx) //nolint:errcheck // original error takes precedence
		}
	}()

	current, err := scanOne(tx.QueryRow(ctx, selectEntity+` WHERE p.address = $1 FOR UPDATE OF p`, addr.String()), addr)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Address = current.Address
	next.Owner = current.Owner
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()

	if _, err := tx.Exec(ctx,
		`UPDATE players SET move_counter = $2::numeric, attack_counter = $3::numeric, authority = $4, updated_at = $5
		 WHERE address = $1`,
		addr.String(), formatCounter(next.MoveCounter), formatCounter(next.AttackCounter),
		next.Authority.String(), next.UpdatedAt); err != nil {
		return nil, oops.Code("PLAYER_UPDATE_FAILED").With("address", addr.String()).Wrap(err)
	}

	if err := writeDescriptor(ctx, tx, addr, next.Descriptor); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("TX_COMMIT_FAILED").With("address", addr.String()).Wrap(err)
	}
	committed = true
	return next, nil
}

// ListByAuthority returns entities in any of states, ordered by address.
func (s *Store) ListByAuthority(ctx context.Context, states ...player.Authority) ([]*player.Entity, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = st.String()
	}
	rows, err := s.pool.Query(ctx, selectEntity+` WHERE p.authority = ANY($1) ORDER BY p.address`, names)
	if err != nil {
		return nil, oops.Code("PLAYER_LIST_FAILED").With("states", names).Wrap(err)
	}
	defer rows.Close()

	var out []*player.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PLAYER_LIST_FAILED").With("states", names).Wrap(err)
	}
	return out, nil
}

func writeDescriptor(ctx context.Context, tx pgx.Tx, addr player.Address, d *player.Descriptor) error {
	if d == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM delegations WHERE address = $1`, addr.String()); err != nil {
			return oops.Code("DELEGATION_WRITE_FAILED").With("address", addr.String()).Wrap(err)
		}
		return nil
	}

	var descriptorID *string
	if !d.Pending() {
		id := d.ID.String()
		descriptorID = &id
	}
	var lastCommit *time.Time
	if !d.LastCommitAt.IsZero() {
		lastCommit = &d.LastCommitAt
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO delegations (address, descriptor_id, context_id, payer, commit_frequency_ms, expiry_ms,
		                          committed_slot, last_commit_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
		 ON CONFLICT (address) DO UPDATE SET
		   descriptor_id = EXCLUDED.descriptor_id,
		   context_id = EXCLUDED.context_id,
		   payer = EXCLUDED.payer,
		   commit_frequency_ms = EXCLUDED.commit_frequency_ms,
		   expiry_ms = EXCLUDED.expiry_ms,
		   committed_slot = EXCLUDED.committed_slot,
		   last_commit_at = EXCLUDED.last_commit_at,
		   created_at = EXCLUDED.created_at`,
		addr.String(), descriptorID, d.ContextID, d.Payer.String(),
		d.Config.CommitFrequency.Milliseconds(), d.Config.Expiry.Milliseconds(),
		formatCounter(d.CommittedSlot), lastCommit, d.CreatedAt)
	if err != nil {
		return oops.Code("DELEGATION_WRITE_FAILED").With("address", addr.String()).Wrap(err)
	}
	return nil
}

func scanOne(row pgx.Row, addr player.Address) (*player.Entity, error) {
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(player.CodeNotFound).With("address", addr.String()).Wrap(player.ErrNotFound)
	}
	return e, err
}

// scanEntity reads one selectEntity row. pgx.ErrNoRows is returned unwrapped.
func scanEntity(row pgx.Row) (*player.Entity, error) {
	var (
		address, owner, move, attack, authority string
		e                                       player.Entity
		descriptorID, contextID, payer          *string
		commitMs, expiryMs                      *int64
		committedSlot                           *string
		lastCommitAt, delegatedAt               *time.Time
	)
	err := row.Scan(&address, &owner, &move, &attack,
		&e.Space, &authority, &e.CreatedAt, &e.UpdatedAt,
		&descriptorID, &contextID, &payer, &commitMs, &expiryMs,
		&committedSlot, &lastCommitAt, &delegatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, oops.Code("PLAYER_SCAN_FAILED").Wrap(err)
	}

	if e.Address, err = player.ParseAddress(address); err != nil {
		return nil, oops.Code("PLAYER_CORRUPT_ROW").With("address", address).Wrap(err)
	}
	e.Owner = player.Identity(owner)
	if e.MoveCounter, err = parseCounter(move); err != nil {
		return nil, oops.Code("PLAYER_CORRUPT_ROW").With("address", address).Wrap(err)
	}
	if e.AttackCounter, err = parseCounter(attack); err != nil {
		return nil, oops.Code("PLAYER_CORRUPT_ROW").With("address", address).Wrap(err)
	}
	if e.Authority, err = player.ParseAuthority(authority); err != nil {
		return nil, oops.Code("PLAYER_CORRUPT_ROW").With("address", address).Wrap(err)
	}

	// LEFT JOIN: payer is NOT NULL in delegations, so it marks a present row.
	if payer == nil {
		return &e, nil
	}
	d := &player.Descriptor{
		Address: e.Address,
		Payer:   player.Identity(*payer),
	}
	if descriptorID != nil {
		if d.ID, err = ulid.Parse(*descriptorID); err != nil {
			return nil, oops.Code("PLAYER_CORRUPT_ROW").With("address", address).Wrap(err)
		}
	}
	if contextID != nil {
		d.ContextID = *contextID
	}
	if commitMs != nil {
		d.Config.CommitFrequency = time.Duration(*commitMs) * time.Millisecond
	}
	if expiryMs != nil {
		d.Config.Expiry = time.Duration(*expiryMs) * time.Millisecond
	}
	if committedSlot != nil {
		if d.CommittedSlot, err = parseCounter(*committedSlot); err != nil {
			return nil, oops.Code("PLAYER_CORRUPT_ROW").With("address", address).Wrap(err)
		}
	}
	if lastCommitAt != nil {
		d.LastCommitAt = *lastCommitAt
	}
	if delegatedAt != nil {
		d.CreatedAt = *delegatedAt
	}
	e.Descriptor = d
	return &e, nil
}

func formatCounter(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseCounter(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

var _ player.Store = (*Store)(nil)
