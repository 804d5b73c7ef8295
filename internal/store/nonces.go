// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nrdxhq/blockstranding/internal/auth"
)

// PostgresNonces implements auth.NonceStore on the request_nonces table, so
// every process verifying envelopes against one ledger sees the same nonces.
type PostgresNonces struct {
	pool Pool
}

// NewPostgresNonces creates a nonce store over pool.
func NewPostgresNonces(pool Pool) *PostgresNonces {
	return &PostgresNonces{pool: pool}
}

// Claim inserts nonce. The primary key turns a second claim into
// auth.ErrReplayed.
func (s *PostgresNonces) Claim(ctx context.Context, nonce ulid.ULID, issuedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO request_nonces (nonce, issued_at) VALUES ($1, $2)`,
		nonce.String(), issuedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.Replayed(nonce)
		}
		return oops.Code("NONCE_CLAIM_FAILED").With("nonce", nonce.String()).Wrap(err)
	}
	return nil
}

// Forget deletes nonces issued before cutoff.
func (s *PostgresNonces) Forget(ctx context.Context, cutoff time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM request_nonces WHERE issued_at < $1`, cutoff); err != nil {
		return oops.Code("NONCE_FORGET_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.NonceStore = (*PostgresNonces)(nil)
