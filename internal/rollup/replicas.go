// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package rollup

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/nrdxhq/blockstranding/internal/codec"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// errNoReplica is returned by replicaStore lookups that find nothing.
var errNoReplica = errors.New("no replica")

// replica is one row of the replicas table.
type replica struct {
	desc    player.Descriptor
	account []byte
	slot    uint64
	sealed  bool
}

// replicaStore persists replicas in SQLite. Several processes may open the
// same file, so every mutation is a conditional statement that only applies
// to the row state the caller read. The single connection keeps ":memory:"
// databases alive.
type replicaStore struct {
	db *sql.DB
}

func openReplicaStore(ctx context.Context, path string) (*replicaStore, error) {
	if path == "" {
		return nil, oops.Code("ROLLUP_CONFIG_INVALID").Errorf("empty replica database path")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, oops.Code("ROLLUP_OPEN_FAILED").With("path", path).Wrap(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("ROLLUP_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS replicas (
			address       TEXT PRIMARY KEY,
			descriptor_id TEXT NOT NULL UNIQUE,
			descriptor    BLOB NOT NULL,
			account       BLOB NOT NULL,
			slot          INTEGER NOT NULL DEFAULT 0,
			sealed        INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS retired (
			descriptor_id TEXT PRIMARY KEY,
			address       TEXT NOT NULL,
			retired_at    TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, oops.Code("ROLLUP_OPEN_FAILED").With("path", path).Wrap(err)
		}
	}
	return &replicaStore{db: db}, nil
}

func (s *replicaStore) get(ctx context.Context, addr player.Address) (*replica, error) {
	var (
		descBlob, account []byte
		slot              int64
		sealed            bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT descriptor, account, slot, sealed FROM replicas WHERE address = ?`,
		addr.String()).Scan(&descBlob, &account, &slot, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoReplica
	}
	if err != nil {
		return nil, oops.Code("ROLLUP_READ_FAILED").With("address", addr.String()).Wrap(err)
	}
	r := &replica{account: account, slot: uint64(slot), sealed: sealed}
	if err := codec.Unmarshal(descBlob, &r.desc); err != nil {
		return nil, oops.Code("ROLLUP_CORRUPT_REPLICA").With("address", addr.String()).Wrap(err)
	}
	return r, nil
}

// insert creates the replica for r.desc.Address. It reports false when
// another replica already occupies the address.
func (s *replicaStore) insert(ctx context.Context, r *replica) (bool, error) {
	descBlob, err := codec.Marshal(r.desc)
	if err != nil {
		return false, oops.Code("ROLLUP_ENCODE_FAILED").Wrap(err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO replicas (address, descriptor_id, descriptor, account, slot, sealed)
		 VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT (address) DO NOTHING`,
		r.desc.Address.String(), r.desc.ID.String(), descBlob, r.account, int64(r.slot))
	if err != nil {
		return false, oops.Code("ROLLUP_WRITE_FAILED").With("address", r.desc.Address.String()).Wrap(err)
	}
	return affected(res, r.desc.ID)
}

// advance stores account as the state after slot, provided the replica is
// still unsealed and no other writer has moved past slot.
func (s *replicaStore) advance(ctx context.Context, id ulid.ULID, account []byte, slot uint64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE replicas SET account = ?, slot = slot + 1
		 WHERE descriptor_id = ? AND sealed = 0 AND slot = ?`,
		account, id.String(), int64(slot))
	if err != nil {
		return false, oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	return affected(res, id)
}

// seal marks the replica for id sealed. Sealing twice is a no-op.
func (s *replicaStore) seal(ctx context.Context, id ulid.ULID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE replicas SET sealed = 1 WHERE descriptor_id = ? AND sealed = 0`, id.String())
	if err != nil {
		return false, oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	return affected(res, id)
}

func affected(res sql.Result, id ulid.ULID) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	return n == 1, nil
}

// retire removes the replica for id and remembers id so it is never accepted again.
func (s *replicaStore) retire(ctx context.Context, addr player.Address, id ulid.ULID, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("ROLLUP_WRITE_FAILED").Wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM replicas WHERE descriptor_id = ?`, id.String()); err != nil {
		return oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO retired (descriptor_id, address, retired_at) VALUES (?, ?, ?)
		 ON CONFLICT (descriptor_id) DO NOTHING`,
		id.String(), addr.String(), now.UTC().Format(time.RFC3339Nano)); err != nil {
		return oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return oops.Code("ROLLUP_WRITE_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	return nil
}

func (s *replicaStore) retired(ctx context.Context, id ulid.ULID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retired WHERE descriptor_id = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, oops.Code("ROLLUP_READ_FAILED").With("descriptor", id.String()).Wrap(err)
	}
	return n > 0, nil
}

func (s *replicaStore) count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replicas`).Scan(&n); err != nil {
		return 0, oops.Code("ROLLUP_READ_FAILED").Wrap(err)
	}
	return n, nil
}

func (s *replicaStore) close() error {
	return s.db.Close()
}
