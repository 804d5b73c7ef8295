// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

//go:build integration

package postgres_test

import (
	"context"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/internal/player/postgres"
	"github.com/nrdxhq/blockstranding/internal/store"
	"github.com/nrdxhq/blockstranding/pkg/errutil"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	testPool, err = store.Open(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to open pool: " + err.Error())
	}

	code := m.Run()

	testPool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func initialize(t *testing.T, s *postgres.Store) *player.Entity {
	t.Helper()
	owner := player.Identity("owner-" + ulid.Make().String())
	ent, err := player.NewEntities(s, nil).Initialize(context.Background(), owner)
	require.NoError(t, err)
	return ent
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewStore(testPool)
	reg := player.NewRegistry(s)
	ent := initialize(t, s)

	_, err := player.NewEntities(s, nil).Initialize(ctx, ent.Owner)
	errutil.AssertKind(t, err, player.ErrAlreadyExists, player.CodeAlreadyExists)

	_, err = reg.Transition(ctx, ent.Address, player.BaseOwned, player.Delegating, func(e *player.Entity) error {
		e.Descriptor = &player.Descriptor{
			Address:   e.Address,
			Payer:     e.Owner,
			Config:    player.DelegateConfig{Expiry: time.Hour}.WithDefaults(),
			CreatedAt: time.Now().UTC(),
		}
		return nil
	})
	require.NoError(t, err)

	pending, err := s.ListByAuthority(ctx, player.Delegating)
	require.NoError(t, err)
	found := false
	for _, p := range pending {
		if p.Address == ent.Address {
			found = true
			assert.True(t, p.Descriptor.Pending())
			assert.Equal(t, time.Hour, p.Descriptor.Config.Expiry)
		}
	}
	assert.True(t, found)

	id := ulid.Make()
	_, err = reg.Transition(ctx, ent.Address, player.Delegating, player.DelegatedOwned, func(e *player.Entity) error {
		e.Descriptor.ID = id
		e.Descriptor.ContextID = "rollup-it"
		return nil
	})
	require.NoError(t, err)

	_, err = reg.Transition(ctx, ent.Address, player.DelegatedOwned, player.Reconciling, nil)
	require.NoError(t, err)

	got, err := reg.Transition(ctx, ent.Address, player.Reconciling, player.BaseOwned, func(e *player.Entity) error {
		e.Commit(player.Snapshot{DescriptorID: id, MoveCounter: math.MaxUint64, AttackCounter: 2, Slot: 5}, time.Now())
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, got.Descriptor)

	reloaded, err := s.Get(ctx, ent.Address)
	require.NoError(t, err)
	assert.Equal(t, player.BaseOwned, reloaded.Authority)
	assert.Equal(t, uint64(math.MaxUint64), reloaded.MoveCounter)
	assert.Equal(t, uint64(2), reloaded.AttackCounter)
	assert.Nil(t, reloaded.Descriptor)
}

func TestStore_UpdateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := postgres.NewStore(testPool)
	proc := player.NewProcessor(player.ProcessorConfig{Store: s})
	ent := initialize(t, s)

	const writers = 20
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := proc.ApplyAction(ctx, ent.Owner, ent.Address, player.ActionAttack, player.Base())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, ent.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers), got.AttackCounter)
}
