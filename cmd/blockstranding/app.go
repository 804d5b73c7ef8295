// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/delegation"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/internal/player/memory"
	"github.com/nrdxhq/blockstranding/internal/player/postgres"
	"github.com/nrdxhq/blockstranding/internal/rollup"
	"github.com/nrdxhq/blockstranding/internal/store"
	"github.com/nrdxhq/blockstranding/internal/xdg"
)

// history reads a player's operation log.
type history interface {
	Replay(ctx context.Context, stream string, afterID ulid.ULID, limit int) ([]oplog.Entry, error)
}

// app wires the ledger components for one CLI invocation.
type app struct {
	logger     *slog.Logger
	store      player.Store
	registry   *player.Registry
	node       *rollup.Node
	history    history
	entities   *player.Entities
	processor  *player.Processor
	controller *delegation.Controller
	reconciler *delegation.Reconciler
	verifier   *auth.Verifier

	pool *pgxpool.Pool
}

// newApp connects to PostgreSQL and opens the local rollup node.
func newApp(ctx context.Context, cfg *config, logger *slog.Logger) (*app, error) {
	if err := cfg.requireDatabase(); err != nil {
		return nil, err
	}
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := xdg.EnsureDir(filepath.Dir(cfg.RollupPath)); err != nil {
		pool.Close()
		return nil, err
	}
	node, err := rollup.Open(ctx, cfg.RollupID, cfg.RollupPath, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	opLog := store.NewPostgresOpLog(pool)
	a, err := wire(cfg, logger, postgres.NewStore(pool), node, opLog, opLog, store.NewPostgresNonces(pool))
	if err != nil {
		_ = node.Close()
		pool.Close()
		return nil, err
	}
	a.pool = pool
	return a, nil
}

// newMemoryApp builds an app that keeps everything in process memory.
func newMemoryApp(ctx context.Context, cfg *config, logger *slog.Logger) (*app, error) {
	node, err := rollup.Open(ctx, cfg.RollupID, ":memory:", logger)
	if err != nil {
		return nil, err
	}
	opLog := oplog.NewMemoryStore()
	a, err := wire(cfg, logger, memory.NewStore(), node, opLog, opLog, auth.NewMemoryNonces())
	if err != nil {
		_ = node.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config, logger *slog.Logger, s player.Store, node *rollup.Node, sink oplog.Sink, h history, nonces auth.NonceStore) (*app, error) {
	policy, err := auth.NewPayerPolicy(cfg.Payers)
	if err != nil {
		return nil, err
	}
	journal := oplog.NewJournal(sink, logger)
	dcfg := delegation.Config{
		Store:      s,
		Transport:  node,
		Authorizer: policy,
		Journal:    journal,
		Retry:      cfg.retry(),
		Logger:     logger,
	}
	return &app{
		logger:   logger,
		store:    s,
		registry: player.NewRegistry(s),
		node:     node,
		history:  h,
		entities: player.NewEntities(s, journal),
		processor: player.NewProcessor(player.ProcessorConfig{
			Store:      s,
			Authorizer: policy,
			Executors:  map[string]player.Executor{node.ID(): node},
			Journal:    journal,
		}),
		controller: delegation.NewController(dcfg),
		reconciler: delegation.NewReconciler(dcfg),
		verifier:   auth.NewVerifier(auth.DefaultMaxAge, nonces),
	}, nil
}

// sweeper creates a sweeper over the app's controllers.
func (a *app) sweeper(cfg *config) *delegation.Sweeper {
	return delegation.NewSweeper(delegation.SweeperConfig{
		Store:      a.store,
		Controller: a.controller,
		Reconciler: a.reconciler,
		Interval:   cfg.SweepInterval,
		Logger:     a.logger,
	})
}

// ready reports whether the base ledger is reachable.
func (a *app) ready(ctx context.Context) bool {
	if a.pool == nil {
		return true
	}
	return a.pool.Ping(ctx) == nil
}

// authorityCounts returns how many players are in each authority state.
func (a *app) authorityCounts(ctx context.Context) (map[string]int, error) {
	states := []player.Authority{player.BaseOwned, player.Delegating, player.DelegatedOwned, player.Reconciling}
	ents, err := a.store.ListByAuthority(ctx, states...)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(states))
	for _, st := range states {
		counts[st.String()] = 0
	}
	for _, e := range ents {
		counts[e.Authority.String()]++
	}
	return counts, nil
}

// Close releases the rollup node and database pool.
func (a *app) Close() {
	if err := a.node.Close(); err != nil {
		a.logger.Warn("failed to close rollup node", "error", err)
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
