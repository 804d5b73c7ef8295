// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package delegation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/internal/player/memory"
	"github.com/nrdxhq/blockstranding/internal/rollup"
)

var errUnavailable = errors.New("rollup unavailable")

// hold parks one transport call until released.
type hold struct {
	entered chan struct{}
	release chan struct{}
}

func newHold() *hold {
	return &hold{entered: make(chan struct{}), release: make(chan struct{})}
}

// wait signals entry and blocks until released. A nil hold does nothing.
func (h *hold) wait() {
	if h == nil {
		return
	}
	close(h.entered)
	<-h.release
}

// flakyTransport fails a configured number of calls before passing through.
type flakyTransport struct {
	Transport

	mu               sync.Mutex
	delegateHold     *hold
	fetchHold        *hold
	delegateFailures int
	fetchFailures    int
	releaseErr       error
	delegateCalls    int
	fetchCalls       int
	releaseCalls     int
}

func (f *flakyTransport) Delegate(ctx context.Context, rec player.Record, payer player.Identity, cfg player.DelegateConfig) (player.Descriptor, error) {
	f.mu.Lock()
	f.delegateCalls++
	h := f.delegateHold
	f.delegateHold = nil
	f.mu.Unlock()
	h.wait()

	f.mu.Lock()
	if f.delegateFailures > 0 {
		f.delegateFailures--
		f.mu.Unlock()
		return player.Descriptor{}, errUnavailable
	}
	f.mu.Unlock()
	return f.Transport.Delegate(ctx, rec, payer, cfg)
}

func (f *flakyTransport) FetchLatest(ctx context.Context, desc player.Descriptor) (player.Snapshot, error) {
	f.mu.Lock()
	f.fetchCalls++
	h := f.fetchHold
	f.fetchHold = nil
	f.mu.Unlock()
	h.wait()

	f.mu.Lock()
	if f.fetchFailures > 0 {
		f.fetchFailures--
		f.mu.Unlock()
		return player.Snapshot{}, errUnavailable
	}
	f.mu.Unlock()
	return f.Transport.FetchLatest(ctx, desc)
}

func (f *flakyTransport) Release(ctx context.Context, desc player.Descriptor) error {
	f.mu.Lock()
	f.releaseCalls++
	err := f.releaseErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Transport.Release(ctx, desc)
}

func (f *flakyTransport) failDelegate(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegateFailures = n
}

// holdNextDelegate parks the next Delegate call until the hold is released.
func (f *flakyTransport) holdNextDelegate() *hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delegateHold = newHold()
	return f.delegateHold
}

// holdNextFetch parks the next FetchLatest call until the hold is released.
func (f *flakyTransport) holdNextFetch() *hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchHold = newHold()
	return f.fetchHold
}

func (f *flakyTransport) failFetch(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchFailures = n
}

type fixture struct {
	store      *memory.Store
	node       *rollup.Node
	transport  *flakyTransport
	log        *oplog.MemoryStore
	entities   *player.Entities
	processor  *player.Processor
	controller *Controller
	reconciler *Reconciler
}

var testRetry = RetryConfig{Attempts: 2, BaseDelay: time.Millisecond}

func newFixture(t *testing.T, owners ...player.Identity) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	node, err := rollup.Open(ctx, "rollup-1", ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	f := &fixture{
		store:     memory.NewStore(),
		node:      node,
		transport: &flakyTransport{Transport: node},
		log:       oplog.NewMemoryStore(),
	}
	journal := oplog.NewJournal(f.log, logger)
	cfg := Config{
		Store:     f.store,
		Transport: f.transport,
		Journal:   journal,
		Retry:     testRetry,
		Logger:    logger,
	}
	f.entities = player.NewEntities(f.store, journal)
	f.processor = player.NewProcessor(player.ProcessorConfig{
		Store:     f.store,
		Executors: map[string]player.Executor{node.ID(): node},
		Journal:   journal,
	})
	f.controller = NewController(cfg)
	f.reconciler = NewReconciler(cfg)

	for _, owner := range owners {
		_, err := f.entities.Initialize(ctx, owner)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) act(t *testing.T, owner player.Identity, action player.Action, exec player.ExecutionContext) {
	t.Helper()
	_, err := f.processor.ApplyAction(context.Background(), owner, player.Derive(owner), action, exec)
	require.NoError(t, err)
}

func (f *fixture) authority(t *testing.T, owner player.Identity) player.Authority {
	t.Helper()
	ent, err := f.store.Get(context.Background(), player.Derive(owner))
	require.NoError(t, err)
	return ent.Authority
}

func (f *fixture) messages(t *testing.T, owner player.Identity) []string {
	t.Helper()
	entries, err := f.log.Replay(context.Background(), oplog.Stream(player.Derive(owner).String()), ulid.ULID{}, 100)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
