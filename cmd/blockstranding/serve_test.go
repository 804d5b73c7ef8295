// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrdxhq/blockstranding/internal/observability"
	"github.com/nrdxhq/blockstranding/internal/player"
)

type fakeObsServer struct {
	mu      sync.Mutex
	addr    string
	ready   observability.ReadinessChecker
	status  observability.StatusReporter
	errCh   chan error
	started bool
	stopped bool
}

func (s *fakeObsServer) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.errCh, nil
}

func (s *fakeObsServer) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeObsServer) Addr() string { return s.addr }

func useFakeObsServer(t *testing.T) *fakeObsServer {
	t.Helper()
	fake := &fakeObsServer{errCh: make(chan error, 1)}
	prev := newObservabilityServer
	newObservabilityServer = func(addr string, ready observability.ReadinessChecker, status observability.StatusReporter) observabilityServer {
		fake.addr = addr
		fake.ready = ready
		fake.status = status
		return fake
	}
	t.Cleanup(func() { newObservabilityServer = prev })
	return fake
}

func TestRunServe_SweepsUntilCancelled(t *testing.T) {
	fake := useFakeObsServer(t)
	a, err := newMemoryApp(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	addr := seedPlayer(t, a)
	_, err = a.registry.Transition(context.Background(), addr, player.BaseOwned, player.Delegating, nil)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cmd, cfg, a) }()

	// The first sweep runs immediately and finishes the checkpointed delegation.
	require.Eventually(t, func() bool {
		state, err := a.registry.CurrentAuthority(context.Background(), addr)
		return err == nil && state == player.DelegatedOwned
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}

	assert.Contains(t, out.String(), "Sweeper started")
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.started)
	assert.True(t, fake.stopped)
	assert.Equal(t, "127.0.0.1:0", fake.addr)
	assert.True(t, fake.ready(), "memory ledger is always ready")

	counts, err := fake.status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"base_owned": 0, "delegating": 0, "delegated_owned": 1, "reconciling": 0}, counts)
}

func TestRunServe_ServerErrorShutsDown(t *testing.T) {
	fake := useFakeObsServer(t)
	a, err := newMemoryApp(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))

	fake.errCh <- errors.New("address in use")
	done := make(chan error, 1)
	go func() { done <- runServe(context.Background(), cmd, cfg, a) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not shut down on server error")
	}
}

func TestRunServe_MetricsDisabled(t *testing.T) {
	a, err := newMemoryApp(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	prev := newObservabilityServer
	newObservabilityServer = func(string, observability.ReadinessChecker, observability.StatusReporter) observabilityServer {
		t.Fatal("observability server should not be created")
		return nil
	}
	t.Cleanup(func() { newObservabilityServer = prev })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))
	require.NoError(t, runServe(ctx, cmd, testConfig(), a))
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("error cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("boom")
		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel does not cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)
		monitorServerErrors(ctx, cancel, errCh, "test")
		assert.NoError(t, ctx.Err())
	})

	t.Run("returns when context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		monitorServerErrors(ctx, cancel, make(chan error), "test")
	})
}
