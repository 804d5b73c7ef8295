// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// seedPlayer initializes a record for a fresh key and returns its address.
func seedPlayer(t *testing.T, a *app) player.Address {
	t.Helper()
	k, err := auth.GenerateKey()
	require.NoError(t, err)
	ent, err := a.entities.Initialize(context.Background(), k.Identity())
	require.NoError(t, err)
	return ent.Address
}

func TestResumeCommand(t *testing.T) {
	isolate(t)
	a := useMemoryApp(t, testConfig())
	ctx := context.Background()

	stuck := seedPlayer(t, a)
	_, err := a.registry.Transition(ctx, stuck, player.BaseOwned, player.Delegating, nil)
	require.NoError(t, err)
	idle := seedPlayer(t, a)

	out, err := run(t, "resume")
	require.NoError(t, err)
	assert.Equal(t, "Resumed 1 of 1 checkpointed records\n", out)

	state, desc, err := a.registry.Lookup(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, player.DelegatedOwned, state)
	require.NotNil(t, desc)
	assert.Equal(t, a.node.ID(), desc.ContextID)

	state, err = a.registry.CurrentAuthority(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, player.BaseOwned, state)

	out, err = run(t, "resume")
	require.NoError(t, err)
	assert.Equal(t, "Resumed 0 of 0 checkpointed records\n", out)
}

func TestResumeCommand_ReportsFailures(t *testing.T) {
	isolate(t)
	a := useMemoryApp(t, testConfig())
	ctx := context.Background()

	addr := seedPlayer(t, a)
	_, err := a.registry.Transition(ctx, addr, player.BaseOwned, player.Delegating, nil)
	require.NoError(t, err)
	_, err = a.registry.Transition(ctx, addr, player.Delegating, player.DelegatedOwned, nil)
	require.NoError(t, err)
	// Reconciling without a descriptor cannot be finished.
	_, err = a.registry.Transition(ctx, addr, player.DelegatedOwned, player.Reconciling, nil)
	require.NoError(t, err)

	out, err := run(t, "resume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 records could not be resumed")
	assert.Equal(t, "Resumed 0 of 1 checkpointed records\n", out)
}
