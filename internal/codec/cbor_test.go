// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package codec_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrdxhq/blockstranding/internal/codec"
	"github.com/nrdxhq/blockstranding/internal/player"
)

func TestMarshal_Deterministic(t *testing.T) {
	a := map[string]any{"z": 1, "a": 2, "m": 3}
	b := map[string]any{"m": 3, "z": 1, "a": 2}

	ab, err := codec.Marshal(a)
	require.NoError(t, err)
	bb, err := codec.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
}

func TestDescriptor_RoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 891011, time.UTC)
	desc := player.Descriptor{
		ID:        ulid.Make(),
		Address:   player.Derive("A"),
		ContextID: "rollup-1",
		Payer:     "P",
		Config:    player.DelegateConfig{CommitFrequency: 5 * time.Second, Expiry: time.Hour},
		CreatedAt: created,
	}

	data, err := codec.Marshal(desc)
	require.NoError(t, err)

	var got player.Descriptor
	require.NoError(t, codec.Unmarshal(data, &got))
	assert.Equal(t, desc.ID, got.ID)
	assert.Equal(t, desc.Address, got.Address)
	assert.Equal(t, desc.ContextID, got.ContextID)
	assert.Equal(t, desc.Payer, got.Payer)
	assert.Equal(t, desc.Config, got.Config)
	assert.True(t, desc.CreatedAt.Equal(got.CreatedAt), "sub-second precision must survive")
}

func TestDiagnose_ShowsTextAddress(t *testing.T) {
	addr := player.Derive("A")
	data, err := codec.Marshal(player.Snapshot{Address: addr, Slot: 3})
	require.NoError(t, err)

	diag, err := codec.Diagnose(data)
	require.NoError(t, err)
	assert.Contains(t, diag, addr.String())
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	data, err := codec.Marshal(map[int]any{5: uint64(9), 99: "future"})
	require.NoError(t, err)

	var snap player.Snapshot
	require.NoError(t, codec.Unmarshal(data, &snap))
	assert.Equal(t, uint64(9), snap.Slot)
}
