// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nrdxhq/blockstranding/internal/player"
)

var allStates = []player.Authority{
	player.BaseOwned,
	player.Delegating,
	player.DelegatedOwned,
	player.Reconciling,
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]player.Authority]bool{
		{player.BaseOwned, player.Delegating}:      true,
		{player.Delegating, player.DelegatedOwned}: true,
		{player.DelegatedOwned, player.Reconciling}: true,
		{player.Reconciling, player.BaseOwned}:     true,
	}
	for _, from := range allStates {
		for _, to := range allStates {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				assert.Equal(t, allowed[[2]player.Authority{from, to}], player.CanTransition(from, to))
			})
		}
	}
}

func TestAuthority_ParseRoundTrip(t *testing.T) {
	for _, s := range allStates {
		got, err := player.ParseAuthority(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := player.ParseAuthority("frozen")
	assert.Error(t, err)
	assert.Equal(t, "authority(9)", player.Authority(9).String())
}

func TestAuthority_IsCheckpoint(t *testing.T) {
	assert.False(t, player.BaseOwned.IsCheckpoint())
	assert.True(t, player.Delegating.IsCheckpoint())
	assert.False(t, player.DelegatedOwned.IsCheckpoint())
	assert.True(t, player.Reconciling.IsCheckpoint())
}

func TestAuthority_Permits(t *testing.T) {
	desc := &player.Descriptor{ID: ulid.Make(), ContextID: "rollup-1"}

	tests := []struct {
		name  string
		state player.Authority
		exec  player.ExecutionContext
		desc  *player.Descriptor
		want  bool
	}{
		{"base owned accepts base", player.BaseOwned, player.Base(), nil, true},
		{"base owned refuses delegated", player.BaseOwned, player.Delegated("rollup-1"), nil, false},
		{"delegated owned accepts its context", player.DelegatedOwned, player.Delegated("rollup-1"), desc, true},
		{"delegated owned refuses other context", player.DelegatedOwned, player.Delegated("rollup-2"), desc, false},
		{"delegated owned refuses base", player.DelegatedOwned, player.Base(), desc, false},
		{"delegated owned without descriptor refuses", player.DelegatedOwned, player.Delegated("rollup-1"), nil, false},
		{"delegating refuses base", player.Delegating, player.Base(), desc, false},
		{"delegating refuses delegated", player.Delegating, player.Delegated("rollup-1"), desc, false},
		{"reconciling refuses base", player.Reconciling, player.Base(), desc, false},
		{"reconciling refuses delegated", player.Reconciling, player.Delegated("rollup-1"), desc, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Permits(tt.exec, tt.desc))
		})
	}
}

func TestExecutionContext_String(t *testing.T) {
	assert.Equal(t, "base", player.Base().String())
	assert.Equal(t, "delegated:r1", player.Delegated("r1").String())
}
