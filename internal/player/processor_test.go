// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package player_test

import (
	"context"
	"math"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/pkg/errutil"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, desc player.Descriptor, action player.Action) (player.Record, error) {
	args := m.Called(ctx, desc, action)
	return args.Get(0).(player.Record), args.Error(1)
}

type allowPayer player.Identity

func (a allowPayer) Authorized(_ context.Context, _, caller player.Identity) bool {
	return caller == player.Identity(a)
}

// delegate forces the entity at addr into DelegatedOwned on context id.
func delegate(t *testing.T, store player.Store, addr player.Address, id string) player.Descriptor {
	t.Helper()
	desc := player.Descriptor{ID: ulid.Make(), Address: addr, ContextID: id}
	_, err := store.Update(context.Background(), addr, func(e *player.Entity) error {
		e.Authority = player.DelegatedOwned
		e.Descriptor = &desc
		return nil
	})
	require.NoError(t, err)
	return desc
}

func setAuthority(t *testing.T, store player.Store, addr player.Address, state player.Authority) {
	t.Helper()
	_, err := store.Update(context.Background(), addr, func(e *player.Entity) error {
		e.Authority = state
		return nil
	})
	require.NoError(t, err)
}

func TestProcessor_BaseContext(t *testing.T) {
	ctx := context.Background()
	addr := player.Derive("A")

	t.Run("increments counters in base-owned state", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		log := oplog.NewMemoryStore()
		proc := player.NewProcessor(player.ProcessorConfig{Store: store, Journal: oplog.NewJournal(log, nil)})

		rec, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Base())
		require.NoError(t, err)
		assert.Equal(t, uint64(1), rec.MoveCounter)

		rec, err = proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Base())
		require.NoError(t, err)
		assert.Equal(t, uint64(2), rec.MoveCounter)

		rec, err = proc.ApplyAction(ctx, "A", addr, player.ActionAttack, player.Base())
		require.NoError(t, err)
		assert.Equal(t, uint64(2), rec.MoveCounter)
		assert.Equal(t, uint64(1), rec.AttackCounter)

		entries, err := log.Replay(ctx, oplog.Stream(addr.String()), ulid.ULID{}, 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "Player "+addr.String()+" performed action Move. Move counter: 2", entries[1].Message)
	})

	for _, state := range []player.Authority{player.Delegating, player.DelegatedOwned, player.Reconciling} {
		t.Run("refuses in "+state.String(), func(t *testing.T) {
			store, _ := newFixture(t, "A")
			setAuthority(t, store, addr, state)
			proc := player.NewProcessor(player.ProcessorConfig{Store: store})

			_, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Base())
			errutil.AssertKind(t, err, player.ErrWrongAuthority, player.CodeWrongAuthority)

			ent, err := store.Get(ctx, addr)
			require.NoError(t, err)
			assert.Zero(t, ent.MoveCounter)
		})
	}

	t.Run("refuses non-owner", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		proc := player.NewProcessor(player.ProcessorConfig{Store: store})
		_, err := proc.ApplyAction(ctx, "B", addr, player.ActionMove, player.Base())
		errutil.AssertKind(t, err, player.ErrNotOwner, player.CodeNotOwner)
	})

	t.Run("accepts authorized payer", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		proc := player.NewProcessor(player.ProcessorConfig{Store: store, Authorizer: allowPayer("P")})
		rec, err := proc.ApplyAction(ctx, "P", addr, player.ActionAttack, player.Base())
		require.NoError(t, err)
		assert.Equal(t, uint64(1), rec.AttackCounter)
	})

	t.Run("overflow leaves counter unchanged", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		_, err := store.Update(ctx, addr, func(e *player.Entity) error {
			e.AttackCounter = math.MaxUint64
			return nil
		})
		require.NoError(t, err)
		proc := player.NewProcessor(player.ProcessorConfig{Store: store})

		_, err = proc.ApplyAction(ctx, "A", addr, player.ActionAttack, player.Base())
		errutil.AssertKind(t, err, player.ErrCounterOverflow, player.CodeCounterOverflow)

		ent, err := store.Get(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(math.MaxUint64), ent.AttackCounter)
	})

	t.Run("unknown address", func(t *testing.T) {
		store, _ := newFixture(t)
		proc := player.NewProcessor(player.ProcessorConfig{Store: store})
		_, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Base())
		assert.ErrorIs(t, err, player.ErrNotFound)
	})
}

func TestProcessor_DelegatedContext(t *testing.T) {
	ctx := context.Background()
	addr := player.Derive("A")

	t.Run("forwards to the executor holding authority", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		desc := delegate(t, store, addr, "r1")
		exec := &mockExecutor{}
		exec.On("Execute", mock.Anything, desc, player.ActionMove).
			Return(player.Record{MoveCounter: 4}, nil).Once()
		proc := player.NewProcessor(player.ProcessorConfig{
			Store:     store,
			Executors: map[string]player.Executor{"r1": exec},
		})

		rec, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Delegated("r1"))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), rec.MoveCounter)
		assert.Equal(t, addr, rec.Address)
		exec.AssertExpectations(t)

		ent, err := store.Get(ctx, addr)
		require.NoError(t, err)
		assert.Zero(t, ent.MoveCounter, "base copy only changes on commit")
	})

	t.Run("refuses other delegated context", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		delegate(t, store, addr, "r1")
		exec := &mockExecutor{}
		proc := player.NewProcessor(player.ProcessorConfig{
			Store:     store,
			Executors: map[string]player.Executor{"r2": exec},
		})

		_, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Delegated("r2"))
		errutil.AssertKind(t, err, player.ErrWrongAuthority, player.CodeWrongAuthority)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("refuses delegated write while base owned", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		exec := &mockExecutor{}
		proc := player.NewProcessor(player.ProcessorConfig{
			Store:     store,
			Executors: map[string]player.Executor{"r1": exec},
		})
		_, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Delegated("r1"))
		assert.ErrorIs(t, err, player.ErrWrongAuthority)
		exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing executor is wrong authority", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		delegate(t, store, addr, "r1")
		proc := player.NewProcessor(player.ProcessorConfig{Store: store})
		_, err := proc.ApplyAction(ctx, "A", addr, player.ActionMove, player.Delegated("r1"))
		assert.ErrorIs(t, err, player.ErrWrongAuthority)
	})

	t.Run("propagates executor refusal", func(t *testing.T) {
		store, _ := newFixture(t, "A")
		desc := delegate(t, store, addr, "r1")
		exec := &mockExecutor{}
		exec.On("Execute", mock.Anything, desc, player.ActionAttack).
			Return(player.Record{}, player.ErrWrongAuthority)
		proc := player.NewProcessor(player.ProcessorConfig{
			Store:     store,
			Executors: map[string]player.Executor{"r1": exec},
		})
		_, err := proc.ApplyAction(ctx, "A", addr, player.ActionAttack, player.Delegated("r1"))
		assert.ErrorIs(t, err, player.ErrWrongAuthority)
	})
}

func TestProcessor_RejectsUnknownAction(t *testing.T) {
	store, _ := newFixture(t, "A")
	proc := player.NewProcessor(player.ProcessorConfig{Store: store})
	_, err := proc.ApplyAction(context.Background(), "A", player.Derive("A"), player.Action(0), player.Base())
	var verr *player.ValidationError
	assert.ErrorAs(t, err, &verr)
}
