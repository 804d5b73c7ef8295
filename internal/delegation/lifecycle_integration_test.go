// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

//go:build integration

package delegation_test

import (
	"context"
	"log/slog"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/nrdxhq/blockstranding/internal/delegation"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/internal/player/memory"
	"github.com/nrdxhq/blockstranding/internal/rollup"
)

var _ = Describe("Delegation lifecycle across a rollup restart", Ordered, func() {
	var (
		ctx       context.Context
		logger    *slog.Logger
		path      string
		store     *memory.Store
		journal   *oplog.Journal
		node      *rollup.Node
		addr      player.Address
		delegated player.ExecutionContext
	)

	openNode := func() {
		var err error
		node, err = rollup.Open(ctx, "rollup-1", path, logger)
		Expect(err).NotTo(HaveOccurred())
	}

	config := func() delegation.Config {
		return delegation.Config{
			Store:     store,
			Transport: node,
			Journal:   journal,
			Logger:    logger,
			Retry:     delegation.RetryConfig{Attempts: 1},
		}
	}

	processor := func() *player.Processor {
		return player.NewProcessor(player.ProcessorConfig{
			Store:     store,
			Executors: map[string]player.Executor{node.ID(): node},
			Journal:   journal,
		})
	}

	BeforeAll(func() {
		ctx = context.Background()
		logger = slog.New(slog.DiscardHandler)
		path = filepath.Join(GinkgoT().TempDir(), "rollup.db")
		store = memory.NewStore()
		journal = oplog.NewJournal(oplog.NewMemoryStore(), logger)
		addr = player.Derive("A")
		delegated = player.Delegated("rollup-1")
		openNode()

		_, err := player.NewEntities(store, journal).Initialize(ctx, "A")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if node != nil {
			_ = node.Close()
		}
	})

	It("delegates and records actions in the rollup", func() {
		_, err := delegation.NewController(config()).Delegate(ctx, "A", "A", player.DelegateConfig{})
		Expect(err).NotTo(HaveOccurred())

		p := processor()
		for _, action := range []player.Action{player.ActionMove, player.ActionMove, player.ActionAttack} {
			_, err := p.ApplyAction(ctx, "A", addr, action, delegated)
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("keeps delegated state when the rollup restarts", func() {
		Expect(node.Close()).To(Succeed())
		openNode()

		_, err := processor().ApplyAction(ctx, "A", addr, player.ActionMove, delegated)
		Expect(err).NotTo(HaveOccurred())
	})

	It("commits everything back on undelegate", func() {
		ent, err := delegation.NewReconciler(config()).Undelegate(ctx, "A", "A")
		Expect(err).NotTo(HaveOccurred())
		Expect(ent.Authority).To(Equal(player.BaseOwned))
		Expect(ent.MoveCounter).To(Equal(uint64(3)))
		Expect(ent.AttackCounter).To(Equal(uint64(1)))

		n, err := node.Replicas(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("refuses further delegated writes", func() {
		_, err := processor().ApplyAction(ctx, "A", addr, player.ActionMove, delegated)
		Expect(err).To(MatchError(player.ErrWrongAuthority))
	})
})
