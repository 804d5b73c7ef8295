// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/store"
)

var _ = Describe("PostgresOpLog", func() {
	var (
		ctx    context.Context
		log    *store.PostgresOpLog
		stream string
	)

	BeforeEach(func() {
		ctx = context.Background()
		log = store.NewPostgresOpLog(suitePool)
		stream = oplog.Stream(oplog.NewULID().String())
	})

	It("replays appended entries in order", func() {
		var ids []ulid.ULID
		for _, msg := range []string{"Player initialized", "Player delegated"} {
			e := oplog.Entry{
				ID:        oplog.NewULID(),
				Stream:    stream,
				Type:      oplog.EntryInitialized,
				Timestamp: time.Now().UTC(),
				Actor:     oplog.Actor{Kind: oplog.ActorOwner, ID: "A"},
				Message:   msg,
				Payload:   []byte(`{"k":"v"}`),
			}
			Expect(log.Append(ctx, e)).To(Succeed())
			ids = append(ids, e.ID)
		}

		got, err := log.Replay(ctx, stream, ulid.ULID{}, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].Message).To(Equal("Player initialized"))
		Expect(string(got[0].Payload)).To(MatchJSON(`{"k":"v"}`))

		got, err = log.Replay(ctx, stream, ids[0], 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal(ids[1]))

		last, err := log.LastEntryID(ctx, stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(last).To(Equal(ids[1]))
	})

	It("reports empty streams", func() {
		_, err := log.LastEntryID(ctx, stream)
		Expect(err).To(MatchError(oplog.ErrStreamEmpty))
	})
})
