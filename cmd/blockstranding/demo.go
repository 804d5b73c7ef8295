// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// NewDemoCmd creates the demo command.
func NewDemoCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a delegation round trip in memory",
		Long: `Demo creates a throwaway key and player, delegates the player to an
in-memory rollup, performs three moves and two attacks there, undelegates,
and prints the committed record and its history. Nothing is persisted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newMemoryApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return runDemo(cmd.Context(), cmd, a, format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json, or yaml")
	return cmd
}

func runDemo(ctx context.Context, cmd *cobra.Command, a *app, format string) error {
	k, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	owner := k.Identity()

	steps := []auth.Envelope{
		auth.NewEnvelope(auth.OpInitialize, owner, nil),
		auth.NewEnvelope(auth.OpDelegate, owner, nil),
	}
	for range 3 {
		steps = append(steps, auth.NewEnvelope(auth.OpAction, owner, map[string]string{argAction: "move"}))
	}
	for range 2 {
		steps = append(steps, auth.NewEnvelope(auth.OpAction, owner, map[string]string{argAction: "attack"}))
	}
	steps = append(steps, auth.NewEnvelope(auth.OpUndelegate, owner, nil))

	for _, env := range steps {
		data, err := auth.Sign(k, env)
		if err != nil {
			return err
		}
		if _, _, err := a.submit(ctx, data); err != nil {
			return err
		}
	}

	ent, err := a.entities.Get(ctx, owner)
	if err != nil {
		return err
	}
	if err := writePlayer(cmd.OutOrStdout(), format, ent); err != nil {
		return err
	}
	entries, err := a.history.Replay(ctx, oplog.Stream(player.Derive(owner).String()), ulid.ULID{}, 100)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	return writeHistory(cmd.OutOrStdout(), format, entries)
}
