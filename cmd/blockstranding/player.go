// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// openApp wires the ledger for a command and returns a release func. Tests
// replace it with an in-memory app.
var openApp = func(ctx context.Context, cfg *config, logger *slog.Logger) (*app, func(), error) {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

// NewPlayerCmd creates the player command group.
func NewPlayerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Create, delegate, and act on player records",
		Long: `Player commands sign a request with the configured key and execute it.
The signer is the caller: the owner, or a payer the owner has authorized.`,
	}

	var owner string
	cmd.PersistentFlags().StringVar(&owner, "owner", "", "owner identity of the record (default: the signing key's identity)")

	var (
		commitFrequency string
		expiry          string
		execContext     string
		format          string
		limit           int
		after           string
	)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the player record for the signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.signAndRun(cmd, auth.OpInitialize, "", nil)
		},
	}

	delegateCmd := &cobra.Command{
		Use:   "delegate",
		Short: "Delegate a record to the rollup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := map[string]string{}
			if commitFrequency != "" {
				args[argCommitFrequency] = commitFrequency
			}
			if expiry != "" {
				args[argExpiry] = expiry
			}
			return c.signAndRun(cmd, auth.OpDelegate, owner, args)
		},
	}
	delegateCmd.Flags().StringVar(&commitFrequency, "commit-frequency", "", "how often delegated state is committed back (default 30s)")
	delegateCmd.Flags().StringVar(&expiry, "expiry", "", "reclaim the delegation after this long (default: never)")

	actionCmd := &cobra.Command{
		Use:       "action move|attack",
		Short:     "Apply Move or Attack to a record",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"move", "attack"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.signAndRun(cmd, auth.OpAction, owner, map[string]string{
				argAction:  strings.ToLower(args[0]),
				argContext: execContext,
			})
		},
	}
	actionCmd.Flags().StringVar(&execContext, "context", contextAuto, "execution context: auto, base, or delegated")

	undelegateCmd := &cobra.Command{
		Use:   "undelegate",
		Short: "Commit delegated state and return the record to the base ledger",
		Long: `Undelegate seals the rollup copy, commits its counters into the base
ledger, and returns authority. If a previous attempt failed with a commit
error, running it again retries the commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.signAndRun(cmd, auth.OpUndelegate, owner, nil)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show a player record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				id, err := c.ownerOrSelf(owner)
				if err != nil {
					return err
				}
				ent, err := a.entities.Get(ctx, id)
				if err != nil {
					return err
				}
				return writePlayer(cmd.OutOrStdout(), format, ent)
			})
		},
	}
	showCmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json, or yaml")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the operation log of a player record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				id, err := c.ownerOrSelf(owner)
				if err != nil {
					return err
				}
				if err := id.Validate(); err != nil {
					return err
				}
				var afterID ulid.ULID
				if after != "" {
					if afterID, err = oplog.ParseULID(after); err != nil {
						return err
					}
				}
				entries, err := a.history.Replay(ctx, oplog.Stream(player.Derive(id).String()), afterID, limit)
				if err != nil {
					return err
				}
				return writeHistory(cmd.OutOrStdout(), format, entries)
			})
		},
	}
	historyCmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json, or yaml")
	historyCmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to show")
	historyCmd.Flags().StringVar(&after, "after", "", "only show entries after this entry id")

	cmd.AddCommand(initCmd, delegateCmd, actionCmd, undelegateCmd, showCmd, historyCmd)
	return cmd
}

// withApp opens the ledger for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, release, err := openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, a)
}

// ownerOrSelf returns owner, or the signing key's identity when owner is empty.
func (c *cli) ownerOrSelf(owner string) (player.Identity, error) {
	if owner != "" {
		return player.Identity(owner), nil
	}
	k, err := c.loadSigner()
	if err != nil {
		return "", err
	}
	return k.Identity(), nil
}

// signAndRun signs an envelope for op with the configured key and submits it.
func (c *cli) signAndRun(cmd *cobra.Command, op, owner string, args map[string]string) error {
	k, err := c.loadSigner()
	if err != nil {
		return err
	}
	id := player.Identity(owner)
	if id == "" {
		id = k.Identity()
	}
	data, err := auth.Sign(k, auth.NewEnvelope(op, id, args))
	if err != nil {
		return err
	}
	return c.withApp(cmd, func(ctx context.Context, a *app) error {
		_, res, err := a.submit(ctx, data)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	})
}

// printResult prints what an executed envelope produced.
func printResult(w io.Writer, res *result) error {
	switch {
	case res.Entity != nil:
		return writePlayer(w, formatTable, res.Entity)
	case res.Descriptor != nil:
		d := newDelegationView(res.Descriptor)
		_, err := fmt.Fprintf(w, "Delegated to %s (delegation %s, commit every %s)\n", d.Context, d.ID, d.CommitFrequency)
		return err
	case res.Record != nil:
		_, err := fmt.Fprintf(w, "Move counter: %d\nAttack counter: %d\n", res.Record.MoveCounter, res.Record.AttackCounter)
		return err
	}
	return nil
}
