// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/player"
	"github.com/nrdxhq/blockstranding/pkg/errutil"
)

// NewResumeCmd creates the resume command.
func NewResumeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Finish delegations and reconciliations left in a checkpoint state",
		Long: `Resume completes every record stuck in delegating or reconciling, for
example after a crash or a rollup outage. It is safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return runResume(ctx, cmd, a)
			})
		},
	}
}

func runResume(ctx context.Context, cmd *cobra.Command, a *app) error {
	ents, err := a.store.ListByAuthority(ctx, player.Delegating, player.Reconciling)
	if err != nil {
		return err
	}
	var resumed, failed int
	for _, ent := range ents {
		var ok bool
		var err error
		if ent.Authority == player.Delegating {
			ok, err = a.controller.Resume(ctx, ent.Address)
		} else {
			ok, err = a.reconciler.Resume(ctx, ent.Address)
		}
		if err != nil {
			failed++
			errutil.LogError(a.logger.With("address", ent.Address.String()), "resume failed", err)
			continue
		}
		if ok {
			resumed++
		}
	}
	cmd.Printf("Resumed %d of %d checkpointed records\n", resumed, len(ents))
	if failed > 0 {
		return errResumeIncomplete(failed)
	}
	return nil
}

func errResumeIncomplete(failed int) error {
	return oops.Code("RESUME_INCOMPLETE").With("failed", failed).Errorf("%d records could not be resumed", failed)
}
