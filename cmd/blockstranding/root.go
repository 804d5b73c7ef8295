// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/logging"
)

const serviceName = "blockstranding"

// cli carries the loaded configuration to subcommands.
type cli struct {
	cfg    *config
	logger *slog.Logger
}

// NewRootCmd creates the root command for the blockstranding CLI.
func NewRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "blockstranding",
		Short: "Blockstranding - a player ledger with rollup delegation",
		Long: `Blockstranding keeps player records on a base ledger and lets owners
delegate them to a rollup for fast writes, committing the results back
when the delegation ends.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logging.SetDefault(serviceName, version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel), cmd.ErrOrStderr())
			return nil
		},
	}

	registerConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewMigrateCmd(c))
	cmd.AddCommand(NewKeygenCmd(c))
	cmd.AddCommand(NewPlayerCmd(c))
	cmd.AddCommand(NewSignCmd(c))
	cmd.AddCommand(NewSubmitCmd(c))
	cmd.AddCommand(NewResumeCmd(c))
	cmd.AddCommand(NewServeCmd(c))
	cmd.AddCommand(NewDemoCmd(c))

	return cmd
}
