// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/xdg"
)

// NewKeygenCmd creates the keygen command.
func NewKeygenCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		Long: `Generate an ed25519 signing key and write it to the key file. The
printed identity is the owner identity of the key's player record.
Set ` + passphraseEnv + ` to encrypt the key file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.cfg.KeyFile
			if _, err := os.Stat(path); err == nil && !force {
				return oops.Code("KEY_EXISTS").With("path", path).Errorf("key file already exists; use --force to replace it")
			}
			if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
				return err
			}
			k, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			if err := auth.SaveKey(path, k, os.Getenv(passphraseEnv)); err != nil {
				return err
			}
			cmd.Printf("Key written to %s\n", path)
			cmd.Println(k.Identity())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

// loadSigner reads the configured signing key.
func (c *cli) loadSigner() (*auth.KeyPair, error) {
	return auth.LoadKey(c.cfg.KeyFile, os.Getenv(passphraseEnv))
}
