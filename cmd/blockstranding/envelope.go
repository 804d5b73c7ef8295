// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"context"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/auth"
	"github.com/nrdxhq/blockstranding/internal/codec"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// NewSignCmd creates the sign command, which writes a signed request for
// someone else to submit.
func NewSignCmd(c *cli) *cobra.Command {
	var (
		owner string
		out   string
		args  []string
	)
	cmd := &cobra.Command{
		Use:   "sign OPERATION",
		Short: "Sign a request without submitting it",
		Long: `Sign writes a signed request to a file. OPERATION is one of
initialize, delegate, action, or undelegate; arguments are passed as
--arg key=value (action, context, commit-frequency, expiry).`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{auth.OpInitialize, auth.OpDelegate, auth.OpAction, auth.OpUndelegate},
		RunE: func(cmd *cobra.Command, argv []string) error {
			kv, err := parseArgs(args)
			if err != nil {
				return err
			}
			k, err := c.loadSigner()
			if err != nil {
				return err
			}
			id := player.Identity(owner)
			if id == "" {
				id = k.Identity()
			}
			env := auth.NewEnvelope(argv[0], id, kv)
			data, err := auth.Sign(k, env)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return oops.Code("ENVELOPE_WRITE_FAILED").With("path", out).Wrap(err)
			}
			cmd.Printf("Signed %s request %s written to %s\n", env.Operation, env.Nonce, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner identity of the record (default: the signing key's identity)")
	cmd.Flags().StringVarP(&out, "out", "O", "request.cbor", "file to write the signed request to")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "request argument as key=value (repeatable)")
	return cmd
}

// NewSubmitCmd creates the submit command, which executes a signed request.
func NewSubmitCmd(c *cli) *cobra.Command {
	var dump bool
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Verify and execute a signed request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			data, err := os.ReadFile(argv[0])
			if err != nil {
				return oops.Code("ENVELOPE_READ_FAILED").With("path", argv[0]).Wrap(err)
			}
			if dump {
				diag, err := codec.Diagnose(data)
				if err != nil {
					return oops.Code("AUTH_ENVELOPE_INVALID").Wrap(err)
				}
				cmd.Println(diag)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				env, res, err := a.submit(ctx, data)
				if err != nil {
					return err
				}
				cmd.Printf("Executed %s for %s signed by %s\n", env.Operation, env.Owner, env.Caller)
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the request in CBOR diagnostic notation first")
	return cmd
}

func parseArgs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, &player.ValidationError{Field: "arg", Message: "expected key=value, got " + p}
		}
		out[k] = v
	}
	return out, nil
}
