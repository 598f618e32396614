// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package main

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authcore/authcore/internal/auth"
)

// NewTokenCmd creates the token command group.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, validate and revoke bearer tokens",
		Long: `Issue, validate and revoke bearer tokens. Revocations only outlive the
command with the redis kv backend; the memory backend forgets them on exit.`,
	}
	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenValidateCmd())
	cmd.AddCommand(newTokenRevokeCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "issue IDENTIFIER",
		Short: "Log in with a username or email and print a bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, passwordStdin, "Password: ")
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *Engine) error {
				result, err := e.Service.Login(ctx, args[0], password, auth.ModeToken)
				if err != nil {
					return oops.With("operation", "issue token").Wrap(err)
				}
				cmd.Println(result.Token.Value)
				cmd.PrintErrf("Token %s for %s expires %s\n",
					result.Token.TokenID, result.UserID, result.Token.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newTokenValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TOKEN",
		Short: "Validate a bearer token and print its subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *Engine) error {
				cred := auth.Credential{Mode: auth.ModeToken, Value: strings.TrimSpace(args[0])}
				userID, err := e.Service.Authenticate(ctx, cred)
				if err != nil {
					return oops.With("operation", "validate token").Wrap(err)
				}
				cmd.Println(userID.String())
				return nil
			})
		},
	}
}

func newTokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke a bearer token until it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *Engine) error {
				cred := auth.Credential{Mode: auth.ModeToken, Value: strings.TrimSpace(args[0])}
				if err := e.Service.Logout(ctx, cred); err != nil {
					return oops.With("operation", "revoke token").Wrap(err)
				}
				cmd.Println("Token revoked")
				return nil
			})
		},
	}
}
