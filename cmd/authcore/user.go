// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/authcore/authcore/internal/auth"
)

// NewUserCmd creates the user command group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user identities",
	}
	cmd.AddCommand(newUserRegisterCmd())
	cmd.AddCommand(newUserDeleteCmd())
	cmd.AddCommand(newUserDeactivateCmd())
	return cmd
}

func newUserRegisterCmd() *cobra.Command {
	var (
		fields        auth.RegistrationFields
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new identity",
		Long: `Register a new identity. The password is prompted for without echo, or
read from the first line of standard input with --password-stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd, passwordStdin, "Password: ")
			if err != nil {
				return err
			}
			fields.Password = password

			return withEngine(cmd, func(ctx context.Context, e *Engine) error {
				identity, err := e.Service.Register(ctx, fields)
				if err != nil {
					return oops.With("operation", "register user").Wrap(err)
				}
				cmd.Printf("Registered %s (%s)\n", identity.Username, identity.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fields.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&fields.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&fields.Username, "username", "", "unique username")
	cmd.Flags().StringVar(&fields.Email, "email", "", "unique email address")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

func newUserDeleteCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete an identity and invalidate all of its credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").
					With("user_id", userID.String()).
					Errorf("deleting an account is permanent; re-run with --yes to confirm")
			}
			return withEngine(cmd, func(ctx context.Context, e *Engine) error {
				if err := e.Service.DeleteAccount(ctx, userID); err != nil {
					return oops.With("operation", "delete user").Wrap(err)
				}
				cmd.Printf("Deleted %s\n", userID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the deletion")
	return cmd
}

func newUserDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate USER_ID",
		Short: "Deactivate an identity and invalidate all of its credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *Engine) error {
				if err := e.Service.Deactivate(ctx, userID); err != nil {
					return oops.With("operation", "deactivate user").Wrap(err)
				}
				cmd.Printf("Deactivated %s\n", userID)
				return nil
			})
		},
	}
}

// withEngine builds the engine from configuration for the duration of fn.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *Engine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}
	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, err := buildEngine(ctx, cfg, EngineDeps{Logger: logger})
	if err != nil {
		return err
	}
	defer engine.Close()

	return fn(ctx, engine)
}

func parseUserID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(strings.TrimSpace(s))
	if err != nil {
		return ulid.ULID{}, oops.Code("INVALID_USER_ID").With("input", s).Wrap(err)
	}
	return id, nil
}

// readPassword reads a password from the first line of stdin when
// fromStdin is set, otherwise from the terminal without echo.
func readPassword(cmd *cobra.Command, fromStdin bool, prompt string) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", oops.Code("PASSWORD_UNAVAILABLE").
			Errorf("standard input is not a terminal; use --password-stdin")
	}
	cmd.Print(prompt)
	password, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return string(password), nil
}
