// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/authcore/authcore/internal/config"
	"github.com/authcore/authcore/internal/logging"
	"github.com/authcore/authcore/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "AuthCore - authentication and credential lifecycle engine",
		Long: `AuthCore registers identities, verifies passwords and manages the
lifetime of server-side sessions and signed bearer tokens, including
revocation and account lockout.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig merges the config file, the command's flags and the
// environment. Without --config, $XDG_CONFIG_HOME/authcore/config.yaml is
// used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		File:  resolveConfigFile(),
		Flags: cmd.Flags(),
	})
}

func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	path, err := xdg.FindConfigFile()
	if err != nil {
		slog.Warn("ignoring default config file", "error", err)
		return ""
	}
	return path
}

// setupLogging installs the configured logger as the slog default. Logs
// go to the command's error stream.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: "authcore",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}
