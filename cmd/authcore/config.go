// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authcore/authcore/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a configuration file for unknown keys and invalid values",
		Long: `Check a configuration file against the configuration schema, then load it
with the current flags and environment and validate the merged result.
FILE defaults to the value of --config, then to
$XDG_CONFIG_HOME/authcore/config.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConfigValidate,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(schema))
			return nil
		},
	})

	return cmd
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := resolveConfigFile()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return oops.Code("CONFIG_FILE_REQUIRED").Errorf("no configuration file given; pass FILE or --config")
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	if err := config.ValidateFile(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}

	cfg, err := config.Load(config.LoadOptions{File: path, Flags: cmd.Flags()})
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}
	cmd.Printf("%s is valid (database %s, kv %s)\n", path, cfg.Database.Driver, cfg.KV.Backend)
	return nil
}
