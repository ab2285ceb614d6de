// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/config"
)

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "warden - credential and session service",
		Long: `warden registers users, verifies passwords, issues and revokes
session tokens, and handles password reset with one-time tokens.`,
		SilenceUsage: true,
	}

	// Every setting is a persistent flag; --config selects the YAML file.
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig resolves configuration for cmd from its file and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(config.ConfigFlag)
	if err != nil {
		return nil, err //nolint:wrapcheck // flag is registered on the root command
	}
	return config.Load(path, cmd.Flags())
}
