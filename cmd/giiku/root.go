// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/roito2356/giiku-23/internal/config"
)

// NewRootCmd creates the root command for the Giiku CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "giiku",
		Short: "Giiku - account server for learning materials",
		Long: `Giiku serves registration, login, sessions and account
administration for the learning materials site.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("giiku %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// loadConfig reads configuration using the command's merged flag set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flags())
}
