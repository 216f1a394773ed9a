// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the wayfinder command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/wayfinder/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "wayfinder",
	DisableAutoGenTag: true,
	Short:             "Wayfinder is the travel planning API server",
	Long: `Wayfinder is the backend API for the travel planner: Google sign-in with
cookie-bound sessions, calendar event lookups, and place search and
geocoding with a persistent place cache.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the Wayfinder CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
