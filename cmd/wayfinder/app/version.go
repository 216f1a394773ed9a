// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stacklok/wayfinder/pkg/logger"
	"github.com/stacklok/wayfinder/pkg/versions"
)

// newVersionCmd creates a new version command
func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version of Wayfinder",
		Long:  `Display detailed version information about Wayfinder, including version number, git commit, build date, and Go version.`,
		Run: func(_ *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()

			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(info); err != nil {
					logger.Errorf("Error encoding version info: %v", err)
				}
				return
			}
			printVersionInfo(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information as JSON")

	return cmd
}

// printVersionInfo prints the version information
func printVersionInfo(info versions.VersionInfo) {
	fmt.Printf("Wayfinder %s\n", info.Version)
	fmt.Printf("Commit: %s\n", info.Commit)
	fmt.Printf("Built: %s\n", info.BuildDate)
	fmt.Printf("Go version: %s\n", info.GoVersion)
	fmt.Printf("Platform: %s\n", info.Platform)
}
