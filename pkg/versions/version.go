// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package versions provides build version information.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Version information set by build using -ldflags.
var (
	// Version is the current version of Wayfinder.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = unknownStr
	// BuildDate is the date the binary was built.
	BuildDate = unknownStr
)

// VersionInfo represents the version information of the binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of the binary.
func GetVersionInfo() VersionInfo {
	version := Version
	commit := Commit
	buildDate := BuildDate

	// For development builds, derive a pseudo version from the commit.
	if version == "dev" {
		if commit != unknownStr {
			short := commit
			if len(short) > 8 {
				short = short[:8]
			}
			version = "build-" + short
		} else {
			version = "build-unknown"
		}
	}

	if buildDate != unknownStr {
		if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
		}
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
