// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package versions

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) { //nolint:paralleltest // Modifies global variables
	origVersion := Version
	origCommit := Commit
	origBuildDate := BuildDate
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
		BuildDate = origBuildDate
	})

	tests := []struct {
		name          string
		version       string
		commit        string
		buildDate     string
		wantVersion   string
		wantBuildDate string
	}{
		{
			name:          "dev version with unknown commit",
			version:       "dev",
			commit:        unknownStr,
			buildDate:     unknownStr,
			wantVersion:   "build-unknown",
			wantBuildDate: unknownStr,
		},
		{
			name:          "dev version derives pseudo version from commit",
			version:       "dev",
			commit:        "abc123def456789",
			buildDate:     unknownStr,
			wantVersion:   "build-abc123de",
			wantBuildDate: unknownStr,
		},
		{
			name:          "dev version with short commit",
			version:       "dev",
			commit:        "short",
			buildDate:     unknownStr,
			wantVersion:   "build-short",
			wantBuildDate: unknownStr,
		},
		{
			name:          "release version formats build date",
			version:       "v1.2.3",
			commit:        "abc123def456789",
			buildDate:     "2024-01-15T10:30:00Z",
			wantVersion:   "v1.2.3",
			wantBuildDate: "2024-01-15 10:30:00 UTC",
		},
		{
			name:          "unparseable build date passes through",
			version:       "v2.0.0",
			commit:        "def456",
			buildDate:     "not-a-date",
			wantVersion:   "v2.0.0",
			wantBuildDate: "not-a-date",
		},
	}

	for _, tt := range tests { //nolint:paralleltest // Modifies global variables
		t.Run(tt.name, func(t *testing.T) {
			Version = tt.version
			Commit = tt.commit
			BuildDate = tt.buildDate

			got := GetVersionInfo()

			assert.Equal(t, tt.wantVersion, got.Version)
			assert.Equal(t, tt.commit, got.Commit)
			assert.Equal(t, tt.wantBuildDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
			assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), got.Platform)
		})
	}
}
