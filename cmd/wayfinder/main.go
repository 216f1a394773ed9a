// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the Wayfinder server.
package main

import (
	"os"

	"github.com/stacklok/wayfinder/cmd/wayfinder/app"
	"github.com/stacklok/wayfinder/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
