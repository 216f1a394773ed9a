// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/wayfinder/pkg/api"
	"github.com/stacklok/wayfinder/pkg/auth"
	"github.com/stacklok/wayfinder/pkg/auth/google"
	"github.com/stacklok/wayfinder/pkg/logger"
	"github.com/stacklok/wayfinder/pkg/maps"
	"github.com/stacklok/wayfinder/pkg/sessions"
	"github.com/stacklok/wayfinder/pkg/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Wayfinder API server",
	Long: `Start the Wayfinder API server. Sessions live in Redis (or in process
memory when no Redis URL is configured); users and the place cache live in
SQLite.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("address", ":8000", "Address to listen on")
	flags.String("redis-url", "", "Redis URL for the session store (in-memory when empty)")
	flags.String("db-path", "wayfinder.db", "SQLite database path")
	flags.String("google-client-id", "", "Google OAuth client ID")
	flags.String("google-client-secret", "", "Google OAuth client secret")
	flags.String("google-redirect-uri", "", "OAuth callback URL registered with Google")
	flags.String("maps-api-key", "", "Google Maps API key")
	flags.String("frontend-url", "http://localhost:5173", "Frontend URL to redirect to after login")
	flags.Bool("cookie-secure", true, "Mark the session cookie Secure")

	for _, name := range []string{
		"address", "redis-url", "db-path",
		"google-client-id", "google-client-secret", "google-redirect-uri",
		"maps-api-key", "frontend-url", "cookie-secure",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}

	viper.SetEnvPrefix("WAYFINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newSessionStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close session store: %v", err)
		}
	}()

	db, err := sqlite.Open(ctx, viper.GetString("db-path"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("failed to close database: %v", err)
		}
	}()

	provider, err := google.NewProvider(&google.Config{
		ClientID:     viper.GetString("google-client-id"),
		ClientSecret: viper.GetString("google-client-secret"),
		RedirectURI:  viper.GetString("google-redirect-uri"),
	})
	if err != nil {
		return fmt.Errorf("failed to create Google OAuth provider: %w", err)
	}

	manager, err := auth.NewManager(store, sqlite.NewUserStore(db), provider)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	mapsService, err := maps.NewService(viper.GetString("maps-api-key"), sqlite.NewPlaceStore(db))
	if err != nil {
		return fmt.Errorf("failed to create maps service: %w", err)
	}

	return api.Serve(ctx,
		api.Config{
			Address:      viper.GetString("address"),
			FrontendURL:  viper.GetString("frontend-url"),
			CookieSecure: viper.GetBool("cookie-secure"),
		},
		api.Deps{
			Auth: manager,
			Maps: mapsService,
		},
	)
}

// sessionStore is the subset of store implementations the server manages.
type sessionStore interface {
	sessions.Store
	Close() error
}

func newSessionStore(ctx context.Context) (sessionStore, error) {
	redisURL := viper.GetString("redis-url")
	if redisURL == "" {
		logger.Info("no Redis URL configured, using in-memory session store")
		return sessions.NewMemoryStore(), nil
	}

	store, err := sessions.NewRedisStore(ctx, sessions.RedisConfig{URL: redisURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Infow("using Redis session store")
	return store, nil
}
