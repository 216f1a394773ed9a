// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API for Wayfinder.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/stacklok/wayfinder/pkg/api/v1"
	"github.com/stacklok/wayfinder/pkg/auth"
	"github.com/stacklok/wayfinder/pkg/logger"
	"github.com/stacklok/wayfinder/pkg/maps"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps carries the wired collaborators the routers need.
type Deps struct {
	Auth *auth.Manager
	Maps *maps.Service
	Cal  v1.CalendarServiceFactory
}

// Config carries the HTTP-surface settings.
type Config struct {
	// Address is the host:port to listen on.
	Address string

	// FrontendURL is where the callback redirects after login.
	FrontendURL string

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// Router assembles the full route tree. Split out from Serve so tests can
// drive it with httptest.
func Router(cfg Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	cookies := v1.CookieConfig{Secure: cfg.CookieSecure}
	routers := map[string]http.Handler{
		"/health":          v1.HealthcheckRouter(),
		"/api/v1/auth":     v1.AuthRouter(deps.Auth, cfg.FrontendURL, cookies),
		"/api/v1/calendar": v1.CalendarRouter(deps.Auth, deps.Cal),
		"/api/v1/places":   v1.PlacesRouter(deps.Auth, deps.Maps),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}

// Serve starts the server on the configured address and blocks until the
// context is cancelled, then shuts down gracefully. It is assumed that the
// caller sets up appropriate signal handling.
func Serve(ctx context.Context, cfg Config, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.Address,
		Handler:           Router(cfg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting HTTP server", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
