// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewExternalServiceError("Google OAuth", "code exchange failed", cause)

	assert.Equal(t, "EXTERNAL_SERVICE_ERROR: Google OAuth error: code exchange failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestCodeMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"authentication", NewAuthenticationError("invalid or expired session"), http.StatusUnauthorized},
		{"not found", NewNotFoundError("User", "abc"), http.StatusNotFound},
		{"validation", NewValidationError("date is required", nil), http.StatusUnprocessableEntity},
		{"conflict", NewConflictError("email already registered"), http.StatusConflict},
		{"external service", NewExternalServiceError("Google Maps", "geocoding failed", nil), http.StatusBadGateway},
		{"internal", NewInternalError("boom", nil), http.StatusInternalServerError},
		{"outside taxonomy", errors.New("plain"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("handling request: %w", NewAuthenticationError("")), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestNewResponse(t *testing.T) {
	t.Parallel()

	t.Run("external service carries service detail", func(t *testing.T) {
		t.Parallel()
		resp := NewResponse(NewExternalServiceError("Google Calendar", "fetch failed", nil))
		assert.Equal(t, ErrExternalService, resp.Code)
		assert.Equal(t, "Google Calendar", resp.Details["service"])
	})

	t.Run("nil details become empty map", func(t *testing.T) {
		t.Parallel()
		resp := NewResponse(NewAuthenticationError("no session cookie found"))
		require.NotNil(t, resp.Details)
		assert.Empty(t, resp.Details)
		assert.Equal(t, ErrUnauthorized, resp.Code)
		assert.Equal(t, "no session cookie found", resp.Message)
	})

	t.Run("unknown errors are masked", func(t *testing.T) {
		t.Parallel()
		resp := NewResponse(errors.New("secret internal state"))
		assert.Equal(t, ErrInternal, resp.Code)
		assert.Equal(t, "internal server error", resp.Message)
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		t.Parallel()
		resp := NewResponse(NewInternalError("failed to persist session", errors.New("disk full")))
		assert.Equal(t, ErrInternal, resp.Code)
		assert.Equal(t, "internal server error", resp.Message)
	})
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAuthentication(NewAuthenticationError("")))
	assert.False(t, IsAuthentication(NewConflictError("x")))
	assert.True(t, IsNotFound(NewNotFoundError("Address", "nowhere")))
	assert.True(t, IsConflict(NewConflictError("x")))
	assert.True(t, IsExternalService(NewExternalServiceError("Google Maps", "down", nil)))
	assert.False(t, IsExternalService(errors.New("plain")))
}

func TestDefaultAuthenticationMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "UNAUTHORIZED: authentication required", NewAuthenticationError("").Error())
}
