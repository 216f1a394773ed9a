// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error.
// This signature allows handlers to return errors instead of manually
// writing error responses, enabling centralized error handling.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into the API's JSON error envelope.
//
// The decorator:
//   - Returns early if no error is returned (handler already wrote response)
//   - Extracts HTTP status code from the error using errors.Code()
//   - For 5xx errors: logs full error details, returns a generic body
//   - For 4xx errors: returns the error's code, message, and details
//
// Usage:
//
//	r.Get("/events", apierrors.ErrorHandler(routes.getEvents))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			// No error returned, handler already wrote the response
			return
		}

		code := errors.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorf("internal server error: %v", err)
		}

		// NewResponse masks non-taxonomy errors behind a generic body.
		writeJSON(w, code, errors.NewResponse(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("failed to encode error response: %v", err)
	}
}
