// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/wayfinder/pkg/api/errors"
	"github.com/stacklok/wayfinder/pkg/auth"
	"github.com/stacklok/wayfinder/pkg/calendar"
	"github.com/stacklok/wayfinder/pkg/errors"
)

// CalendarServiceFactory builds a calendar service bound to one access
// token. Injected so tests can point the service at a fake API.
type CalendarServiceFactory func(accessToken string) *calendar.Service

// CalendarRouter sets up the calendar routes.
func CalendarRouter(manager *auth.Manager, factory CalendarServiceFactory) http.Handler {
	if factory == nil {
		factory = func(accessToken string) *calendar.Service {
			return calendar.NewService(accessToken)
		}
	}
	routes := &calendarRoutes{manager: manager, factory: factory}
	r := chi.NewRouter()
	r.Get("/events", apierrors.ErrorHandler(routes.getEvents))
	return r
}

type calendarRoutes struct {
	manager *auth.Manager
	factory CalendarServiceFactory
}

// CalendarEventsResponse is the events listing envelope.
type CalendarEventsResponse struct {
	Events []calendar.Event `json:"events"`
}

// getEvents lists the user's events for one day, refreshing the access
// token first when needed.
func (c *calendarRoutes) getEvents(w http.ResponseWriter, r *http.Request) error {
	rawDate := r.URL.Query().Get("date")
	if rawDate == "" {
		return errors.NewValidationError("date query parameter is required", nil)
	}
	day, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return errors.NewValidationError("date must be formatted YYYY-MM-DD", map[string]any{
			"date": rawDate,
		})
	}

	token, err := resolveAccessToken(r, c.manager)
	if err != nil {
		return err
	}

	events, err := c.factory(token).EventsForDate(r.Context(), day)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(CalendarEventsResponse{Events: events})
}
