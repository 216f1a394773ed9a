// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package calendar fetches a user's Google Calendar events.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/logger"
)

// DefaultBaseURL is the Google Calendar API root.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// ServiceName identifies this API in external-service errors.
const ServiceName = "Google Calendar"

// maxEvents caps a single day's listing.
const maxEvents = 50

const defaultTimeout = 30 * time.Second

const maxResponseSize = 1 << 20 // 1 MiB

// UntitledEvent is substituted when an event has no summary.
const UntitledEvent = "Untitled Event"

// Event is a normalized calendar event.
type Event struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location,omitempty"`
	AllDay    bool   `json:"all_day"`
}

// Service queries the Google Calendar API with a user's access token.
type Service struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithBaseURL overrides the API root, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// NewService creates a calendar service bound to one access token.
func NewService(accessToken string, opts ...Option) *Service {
	s := &Service{
		accessToken: accessToken,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// eventsResponse is the subset of the Calendar API list response we read.
type eventsResponse struct {
	Items []eventItem `json:"items"`
}

type eventItem struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	Summary  string    `json:"summary"`
	Location string    `json:"location"`
	Start    eventTime `json:"start"`
	End      eventTime `json:"end"`
}

// eventTime carries either a dateTime (timed event) or a date (all-day).
type eventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

// EventsForDate lists the primary calendar's events for one calendar day
// (UTC midnight to midnight). Cancelled events are dropped.
func (s *Service) EventsForDate(ctx context.Context, day time.Time) ([]Event, error) {
	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	params := url.Values{
		"timeMin":      {startOfDay.Format(time.RFC3339)},
		"timeMax":      {endOfDay.Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {fmt.Sprintf("%d", maxEvents)},
	}

	endpoint := s.baseURL + "/calendars/primary/events?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to create calendar request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "failed to fetch events", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "failed to fetch events", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.NewExternalServiceError(ServiceName, "access token expired", nil)
	case resp.StatusCode != http.StatusOK:
		logger.Warnw("calendar events request failed",
			"status", resp.StatusCode,
		)
		return nil, errors.NewExternalServiceError(ServiceName,
			fmt.Sprintf("failed to fetch events: %d", resp.StatusCode), nil)
	}

	var listing eventsResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "invalid events response", err)
	}

	events := make([]Event, 0, len(listing.Items))
	for _, item := range listing.Items {
		if event, ok := transformEvent(item); ok {
			events = append(events, event)
		}
	}

	logger.Debugw("calendar events fetched",
		"date", startOfDay.Format("2006-01-02"),
		"count", len(events),
	)

	return events, nil
}

// transformEvent normalizes a raw API item; ok=false drops it.
func transformEvent(item eventItem) (Event, bool) {
	if item.Status == "cancelled" {
		return Event{}, false
	}

	title := item.Summary
	if title == "" {
		title = UntitledEvent
	}

	allDay := item.Start.Date != ""
	var start, end string
	if allDay {
		start = item.Start.Date
		end = item.End.Date
	} else {
		start = item.Start.DateTime
		end = item.End.DateTime
	}

	return Event{
		ID:        item.ID,
		Title:     title,
		StartTime: start,
		EndTime:   end,
		Location:  item.Location,
		AllDay:    allDay,
	}, true
}
