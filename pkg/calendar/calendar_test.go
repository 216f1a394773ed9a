// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/wayfinder/pkg/errors"
)

func testDay(t *testing.T) time.Time {
	t.Helper()
	day, err := time.Parse("2006-01-02", "2025-06-15")
	require.NoError(t, err)
	return day
}

func TestEventsForDate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer access-abc", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "2025-06-15T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2025-06-16T00:00:00Z", q.Get("timeMax"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "50", q.Get("maxResults"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{
					"id": "evt-1",
					"status": "confirmed",
					"summary": "Lunch with Grace",
					"location": "Blue Bottle, Oakland",
					"start": {"dateTime": "2025-06-15T12:00:00-07:00"},
					"end": {"dateTime": "2025-06-15T13:00:00-07:00"}
				},
				{
					"id": "evt-2",
					"status": "cancelled",
					"summary": "Old meeting",
					"start": {"dateTime": "2025-06-15T15:00:00-07:00"},
					"end": {"dateTime": "2025-06-15T16:00:00-07:00"}
				},
				{
					"id": "evt-3",
					"status": "confirmed",
					"start": {"date": "2025-06-15"},
					"end": {"date": "2025-06-16"}
				}
			]
		}`))
	}))
	defer srv.Close()

	svc := NewService("access-abc", WithBaseURL(srv.URL))
	events, err := svc.EventsForDate(context.Background(), testDay(t))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "Lunch with Grace", events[0].Title)
	assert.Equal(t, "2025-06-15T12:00:00-07:00", events[0].StartTime)
	assert.Equal(t, "Blue Bottle, Oakland", events[0].Location)
	assert.False(t, events[0].AllDay)

	// Untitled all-day event with the cancelled one dropped.
	assert.Equal(t, "evt-3", events[1].ID)
	assert.Equal(t, UntitledEvent, events[1].Title)
	assert.Equal(t, "2025-06-15", events[1].StartTime)
	assert.Equal(t, "2025-06-16", events[1].EndTime)
	assert.True(t, events[1].AllDay)
}

func TestEventsForDateEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	svc := NewService("access-abc", WithBaseURL(srv.URL))
	events, err := svc.EventsForDate(context.Background(), testDay(t))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventsForDateExpiredToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewService("stale", WithBaseURL(srv.URL))
	_, err := svc.EventsForDate(context.Background(), testDay(t))
	require.Error(t, err)
	assert.True(t, errors.IsExternalService(err))
	assert.ErrorContains(t, err, "access token expired")
}

func TestEventsForDateServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService("access-abc", WithBaseURL(srv.URL))
	_, err := svc.EventsForDate(context.Background(), testDay(t))
	require.Error(t, err)
	assert.True(t, errors.IsExternalService(err))
}

func TestTransformEvent(t *testing.T) {
	t.Parallel()

	_, ok := transformEvent(eventItem{ID: "x", Status: "cancelled"})
	assert.False(t, ok)

	event, ok := transformEvent(eventItem{
		ID:    "y",
		Start: eventTime{DateTime: "2025-06-15T09:00:00Z"},
		End:   eventTime{DateTime: "2025-06-15T10:00:00Z"},
	})
	require.True(t, ok)
	assert.Equal(t, UntitledEvent, event.Title)
	assert.False(t, event.AllDay)
}
