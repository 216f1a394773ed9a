// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/wayfinder/pkg/api/errors"
	"github.com/stacklok/wayfinder/pkg/auth"
	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/maps"
)

// PlacesRouter sets up the geocoding and place-search routes. All routes
// require an authenticated session.
func PlacesRouter(manager *auth.Manager, service *maps.Service) http.Handler {
	routes := &placesRoutes{manager: manager, service: service}
	r := chi.NewRouter()
	r.Get("/search", apierrors.ErrorHandler(routes.searchPlaces))
	r.Get("/geocode", apierrors.ErrorHandler(routes.geocode))
	r.Get("/reverse-geocode", apierrors.ErrorHandler(routes.reverseGeocode))
	return r
}

type placesRoutes struct {
	manager *auth.Manager
	service *maps.Service
}

// PlacesSearchResponse is the place search envelope.
type PlacesSearchResponse struct {
	Places []maps.PlaceResult `json:"places"`
}

// requireSession rejects unauthenticated requests. Places routes spend the
// server's API quota, not the user's token, so only session presence is
// checked.
func (p *placesRoutes) requireSession(r *http.Request) error {
	_, err := p.manager.CurrentUserID(r.Context(), sessionIDFromRequest(r))
	return err
}

func (p *placesRoutes) searchPlaces(w http.ResponseWriter, r *http.Request) error {
	if err := p.requireSession(r); err != nil {
		return err
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		return errors.NewValidationError("q query parameter is required", nil)
	}
	location := r.URL.Query().Get("location")

	places, err := p.service.SearchPlaces(r.Context(), query, location)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(PlacesSearchResponse{Places: places})
}

func (p *placesRoutes) geocode(w http.ResponseWriter, r *http.Request) error {
	if err := p.requireSession(r); err != nil {
		return err
	}

	address := r.URL.Query().Get("address")
	if address == "" {
		return errors.NewValidationError("address query parameter is required", nil)
	}

	result, err := p.service.Geocode(r.Context(), address)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

func (p *placesRoutes) reverseGeocode(w http.ResponseWriter, r *http.Request) error {
	if err := p.requireSession(r); err != nil {
		return err
	}

	lat, err := parseCoordinate(r.URL.Query().Get("lat"), "lat")
	if err != nil {
		return err
	}
	lng, err := parseCoordinate(r.URL.Query().Get("lng"), "lng")
	if err != nil {
		return err
	}

	place, err := p.service.ReverseGeocode(r.Context(), lat, lng)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(place)
}

func parseCoordinate(raw, name string) (float64, error) {
	if raw == "" {
		return 0, errors.NewValidationError(name+" query parameter is required", nil)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.NewValidationError(name+" must be a number", map[string]any{
			name: raw,
		})
	}
	return value, nil
}
