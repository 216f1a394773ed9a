// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package maps wraps the Google Maps geocoding and place-search APIs,
// backed by a persistent place cache.
package maps

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/logger"
	"github.com/stacklok/wayfinder/pkg/storage"
)

// Google Maps API endpoints.
const (
	DefaultGeocodeURL     = "https://maps.googleapis.com/maps/api/geocode/json"
	DefaultPlaceSearchURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"
)

// ServiceName identifies this API in external-service errors.
const ServiceName = "Google Maps"

// searchRadiusMeters bounds a located text search.
const searchRadiusMeters = 50000

// maxSearchResults caps one search response.
const maxSearchResults = 10

const defaultTimeout = 30 * time.Second

const maxResponseSize = 1 << 20 // 1 MiB

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	Location         Location `json:"location"`
	FormattedAddress string   `json:"formatted_address"`
	PlaceID          string   `json:"place_id"`
}

// PlaceResult is a resolved place.
type PlaceResult struct {
	PlaceID  string   `json:"place_id"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Location Location `json:"location"`
	Types    []string `json:"types"`
}

// Service performs Maps API calls and caches resolved places.
type Service struct {
	apiKey         string
	geocodeURL     string
	placeSearchURL string
	httpClient     *http.Client
	places         storage.PlaceStore
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithGeocodeURL overrides the geocoding endpoint, used by tests.
func WithGeocodeURL(u string) Option {
	return func(s *Service) {
		s.geocodeURL = u
	}
}

// WithPlaceSearchURL overrides the text-search endpoint, used by tests.
func WithPlaceSearchURL(u string) Option {
	return func(s *Service) {
		s.placeSearchURL = u
	}
}

// NewService creates a maps service. places may be nil to disable caching.
func NewService(apiKey string, places storage.PlaceStore, opts ...Option) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("maps API key is required")
	}
	s := &Service{
		apiKey:         apiKey,
		geocodeURL:     DefaultGeocodeURL,
		placeSearchURL: DefaultPlaceSearchURL,
		httpClient:     &http.Client{Timeout: defaultTimeout},
		places:         places,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// geocodeResponse is the shared geocoding API response shape.
type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID           string   `json:"place_id"`
		FormattedAddress  string   `json:"formatted_address"`
		Types             []string `json:"types"`
		AddressComponents []struct {
			LongName string `json:"long_name"`
		} `json:"address_components"`
		Geometry struct {
			Location Location `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address to coordinates. ZERO_RESULTS maps to a
// not-found error.
func (s *Service) Geocode(ctx context.Context, address string) (*GeocodeResult, error) {
	if address == "" {
		return nil, errors.NewValidationError("address is required", nil)
	}

	params := url.Values{
		"address": {address},
		"key":     {s.apiKey},
	}

	var data geocodeResponse
	if err := s.getJSON(ctx, s.geocodeURL, params, "geocoding request failed", &data); err != nil {
		return nil, err
	}

	if data.Status != "OK" {
		if data.Status == "ZERO_RESULTS" {
			return nil, errors.NewNotFoundError("Address", address)
		}
		return nil, errors.NewExternalServiceError(ServiceName,
			fmt.Sprintf("geocoding error: %s", data.Status), nil)
	}
	if len(data.Results) == 0 {
		return nil, errors.NewExternalServiceError(ServiceName,
			"geocoding returned status OK with no results", nil)
	}

	result := data.Results[0]
	return &GeocodeResult{
		Location:         result.Geometry.Location,
		FormattedAddress: result.FormattedAddress,
		PlaceID:          result.PlaceID,
	}, nil
}

// ReverseGeocode resolves coordinates to a place. The result is cached
// best-effort; cache write failures are logged and ignored.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lng float64) (*PlaceResult, error) {
	params := url.Values{
		"latlng": {fmt.Sprintf("%v,%v", lat, lng)},
		"key":    {s.apiKey},
	}

	var data geocodeResponse
	if err := s.getJSON(ctx, s.geocodeURL, params, "reverse geocoding request failed", &data); err != nil {
		return nil, err
	}

	if data.Status != "OK" {
		if data.Status == "ZERO_RESULTS" {
			return nil, errors.NewNotFoundError("Location", fmt.Sprintf("%v,%v", lat, lng))
		}
		return nil, errors.NewExternalServiceError(ServiceName,
			fmt.Sprintf("reverse geocoding error: %s", data.Status), nil)
	}
	if len(data.Results) == 0 {
		return nil, errors.NewExternalServiceError(ServiceName,
			"reverse geocoding returned status OK with no results", nil)
	}

	result := data.Results[0]
	name := result.FormattedAddress
	if len(result.AddressComponents) > 0 && result.AddressComponents[0].LongName != "" {
		name = result.AddressComponents[0].LongName
	}

	place := &PlaceResult{
		PlaceID:  result.PlaceID,
		Name:     name,
		Address:  result.FormattedAddress,
		Location: Location{Lat: lat, Lng: lng},
		Types:    result.Types,
	}
	s.cachePlace(ctx, place)
	return place, nil
}

// searchResponse is the text-search API response shape.
type searchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID          string   `json:"place_id"`
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		Types            []string `json:"types"`
		Geometry         struct {
			Location Location `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// SearchPlaces runs a text search. location, when non-empty, is a "lat,lng"
// center and bounds the search to a 50 km radius. An empty result set is
// not an error.
func (s *Service) SearchPlaces(ctx context.Context, query, location string) ([]PlaceResult, error) {
	if query == "" {
		return nil, errors.NewValidationError("search query is required", nil)
	}

	params := url.Values{
		"query": {query},
		"key":   {s.apiKey},
	}
	if location != "" {
		params.Set("location", location)
		params.Set("radius", fmt.Sprintf("%d", searchRadiusMeters))
	}

	var data searchResponse
	if err := s.getJSON(ctx, s.placeSearchURL, params, "place search request failed", &data); err != nil {
		return nil, err
	}

	if data.Status != "OK" && data.Status != "ZERO_RESULTS" {
		return nil, errors.NewExternalServiceError(ServiceName,
			fmt.Sprintf("place search error: %s", data.Status), nil)
	}

	results := data.Results
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	places := make([]PlaceResult, 0, len(results))
	for _, r := range results {
		place := PlaceResult{
			PlaceID:  r.PlaceID,
			Name:     r.Name,
			Address:  r.FormattedAddress,
			Location: r.Geometry.Location,
			Types:    r.Types,
		}
		s.cachePlace(ctx, &place)
		places = append(places, place)
	}

	return places, nil
}

// CachedPlace returns a previously resolved place from the cache, or
// ok=false when absent or expired.
func (s *Service) CachedPlace(ctx context.Context, placeID string) (*PlaceResult, bool, error) {
	if s.places == nil {
		return nil, false, nil
	}

	place, err := s.places.Get(ctx, placeID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.NewInternalError("failed to read place cache", err)
	}

	return &PlaceResult{
		PlaceID:  place.PlaceID,
		Name:     place.Name,
		Address:  place.Address,
		Location: Location{Lat: place.Lat, Lng: place.Lng},
		Types:    place.Types,
	}, true, nil
}

func (s *Service) cachePlace(ctx context.Context, place *PlaceResult) {
	if s.places == nil || place.PlaceID == "" {
		return
	}
	err := s.places.Put(ctx, &storage.Place{
		PlaceID: place.PlaceID,
		Name:    place.Name,
		Address: place.Address,
		Lat:     place.Location.Lat,
		Lng:     place.Location.Lng,
		Types:   place.Types,
	})
	if err != nil {
		logger.Warnw("failed to cache place",
			"place_id", place.PlaceID,
			"error", err,
		)
	}
}

// getJSON performs a GET with query params and decodes the JSON body.
func (s *Service) getJSON(ctx context.Context, endpoint string, params url.Values, failureMsg string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return errors.NewInternalError("failed to create maps request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.NewExternalServiceError(ServiceName, failureMsg, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errors.NewExternalServiceError(ServiceName, failureMsg, err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warnw("maps request failed",
			"status", resp.StatusCode,
		)
		return errors.NewExternalServiceError(ServiceName, failureMsg, nil)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return errors.NewExternalServiceError(ServiceName, "invalid maps response", err)
	}
	return nil
}
