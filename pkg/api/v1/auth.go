// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the v1 API routes.
package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/wayfinder/pkg/api/errors"
	"github.com/stacklok/wayfinder/pkg/auth"
	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/sessions"
)

// SessionCookieName is the cookie carrying the opaque session id.
const SessionCookieName = "session_id"

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	// Secure marks the cookie Secure; some local setups need it off.
	Secure bool
}

// AuthRouter sets up the authentication routes.
func AuthRouter(manager *auth.Manager, frontendURL string, cookies CookieConfig) http.Handler {
	routes := &authRoutes{
		manager:     manager,
		frontendURL: frontendURL,
		cookies:     cookies,
	}
	r := chi.NewRouter()
	r.Get("/google/login", apierrors.ErrorHandler(routes.googleLogin))
	r.Get("/google/callback", apierrors.ErrorHandler(routes.googleCallback))
	r.Get("/me", apierrors.ErrorHandler(routes.getCurrentUser))
	r.Post("/logout", apierrors.ErrorHandler(routes.logout))
	return r
}

type authRoutes struct {
	manager     *auth.Manager
	frontendURL string
	cookies     CookieConfig
}

// UserResponse is the public user representation.
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	PictureURL string `json:"picture_url"`
}

// googleLogin redirects the user-agent to the provider's consent screen.
func (a *authRoutes) googleLogin(w http.ResponseWriter, r *http.Request) error {
	authURL, _, err := a.manager.InitiateLogin(r.Context())
	if err != nil {
		return err
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// googleCallback completes the login and hands the user-agent back to the
// frontend with the session cookie set.
func (a *authRoutes) googleCallback(w http.ResponseWriter, r *http.Request) error {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	_, sessionID, err := a.manager.HandleCallback(r.Context(), code, state)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessions.SessionTTL / time.Second),
	})
	http.Redirect(w, r, a.frontendURL, http.StatusFound)
	return nil
}

// getCurrentUser returns the authenticated user's profile.
func (a *authRoutes) getCurrentUser(w http.ResponseWriter, r *http.Request) error {
	user, err := a.manager.CurrentUser(r.Context(), sessionIDFromRequest(r))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		PictureURL: user.PictureURL,
	})
}

// logout deletes the session and clears the cookie. Logging out without a
// session is a no-op.
func (a *authRoutes) logout(w http.ResponseWriter, r *http.Request) error {
	if err := a.manager.Logout(r.Context(), sessionIDFromRequest(r)); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// sessionIDFromRequest reads the session cookie; "" when absent.
func sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// resolveAccessToken is the shared guard for routes that call provider APIs
// on the user's behalf.
func resolveAccessToken(r *http.Request, manager *auth.Manager) (string, error) {
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		return "", errors.NewAuthenticationError("no session cookie found")
	}

	token, ok, err := manager.ResolveAccessToken(r.Context(), sessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.NewAuthenticationError("invalid or expired session")
	}
	return token, nil
}
