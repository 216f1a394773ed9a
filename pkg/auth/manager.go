// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the OAuth session manager: login initiation,
// callback handling, session-bound access token resolution with transparent
// refresh, and logout.
package auth

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stacklok/wayfinder/pkg/auth/crypto"
	"github.com/stacklok/wayfinder/pkg/auth/google"
	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/logger"
	"github.com/stacklok/wayfinder/pkg/sessions"
	"github.com/stacklok/wayfinder/pkg/storage"
)

// RefreshWindow is how close to expiry an access token must be before
// resolution attempts a refresh instead of returning it as-is.
const RefreshWindow = 5 * time.Minute

// Manager coordinates the OAuth login flow and the session-bound token
// lifecycle. It is safe for concurrent use; the only mutable state is the
// single-flight group bounding duplicate refreshes per session.
type Manager struct {
	store    sessions.Store
	users    storage.UserStore
	provider google.Provider

	refreshGroup singleflight.Group
}

// NewManager creates a session manager. All three collaborators are
// required.
func NewManager(store sessions.Store, users storage.UserStore, provider google.Provider) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	return &Manager{
		store:    store,
		users:    users,
		provider: provider,
	}, nil
}

// InitiateLogin starts a login attempt: it mints a state token and a PKCE
// verifier, persists the verifier under the state token, and returns the
// provider authorization URL to redirect the user-agent to.
func (m *Manager) InitiateLogin(ctx context.Context) (authURL, state string, err error) {
	state, err = crypto.GenerateState()
	if err != nil {
		return "", "", errors.NewInternalError("failed to generate OAuth state", err)
	}

	verifier := crypto.GeneratePKCEVerifier()

	login := sessions.LoginState{Verifier: verifier}
	if err := m.store.Set(ctx, sessions.StateKey(state), login, sessions.StateTTL); err != nil {
		return "", "", errors.NewInternalError("failed to persist OAuth state", err)
	}

	authURL = m.provider.AuthorizationURL(state, crypto.ComputePKCEChallenge(verifier))

	logger.Infow("OAuth login initiated", "state", state)
	return authURL, state, nil
}

// HandleCallback completes a login attempt. The state token must match a
// pending login; it is consumed before the code exchange, so a replayed
// callback fails regardless of how the first attempt ended.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (*storage.User, string, error) {
	if code == "" {
		return nil, "", errors.NewValidationError("authorization code is required", nil)
	}
	if state == "" {
		return nil, "", errors.NewAuthenticationError("invalid or expired OAuth state")
	}

	var login sessions.LoginState
	found, err := m.store.Get(ctx, sessions.StateKey(state), &login)
	if err != nil {
		return nil, "", errors.NewInternalError("failed to look up OAuth state", err)
	}
	if !found {
		logger.Warnw("OAuth callback with unknown state", "state", state)
		return nil, "", errors.NewAuthenticationError("invalid or expired OAuth state")
	}

	// Consume the state before talking to the provider so it cannot be
	// replayed even if the exchange below fails.
	if err := m.store.Delete(ctx, sessions.StateKey(state)); err != nil {
		return nil, "", errors.NewInternalError("failed to consume OAuth state", err)
	}

	tokens, err := m.provider.ExchangeCode(ctx, code, login.Verifier)
	if err != nil {
		return nil, "", err
	}

	info, err := m.provider.UserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, "", err
	}

	user, err := m.users.FindOrCreate(ctx,
		storage.UserProfile{
			GoogleID:   info.Subject,
			Email:      info.Email,
			Name:       info.Name,
			PictureURL: info.Picture,
		},
		storage.Credential{
			RefreshToken: tokens.RefreshToken,
			ExpiresAt:    tokens.ExpiresAt,
		},
	)
	if err != nil {
		return nil, "", errors.NewInternalError("failed to persist user", err)
	}

	sessionID, err := crypto.GenerateSessionID()
	if err != nil {
		return nil, "", errors.NewInternalError("failed to generate session id", err)
	}

	session := sessions.Session{
		UserID:      user.ID,
		AccessToken: tokens.AccessToken,
		TokenType:   tokens.TokenType,
		ExpiresAt:   tokens.ExpiresAt,
	}
	if err := m.store.Set(ctx, sessionID, session, sessions.SessionTTL); err != nil {
		return nil, "", errors.NewInternalError("failed to persist session", err)
	}

	logger.Infow("OAuth login completed",
		"user_id", user.ID,
		"has_refresh_token", tokens.RefreshToken != "",
	)

	return user, sessionID, nil
}

// ResolveAccessToken returns a usable access token for the session, or
// ok=false when the session is absent or cannot be made usable. A token
// within RefreshWindow of expiry is refreshed first; refresh failures map
// to absence rather than an error, leaving the session untouched so a later
// attempt can retry. Store I/O failures still surface as errors.
func (m *Manager) ResolveAccessToken(ctx context.Context, sessionID string) (string, bool, error) {
	if sessionID == "" {
		return "", false, nil
	}

	var session sessions.Session
	found, err := m.store.Get(ctx, sessionID, &session)
	if err != nil {
		return "", false, errors.NewInternalError("failed to look up session", err)
	}
	if !found || session.UserID == "" {
		return "", false, nil
	}

	if time.Until(session.ExpiresAt) > RefreshWindow {
		return session.AccessToken, true, nil
	}

	// Concurrent resolutions of the same near-expiry session share one
	// refresh; followers get the leader's result. The refresh runs on a
	// context detached from the leader's, so a cancelled leader request
	// cannot fail the followers queued behind it.
	res, err, _ := m.refreshGroup.Do(sessionID, func() (any, error) {
		return m.refreshSession(context.WithoutCancel(ctx), sessionID)
	})
	if err != nil {
		return "", false, err
	}

	token, ok := res.(string)
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// refreshSession attempts to replace a near-expiry session token via the
// provider. It returns the new access token, or "" when the session should
// be treated as absent.
func (m *Manager) refreshSession(ctx context.Context, sessionID string) (string, error) {
	// Re-read inside the flight: a follower that queued behind the leader
	// sees the already-refreshed session here.
	var session sessions.Session
	found, err := m.store.Get(ctx, sessionID, &session)
	if err != nil {
		return "", errors.NewInternalError("failed to look up session", err)
	}
	if !found || session.UserID == "" {
		return "", nil
	}
	if time.Until(session.ExpiresAt) > RefreshWindow {
		return session.AccessToken, nil
	}

	user, err := m.users.FindByID(ctx, session.UserID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			logger.Warnw("session references unknown user", "user_id", session.UserID)
			return "", nil
		}
		return "", errors.NewInternalError("failed to look up user", err)
	}
	if user.RefreshToken == "" {
		logger.Debugw("no refresh credential for user, session unusable", "user_id", user.ID)
		return "", nil
	}

	tokens, err := m.provider.Refresh(ctx, user.RefreshToken)
	if err != nil {
		// Revoked or otherwise unusable credential. The session is left
		// as-is; the caller sees an absent session and re-authenticates.
		logger.Warnw("token refresh failed",
			"user_id", user.ID,
			"error", err,
		)
		return "", nil
	}

	session.AccessToken = tokens.AccessToken
	if tokens.TokenType != "" {
		session.TokenType = tokens.TokenType
	}
	session.ExpiresAt = tokens.ExpiresAt
	if err := m.store.Set(ctx, sessionID, session, sessions.SessionTTL); err != nil {
		return "", errors.NewInternalError("failed to persist refreshed session", err)
	}

	cred := storage.Credential{
		RefreshToken: user.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
	if tokens.RefreshToken != "" {
		cred.RefreshToken = tokens.RefreshToken
	}
	if err := m.users.UpdateCredential(ctx, user.ID, cred); err != nil {
		// The session already carries the fresh token; a stale credential
		// row only affects the recorded expiry.
		logger.Warnw("failed to update stored credential",
			"user_id", user.ID,
			"error", err,
		)
	}

	logger.Infow("access token refreshed",
		"user_id", user.ID,
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
	)

	return tokens.AccessToken, nil
}

// CurrentUser returns the user bound to the session. It performs no token
// refresh; an absent session is an authentication failure.
func (m *Manager) CurrentUser(ctx context.Context, sessionID string) (*storage.User, error) {
	userID, err := m.CurrentUserID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewAuthenticationError("not authenticated")
		}
		return nil, errors.NewInternalError("failed to look up user", err)
	}
	return user, nil
}

// CurrentUserID returns the user id bound to the session without touching
// the user store or the provider.
func (m *Manager) CurrentUserID(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.NewAuthenticationError("not authenticated")
	}

	var session sessions.Session
	found, err := m.store.Get(ctx, sessionID, &session)
	if err != nil {
		return "", errors.NewInternalError("failed to look up session", err)
	}
	if !found || session.UserID == "" {
		return "", errors.NewAuthenticationError("not authenticated")
	}
	return session.UserID, nil
}

// Logout deletes the session. Deleting an absent session is not an error.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return errors.NewInternalError("failed to delete session", err)
	}
	logger.Infow("session logged out")
	return nil
}
