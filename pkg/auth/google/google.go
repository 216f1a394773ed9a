// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package google implements the OAuth 2.0 client for the Google identity
// provider: authorization URL construction, authorization-code exchange,
// token refresh, and the userinfo lookup.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/wayfinder/pkg/auth/crypto"
	"github.com/stacklok/wayfinder/pkg/errors"
	"github.com/stacklok/wayfinder/pkg/logger"
)

// Google OAuth endpoints.
const (
	DefaultAuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenEndpoint    = "https://oauth2.googleapis.com/token"
	DefaultUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// ServiceName identifies this provider in external-service errors.
const ServiceName = "Google OAuth"

// defaultTimeout bounds every outbound provider call.
const defaultTimeout = 30 * time.Second

// maxResponseSize caps provider response bodies.
const maxResponseSize = 1 << 20 // 1 MiB

// defaultExpirySeconds is assumed when the token response omits expires_in.
const defaultExpirySeconds = 3600

// DefaultScopes are the scopes requested on every login: identity, email,
// profile, and read access to the user's calendar.
var DefaultScopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// Tokens represents the tokens obtained from the provider's token endpoint.
type Tokens struct {
	// AccessToken is the short-lived bearer token.
	AccessToken string

	// RefreshToken is the long-lived credential (if provided).
	RefreshToken string

	// TokenType is the token kind label, normally "Bearer".
	TokenType string

	// ExpiresAt is when the access token expires, computed from expires_in.
	ExpiresAt time.Time
}

// UserInfo contains the profile returned by the userinfo endpoint.
type UserInfo struct {
	// Subject is the unique identifier for the user (sub claim).
	Subject string `json:"sub"`

	// Email is the user's email address.
	Email string `json:"email"`

	// Name is the user's full name.
	Name string `json:"name"`

	// Picture is the user's profile picture URL.
	Picture string `json:"picture"`
}

// Provider handles communication with the Google identity provider.
type Provider interface {
	// AuthorizationURL builds the URL to redirect the user-agent to.
	// state correlates the callback; challenge is the PKCE S256 challenge.
	AuthorizationURL(state, challenge string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error)

	// Refresh obtains a new access token from a refresh credential.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)

	// UserInfo fetches the user's profile with a bearer access token.
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// Config holds the OAuth client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Scopes defaults to DefaultScopes when empty.
	Scopes []string

	// Endpoint overrides, used by tests. Empty values select the live
	// Google endpoints.
	AuthEndpoint     string
	TokenEndpoint    string
	UserInfoEndpoint string
}

// Validate checks that the config carries the required fields.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("redirect URI is required")
	}
	return nil
}

// OAuthProvider is the concrete Provider backed by net/http.
type OAuthProvider struct {
	config     *Config
	httpClient *http.Client
}

var _ Provider = (*OAuthProvider)(nil)

// Option configures an OAuthProvider.
type Option func(*OAuthProvider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *OAuthProvider) {
		p.httpClient = client
	}
}

// NewProvider creates a Google OAuth provider.
func NewProvider(config *Config, opts ...Option) (*OAuthProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if len(config.Scopes) == 0 {
		config.Scopes = DefaultScopes
	}
	if config.AuthEndpoint == "" {
		config.AuthEndpoint = DefaultAuthEndpoint
	}
	if config.TokenEndpoint == "" {
		config.TokenEndpoint = DefaultTokenEndpoint
	}
	if config.UserInfoEndpoint == "" {
		config.UserInfoEndpoint = DefaultUserInfoEndpoint
	}

	p := &OAuthProvider{
		config:     config,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// AuthorizationURL builds the provider authorization URL. Offline access
// with forced re-consent guarantees a refresh credential is issued on every
// login, not only the first.
func (p *OAuthProvider) AuthorizationURL(state, challenge string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(p.config.Scopes, " ")},
		"state":         {state},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	if challenge != "" {
		params.Set("code_challenge", challenge)
		params.Set("code_challenge_method", crypto.PKCEChallengeMethodS256)
	}
	return p.config.AuthEndpoint + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error) {
	if code == "" {
		return nil, errors.NewValidationError("authorization code is required", nil)
	}

	logger.Debugw("exchanging authorization code for tokens",
		"token_endpoint", p.config.TokenEndpoint,
		"has_pkce_verifier", verifier != "",
	)

	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURI},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
	}
	if verifier != "" {
		params.Set("code_verifier", verifier)
	}

	tokens, err := p.tokenRequest(ctx, params, "code exchange failed")
	if err != nil {
		return nil, err
	}

	logger.Infow("authorization code exchange successful",
		"has_refresh_token", tokens.RefreshToken != "",
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
	)

	return tokens, nil
}

// Refresh obtains a new access token using the stored refresh credential.
func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, errors.NewValidationError("refresh token is required", nil)
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
	}

	tokens, err := p.tokenRequest(ctx, params, "token refresh failed")
	if err != nil {
		return nil, err
	}

	logger.Debugw("token refresh successful",
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
	)

	return tokens, nil
}

// UserInfo fetches the user's profile from the userinfo endpoint.
func (p *OAuthProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoEndpoint, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to create userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "user info failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "user info failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warnw("userinfo request rejected",
			"status", resp.StatusCode,
		)
		return nil, errors.NewExternalServiceError(ServiceName, "user info failed", nil)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "invalid user info response", err)
	}
	if info.Subject == "" {
		return nil, errors.NewExternalServiceError(ServiceName, "user info missing subject", nil)
	}
	return &info, nil
}

// tokenRequest performs a form-encoded POST against the token endpoint.
func (p *OAuthProvider) tokenRequest(ctx context.Context, params url.Values, failureMsg string) (*Tokens, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.config.TokenEndpoint,
		strings.NewReader(params.Encode()),
	)
	if err != nil {
		return nil, errors.NewInternalError("failed to create token request", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, failureMsg, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, failureMsg, err)
	}

	return parseTokenResponse(body, resp.StatusCode, failureMsg)
}

// tokenResponse is the JSON shape of the token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func parseTokenResponse(body []byte, statusCode int, failureMsg string) (*Tokens, error) {
	if statusCode != http.StatusOK {
		logger.Warnw("token request rejected",
			"status", statusCode,
		)
		return nil, errors.NewExternalServiceError(ServiceName, failureMsg, nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.NewExternalServiceError(ServiceName, "invalid token response", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.NewExternalServiceError(ServiceName, "token response missing access token", nil)
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpirySeconds
	}
	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
