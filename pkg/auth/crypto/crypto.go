// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides the random identifiers and PKCE helpers used by
// the OAuth login flow and session issuance.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCEChallengeMethodS256 is the PKCE challenge method using SHA-256 (RFC 7636).
const PKCEChallengeMethodS256 = "S256"

// tokenBytes is the entropy of state tokens and session identifiers.
// 32 bytes gives a 43-character base64url string, enough that collisions
// are negligible for the lifetime of the process.
const tokenBytes = 32

// GenerateToken returns a URL-safe, cryptographically random string built
// from n random bytes. An entropy source failure is returned as an error;
// callers treat it as fatal since nothing secure can be issued without it.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateState generates a random state token for OAuth callback correlation.
func GenerateState() (string, error) {
	return GenerateToken(tokenBytes)
}

// GenerateSessionID generates an opaque session identifier. It is unrelated
// to any user identifier and safe to hand to a browser cookie.
func GenerateSessionID() (string, error) {
	return GenerateToken(tokenBytes)
}

// GeneratePKCEVerifier generates a cryptographically random code_verifier
// per RFC 7636 Section 4.1.
//
// This function delegates to oauth2.GenerateVerifier() from golang.org/x/oauth2.
// It will panic on crypto/rand read failure (which is appropriate for this case).
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge computes the code_challenge from a code_verifier
// using the S256 method per RFC 7636 Section 4.2.
// code_challenge = BASE64URL(SHA256(code_verifier))
//
// This function delegates to oauth2.S256ChallengeFromVerifier() from golang.org/x/oauth2.
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
