// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(32)
	require.NoError(t, err)

	// 32 bytes base64url-encoded without padding is 43 characters.
	assert.Len(t, tok, 43)
	assert.NotContains(t, tok, "=")
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
}

func TestGenerateTokenUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		tok, err := GenerateState()
		require.NoError(t, err)
		require.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestComputePKCEChallengeDeterministic(t *testing.T) {
	t.Parallel()

	// Fixed vectors: BASE64URL(SHA256(verifier)) without padding.
	assert.Equal(t, "ktZu5ELbnUnx97HKaZsNZbfVaXdT1D2IdagpxxtQEI0", ComputePKCEChallenge("test_verifier_string"))
	assert.Equal(t, "rkSKyGxOjk3sZFcpcI70GHOuecbf-E7_czYJiUh_COU", ComputePKCEChallenge("another"))
}

func TestGeneratePKCEVerifierAlphabet(t *testing.T) {
	t.Parallel()

	verifier := GeneratePKCEVerifier()
	require.NotEmpty(t, verifier)

	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for _, r := range verifier {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q in verifier", r)
	}

	challenge := ComputePKCEChallenge(verifier)
	assert.NotContains(t, challenge, "=")
	assert.Equal(t, challenge, ComputePKCEChallenge(verifier))
}
