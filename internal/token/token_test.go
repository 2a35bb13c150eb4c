// Copyright 2026 The Marketbase Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	issuer := NewIssuer("test-secret-at-least-32-bytes-long!", "marketbase", time.Hour)

	signed, expiresAt, err := issuer.IssueAccessToken("u1", "ada@example.com", "t1", "workspace_admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.VerifyAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, "workspace_admin", claims.Role)
	assert.WithinDuration(t, expiresAt, claims.Expiry, time.Second)
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	issuer := NewIssuer("correct-secret-0000000000000000000", "marketbase", time.Hour)
	other := NewIssuer("attacker-secret-000000000000000000", "marketbase", time.Hour)

	signed, _, err := other.IssueAccessToken("u1", "a@b.c", "t1", "")
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	issuer := NewIssuer("test-secret-at-least-32-bytes-long!", "marketbase", -time.Minute)

	signed, _, err := issuer.IssueAccessToken("u1", "a@b.c", "t1", "")
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyAccessToken_WrongIssuer(t *testing.T) {
	mine := NewIssuer("test-secret-at-least-32-bytes-long!", "marketbase", time.Hour)
	theirs := NewIssuer("test-secret-at-least-32-bytes-long!", "someone-else", time.Hour)

	signed, _, err := theirs.IssueAccessToken("u1", "a@b.c", "t1", "")
	require.NoError(t, err)

	_, err = mine.VerifyAccessToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccessToken_RejectsNoneAlgorithm(t *testing.T) {
	issuer := NewIssuer("test-secret-at-least-32-bytes-long!", "marketbase", time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "marketbase",
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.VerifyAccessToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenHashing(t *testing.T) {
	a := GenerateRefreshToken()
	b := GenerateRefreshToken()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)

	assert.Equal(t, HashRefreshToken(a), HashRefreshToken(a))
	assert.NotEqual(t, HashRefreshToken(a), HashRefreshToken(b))
	assert.NotEqual(t, a, HashRefreshToken(a), "tokens must never be stored raw")
}
