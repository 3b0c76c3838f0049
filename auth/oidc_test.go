// Copyright 2023 StreamNative, Inc.
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

package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oauth2-proxy/mockoidc"
	"github.com/stretchr/testify/assert"
)

func newOIDCPolicy(t *testing.T, issueURL string, audiences string) CachePolicy {
	t.Helper()
	jsonParams, err := json.Marshal(OIDCOptions{
		AllowedIssueURLs: issueURL,
		AllowedAudiences: audiences,
	})
	assert.NoError(t, err)
	policy, err := NewOIDCPolicy(context.Background(), string(jsonParams))
	assert.NoError(t, err)
	return policy
}

func signClaims(t *testing.T, mockOIDC *mockoidc.MockOIDC, claims jwt.MapClaims) string {
	t.Helper()
	signedToken, err := mockOIDC.Keypair.SignJWT(claims)
	assert.NoError(t, err)
	return signedToken
}

func TestOIDCPolicy(t *testing.T) {
	mockOIDC, err := mockoidc.Run()
	assert.NoError(t, err)
	defer func(mockOIDC *mockoidc.MockOIDC) {
		_ = mockOIDC.Shutdown()
	}(mockOIDC)

	audience := generateRandomStr(t)
	otherAudience := generateRandomStr(t)
	subject := generateRandomStr(t)

	policy := newOIDCPolicy(t, mockOIDC.Issuer(), audience)
	ctx := context.Background()

	baseClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss": mockOIDC.Issuer(),
			"sub": subject,
			"aud": []string{audience, otherAudience},
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Unix(),
			"jti": generateRandomStr(t),
		}
	}

	// empty identity
	_, err = policy.CanCacheAllEntries(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyIdentity)

	// malformed token
	_, err = policy.CanCacheAllEntries(ctx, "wrongToken")
	assert.ErrorIs(t, err, ErrMalformedToken)

	// unknown issuer
	unknownIssuer := baseClaims()
	unknownIssuer["iss"] = "http://127.0.0.1:1/unknown"
	_, err = policy.CanCacheAllEntries(ctx, signClaims(t, mockOIDC, unknownIssuer))
	assert.ErrorIs(t, err, ErrUnknownIssuer)

	// tampered token fails signature verification
	claims := baseClaims()
	claims[DefaultCacheAllClaim] = true
	signedToken := signClaims(t, mockOIDC, claims)
	_, err = policy.CanCacheAllEntries(ctx, signedToken[:len(signedToken)-5])
	assert.Error(t, err)

	// expired token
	expired := baseClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	expired[DefaultCacheAllClaim] = true
	_, err = policy.CanCacheAllEntries(ctx, signClaims(t, mockOIDC, expired))
	assert.Error(t, err)

	// forbidden audience
	forbidden := baseClaims()
	forbidden["aud"] = []string{otherAudience}
	forbidden[DefaultCacheAllClaim] = true
	_, err = policy.CanCacheAllEntries(ctx, signClaims(t, mockOIDC, forbidden))
	assert.ErrorIs(t, err, ErrForbiddenAudience)

	// claim absent means no caching, but no error
	allowed, err := policy.CanCacheAllEntries(ctx, signClaims(t, mockOIDC, baseClaims()))
	assert.NoError(t, err)
	assert.False(t, allowed)

	// claim set to false
	denied := baseClaims()
	denied[DefaultCacheAllClaim] = false
	allowed, err = policy.CanCacheAllEntries(ctx, signClaims(t, mockOIDC, denied))
	assert.NoError(t, err)
	assert.False(t, allowed)

	// claim set to true
	allowed, err = policy.CanCacheAllEntries(ctx, signedToken)
	assert.NoError(t, err)
	assert.True(t, allowed)
}

func TestOIDCPolicyValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewOIDCPolicy(ctx, `{}`)
	assert.ErrorIs(t, err, ErrEmptyIssueURL)

	_, err = NewOIDCPolicy(ctx, `{"allowedIssueURLs":"http://127.0.0.1:1/oidc"}`)
	assert.ErrorIs(t, err, ErrEmptyAllowedAudiences)

	_, err = NewOIDCPolicy(ctx, `not json`)
	assert.Error(t, err)
}

func generateRandomStr(t *testing.T) string {
	t.Helper()
	random, err := uuid.NewRandom()
	assert.NoError(t, err)
	return random.String()
}
