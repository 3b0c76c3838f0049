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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

const (
	DefaultCacheAllClaim = "cache_all"

	allowedAudienceDefaultValue = ""
)

var (
	ErrEmptyIssueURL         = errors.New("empty issue URL")
	ErrEmptyAllowedAudiences = errors.New("empty allowed audiences")
	ErrUnknownIssuer         = errors.New("unknown issuer")
	ErrForbiddenAudience     = errors.New("forbidden audience")
)

type OIDCOptions struct {
	AllowedIssueURLs string `json:"allowedIssueURLs,omitempty"`
	AllowedAudiences string `json:"allowedAudiences,omitempty"`
	CacheAllClaim    string `json:"cacheAllClaim,omitempty"`
}

func (op *OIDCOptions) Validate() error {
	if op.AllowedIssueURLs == "" {
		return ErrEmptyIssueURL
	}
	if op.AllowedAudiences == "" {
		return ErrEmptyAllowedAudiences
	}
	return nil
}

func (op *OIDCOptions) withDefault() {
	if op.CacheAllClaim == "" {
		op.CacheAllClaim = DefaultCacheAllClaim
	}
}

type providerWithVerifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// OIDCPolicy treats the caller identity as a bearer token: the token is
// verified against the allowed issuers and the caching verdict is taken from
// a boolean claim. A token without the claim cannot cache.
type OIDCPolicy struct {
	cacheAllClaim    string
	allowedAudiences map[string]string

	providers map[string]*providerWithVerifier
}

func (p *OIDCPolicy) CanCacheAllEntries(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	tokenParts := strings.Split(identity, ".")
	if len(tokenParts) != 3 {
		return false, ErrMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(tokenParts[1])
	if err != nil {
		return false, err
	}
	unsecureJwtPayload := &struct {
		Issuer string `json:"iss"`
	}{}
	if err = json.Unmarshal(payload, unsecureJwtPayload); err != nil {
		return false, err
	}
	oidcProvider, exist := p.providers[unsecureJwtPayload.Issuer]
	if !exist {
		return false, ErrUnknownIssuer
	}
	idToken, err := oidcProvider.verifier.Verify(ctx, identity)
	if err != nil {
		return false, err
	}

	// any of the client audiences in the allowed set is enough
	audienceAllowed := false
	for _, audience := range idToken.Audience {
		if _, ok := p.allowedAudiences[audience]; ok {
			audienceAllowed = true
		}
	}
	if !audienceAllowed {
		return false, ErrForbiddenAudience
	}

	rawClaims := map[string]json.RawMessage{}
	if err = idToken.Claims(&rawClaims); err != nil {
		return false, err
	}
	rawMessage, ok := rawClaims[p.cacheAllClaim]
	if !ok {
		return false, nil
	}
	var allowed bool
	if err = json.Unmarshal(rawMessage, &allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

func NewOIDCPolicy(ctx context.Context, jsonParam string) (CachePolicy, error) {
	oidcParams := &OIDCOptions{}
	if err := json.Unmarshal([]byte(jsonParam), oidcParams); err != nil {
		return nil, err
	}
	oidcParams.withDefault()
	if err := oidcParams.Validate(); err != nil {
		return nil, err
	}
	allowedAudienceMap := map[string]string{}
	for _, allowedAudience := range strings.Split(oidcParams.AllowedAudiences, ",") {
		allowedAudienceMap[allowedAudience] = allowedAudienceDefaultValue
	}
	oidcPolicy := &OIDCPolicy{
		cacheAllClaim:    oidcParams.CacheAllClaim,
		allowedAudiences: allowedAudienceMap,
		providers:        map[string]*providerWithVerifier{},
	}

	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: 30 * time.Second})
	for _, issueURL := range strings.Split(oidcParams.AllowedIssueURLs, ",") {
		provider, err := oidc.NewProvider(ctx, issueURL)
		if err != nil {
			return nil, err
		}
		config := &oidc.Config{
			SkipClientIDCheck: true,
			Now:               time.Now,
		}
		oidcPolicy.providers[issueURL] = &providerWithVerifier{
			provider: provider,
			verifier: provider.Verifier(config),
		}
	}
	return oidcPolicy, nil
}
