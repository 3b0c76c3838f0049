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

	"github.com/pkg/errors"
)

const (
	PolicyStatic = "static"
	PolicyOIDC   = "oidc"
)

var (
	ErrUnsupportedPolicy = errors.New("unsupported cache policy")
	ErrEmptyIdentity     = errors.New("empty caller identity")
	ErrMalformedToken    = errors.New("malformed token")
)

var Disabled = Options{}

type Options struct {
	PolicyName   string
	PolicyParams string
}

func (op *Options) IsEnabled() bool {
	return op.PolicyName != ""
}

// CachePolicy decides whether a caller is allowed to keep a full copy of the
// entries it reads in the local offline cache.
type CachePolicy interface {
	CanCacheAllEntries(ctx context.Context, identity string) (bool, error)
}

func NewCachePolicy(ctx context.Context, options Options) (CachePolicy, error) {
	switch options.PolicyName {
	case PolicyStatic:
		return NewStaticPolicy(options.PolicyParams)
	case PolicyOIDC:
		return NewOIDCPolicy(ctx, options.PolicyParams)
	default:
		return nil, ErrUnsupportedPolicy
	}
}

type allowAllPolicy struct{}

func (allowAllPolicy) CanCacheAllEntries(context.Context, string) (bool, error) {
	return true, nil
}

// AllowAll grants offline caching to every caller.
func AllowAll() CachePolicy {
	return allowAllPolicy{}
}

type denyAllPolicy struct{}

func (denyAllPolicy) CanCacheAllEntries(context.Context, string) (bool, error) {
	return false, nil
}

// DenyAll refuses offline caching to every caller.
func DenyAll() CachePolicy {
	return denyAllPolicy{}
}
