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
	"gopkg.in/yaml.v3"
)

// StaticRules is the YAML shape of the static policy parameters, listing the
// identities that may (or may not) cache and the verdict for everyone else.
type StaticRules struct {
	Default    bool            `yaml:"default"`
	Identities map[string]bool `yaml:"identities"`
}

type staticPolicy struct {
	rules StaticRules
}

func NewStaticPolicy(params string) (CachePolicy, error) {
	rules := StaticRules{}
	if err := yaml.Unmarshal([]byte(params), &rules); err != nil {
		return nil, errors.Wrap(err, "failed to parse static cache policy rules")
	}
	return &staticPolicy{rules: rules}, nil
}

func (p *staticPolicy) CanCacheAllEntries(_ context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	if allowed, ok := p.rules.Identities[identity]; ok {
		return allowed, nil
	}
	return p.rules.Default, nil
}
