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
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/streamnative/docspan/common"
)

const (
	DefaultRefreshEarly    = 5 * time.Minute
	DefaultRefreshCooldown = 10 * time.Second

	maxRefreshRetries = 3
)

// Credentials is a bearer token together with its expiration time, in epoch
// milliseconds.
type Credentials struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   uint64 `json:"expiresAt"`
}

// RefreshFunc obtains fresh credentials, typically from an identity provider
// token endpoint.
type RefreshFunc func(ctx context.Context) (*Credentials, error)

// CredentialsStore persists credentials across process restarts.
type CredentialsStore interface {
	io.Closer

	Load() (*Credentials, error)
	Store(credentials *Credentials) error
}

// SessionManager keeps a bearer token alive, refreshing it before it expires
// and persisting it when a CredentialsStore is configured. It satisfies the
// document store TokenSource contract.
type SessionManager struct {
	sync.Mutex

	clock           common.Clock
	refresh         RefreshFunc
	store           CredentialsStore
	refreshEarly    time.Duration
	refreshCooldown time.Duration

	log *slog.Logger

	credentials *Credentials
	lastAttempt uint64
}

type SessionOption func(*SessionManager)

func WithCredentialsStore(store CredentialsStore) SessionOption {
	return func(sm *SessionManager) {
		sm.store = store
	}
}

func WithSessionClock(clock common.Clock) SessionOption {
	return func(sm *SessionManager) {
		sm.clock = clock
	}
}

func WithRefreshEarly(refreshEarly time.Duration) SessionOption {
	return func(sm *SessionManager) {
		sm.refreshEarly = refreshEarly
	}
}

func WithRefreshCooldown(refreshCooldown time.Duration) SessionOption {
	return func(sm *SessionManager) {
		sm.refreshCooldown = refreshCooldown
	}
}

func NewSessionManager(refresh RefreshFunc, options ...SessionOption) (*SessionManager, error) {
	if refresh == nil {
		return nil, errors.New("refresh function is required")
	}
	sm := &SessionManager{
		clock:           common.SystemClock(),
		refresh:         refresh,
		refreshEarly:    DefaultRefreshEarly,
		refreshCooldown: DefaultRefreshCooldown,
		log: slog.With(
			slog.String("component", "session-manager"),
		),
	}
	for _, option := range options {
		option(sm)
	}

	if sm.store != nil {
		credentials, err := sm.store.Load()
		switch {
		case err == nil:
			sm.credentials = credentials
		case errors.Is(err, ErrNoCredentials):
			// First run, nothing stored yet
		default:
			sm.log.Warn("Failed to load stored credentials", slog.Any("error", err))
		}
	}
	return sm, nil
}

func (sm *SessionManager) Close() error {
	if sm.store != nil {
		return sm.store.Close()
	}
	return nil
}

// Token returns a valid bearer token, refreshing it when the current one is
// about to expire. A failed refresh keeps serving the current token until it
// actually expires, and further attempts are held back for the cooldown
// period.
func (sm *SessionManager) Token(ctx context.Context) (string, error) {
	sm.Lock()
	defer sm.Unlock()

	now := sm.clock.NowMillis()
	if sm.credentials != nil && !sm.expiresWithin(now, sm.refreshEarly) {
		return sm.credentials.AccessToken, nil
	}

	if sm.lastAttempt != 0 && now-sm.lastAttempt < uint64(sm.refreshCooldown.Milliseconds()) {
		if sm.credentials != nil && now < sm.credentials.ExpiresAt {
			return sm.credentials.AccessToken, nil
		}
		return "", errors.New("session credentials expired and refresh is cooling down")
	}

	sm.lastAttempt = now
	credentials, err := sm.doRefresh(ctx)
	if err != nil {
		if sm.credentials != nil && now < sm.credentials.ExpiresAt {
			sm.log.Warn(
				"Failed to refresh session credentials, keeping the current token",
				slog.Any("error", err),
			)
			return sm.credentials.AccessToken, nil
		}
		return "", errors.Wrap(err, "failed to refresh session credentials")
	}

	sm.credentials = credentials
	if sm.store != nil {
		if err = sm.store.Store(credentials); err != nil {
			sm.log.Warn("Failed to persist session credentials", slog.Any("error", err))
		}
	}
	return credentials.AccessToken, nil
}

func (sm *SessionManager) expiresWithin(now uint64, early time.Duration) bool {
	return now+uint64(early.Milliseconds()) >= sm.credentials.ExpiresAt
}

func (sm *SessionManager) doRefresh(ctx context.Context) (*Credentials, error) {
	var credentials *Credentials
	backOff := backoff.WithMaxRetries(common.NewBackOff(ctx), maxRefreshRetries)
	err := backoff.RetryNotify(func() error {
		var err error
		credentials, err = sm.refresh(ctx)
		return err
	}, backOff, func(err error, duration time.Duration) {
		sm.log.Warn(
			"Failed to refresh session credentials",
			slog.Any("error", err),
			slog.Duration("retry-after", duration),
		)
	})
	if err != nil {
		return nil, err
	}
	if credentials == nil || credentials.AccessToken == "" {
		return nil, errors.New("refresh returned empty credentials")
	}
	return credentials, nil
}
