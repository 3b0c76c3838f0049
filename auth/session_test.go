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
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type mockClock struct {
	currentTime atomic.Int64
}

func (c *mockClock) NowMillis() uint64 {
	return uint64(c.currentTime.Load())
}

const testEpoch = int64(1_700_000_000_000)

func newMockClock() *mockClock {
	clock := &mockClock{}
	clock.currentTime.Store(testEpoch)
	return clock
}

func TestSessionManagerRefreshesWhenNeeded(t *testing.T) {
	clock := newMockClock()
	var refreshCalls atomic.Int32
	refresh := func(context.Context) (*Credentials, error) {
		refreshCalls.Add(1)
		return &Credentials{
			AccessToken: "tok-" + time.Now().String(),
			ExpiresAt:   clock.NowMillis() + uint64(time.Hour.Milliseconds()),
		}, nil
	}

	sm, err := NewSessionManager(refresh, WithSessionClock(clock))
	assert.NoError(t, err)
	ctx := context.Background()

	// First call has no credentials yet
	token, err := sm.Token(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.EqualValues(t, 1, refreshCalls.Load())

	// Still valid, no second refresh
	sameToken, err := sm.Token(ctx)
	assert.NoError(t, err)
	assert.Equal(t, token, sameToken)
	assert.EqualValues(t, 1, refreshCalls.Load())

	// Move inside the early-refresh window
	clock.currentTime.Add(time.Hour.Milliseconds() - time.Minute.Milliseconds())
	newToken, err := sm.Token(ctx)
	assert.NoError(t, err)
	assert.NotEqual(t, token, newToken)
	assert.EqualValues(t, 2, refreshCalls.Load())

	assert.NoError(t, sm.Close())
}

func TestSessionManagerKeepsTokenOnFailedRefresh(t *testing.T) {
	clock := newMockClock()
	var failing atomic.Bool
	refresh := func(context.Context) (*Credentials, error) {
		if failing.Load() {
			return nil, errors.New("token endpoint unavailable")
		}
		return &Credentials{
			AccessToken: "tok-1",
			ExpiresAt:   clock.NowMillis() + uint64(time.Hour.Milliseconds()),
		}, nil
	}

	sm, err := NewSessionManager(refresh, WithSessionClock(clock))
	assert.NoError(t, err)
	ctx := context.Background()

	token, err := sm.Token(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	failing.Store(true)

	// Inside the early-refresh window the refresh fails, but the token is
	// still valid and keeps being served
	clock.currentTime.Add(time.Hour.Milliseconds() - time.Minute.Milliseconds())
	token, err = sm.Token(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Once expired and with the refresh still failing, Token must error
	clock.currentTime.Add(2 * time.Minute.Milliseconds())
	_, err = sm.Token(ctx)
	assert.Error(t, err)
}

func TestSessionManagerRefreshCooldown(t *testing.T) {
	clock := newMockClock()
	var refreshCalls atomic.Int32
	refresh := func(context.Context) (*Credentials, error) {
		refreshCalls.Add(1)
		return nil, errors.New("token endpoint unavailable")
	}

	sm, err := NewSessionManager(refresh,
		WithSessionClock(clock),
		WithRefreshCooldown(10*time.Second))
	assert.NoError(t, err)
	ctx := context.Background()

	_, err = sm.Token(ctx)
	assert.Error(t, err)
	calls := refreshCalls.Load()
	assert.Positive(t, calls)

	// Within the cooldown no new attempt is made
	_, err = sm.Token(ctx)
	assert.Error(t, err)
	assert.Equal(t, calls, refreshCalls.Load())

	// After the cooldown the refresh is attempted again
	clock.currentTime.Add(11 * time.Second.Milliseconds())
	_, err = sm.Token(ctx)
	assert.Error(t, err)
	assert.Greater(t, refreshCalls.Load(), calls)
}

func TestSessionManagerLoadsStoredCredentials(t *testing.T) {
	clock := newMockClock()
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileCredentialsStore(path)

	assert.NoError(t, store.Store(&Credentials{
		AccessToken: "stored-token",
		ExpiresAt:   clock.NowMillis() + uint64(time.Hour.Milliseconds()),
	}))

	var refreshCalls atomic.Int32
	refresh := func(context.Context) (*Credentials, error) {
		refreshCalls.Add(1)
		return nil, errors.New("should not be called")
	}

	sm, err := NewSessionManager(refresh,
		WithSessionClock(clock),
		WithCredentialsStore(store))
	assert.NoError(t, err)

	token, err := sm.Token(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "stored-token", token)
	assert.EqualValues(t, 0, refreshCalls.Load())

	assert.NoError(t, sm.Close())
}

func TestSessionManagerPersistsRefreshedCredentials(t *testing.T) {
	clock := newMockClock()
	path := filepath.Join(t.TempDir(), "credentials.json")

	refresh := func(context.Context) (*Credentials, error) {
		return &Credentials{
			AccessToken: "fresh-token",
			ExpiresAt:   clock.NowMillis() + uint64(time.Hour.Milliseconds()),
		}, nil
	}

	sm, err := NewSessionManager(refresh,
		WithSessionClock(clock),
		WithCredentialsStore(NewFileCredentialsStore(path)))
	assert.NoError(t, err)

	token, err := sm.Token(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.NoError(t, sm.Close())

	// A new store sees the persisted credentials
	loaded, err := NewFileCredentialsStore(path).Load()
	assert.NoError(t, err)
	assert.Equal(t, "fresh-token", loaded.AccessToken)
}
