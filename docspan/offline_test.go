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

package docspan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/streamnative/docspan/auth"
	"github.com/streamnative/docspan/docstore"
	"github.com/streamnative/docspan/offlinecache"
	"github.com/stretchr/testify/assert"
)

const testEpoch = 1_700_000_000_000

type mockClock struct {
	currentTime atomic.Int64
}

func newMockClock() *mockClock {
	clock := &mockClock{}
	clock.currentTime.Store(testEpoch)
	return clock
}

func (c *mockClock) NowMillis() uint64 {
	return uint64(c.currentTime.Load())
}

func (c *mockClock) advance(duration time.Duration) {
	c.currentTime.Add(duration.Milliseconds())
}

// recordingPolicy captures the identities presented to the caching policy.
type recordingPolicy struct {
	sync.Mutex
	allow      bool
	err        error
	identities []string
}

func (p *recordingPolicy) CanCacheAllEntries(_ context.Context, identity string) (bool, error) {
	p.Lock()
	defer p.Unlock()
	p.identities = append(p.identities, identity)
	if p.err != nil {
		return false, p.err
	}
	return p.allow, nil
}

func (p *recordingPolicy) seen() []string {
	p.Lock()
	defer p.Unlock()
	return append([]string{}, p.identities...)
}

func TestOfflineBridgeMirrorAndLookup(t *testing.T) {
	slots := offlinecache.NewMemorySlotStore()
	clock := newMockClock()
	bridge := newOfflineCacheBridge(slots, auth.AllowAll(),
		func() string { return "registrar-42" }, clock)

	ctx := context.Background()
	assert.NoError(t, bridge.Mirror(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present")))
	clock.advance(1 * time.Minute)
	assert.NoError(t, bridge.Mirror(ctx, "ATTEND_CS101", "2024-09-02/bob", []byte("absent")))

	snapshot, err := bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), snapshot.Value)
	assert.EqualValues(t, testEpoch, snapshot.FetchedAt)

	snapshot, err = bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/bob")
	assert.NoError(t, err)
	assert.Equal(t, []byte("absent"), snapshot.Value)
	assert.EqualValues(t, testEpoch+time.Minute.Milliseconds(), snapshot.FetchedAt)

	_, err = bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/carol")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = bridge.Lookup(ctx, "ATTEND_MATH", "2024-09-02/alice")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestOfflineBridgePolicyDenied(t *testing.T) {
	bridge := NewOfflineCacheBridge(offlinecache.NewMemorySlotStore(), auth.DenyAll(),
		func() string { return "registrar-42" })

	ctx := context.Background()
	err := bridge.Mirror(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present"))
	assert.ErrorIs(t, err, ErrCacheNotPermitted)
	_, err = bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, ErrCacheNotPermitted)
}

func TestOfflineBridgePolicyError(t *testing.T) {
	policyErr := errors.New("token validation unavailable")
	bridge := NewOfflineCacheBridge(offlinecache.NewMemorySlotStore(),
		&recordingPolicy{err: policyErr}, func() string { return "registrar-42" })

	_, err := bridge.Lookup(context.Background(), "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, policyErr)
	assert.NotErrorIs(t, err, ErrCacheNotPermitted)
}

func TestOfflineBridgeCorruptedSlot(t *testing.T) {
	slots := offlinecache.NewMemorySlotStore()
	bridge := NewOfflineCacheBridge(slots, auth.AllowAll(),
		func() string { return "registrar-42" })

	ctx := context.Background()
	assert.NoError(t, slots.Put(ctx, cacheSlotPrefix+"ATTEND_CS101", []byte("not json")))

	// A broken slot reads as empty and the next mirror replaces it
	_, err := bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, bridge.Mirror(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present")))
	snapshot, err := bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), snapshot.Value)
}

func TestStoreServesCachedEntryWhenRemoteFails(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote,
		WithOfflineCache(offlinecache.NewMemorySlotStore()),
		WithCachePolicy(auth.AllowAll()),
		WithIdentity("registrar-42"),
	)
	assert.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.AddEntry(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present"))
	assert.NoError(t, err)

	// The successful read mirrors the entry into the offline cache
	value, err := client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), value)

	remote.FailWith(docstore.OpContainsField, errors.New("store unreachable"))

	value, err = client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), value)
}

func TestStoreSurfacesRemoteErrorWhenEntryNotCached(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote,
		WithOfflineCache(offlinecache.NewMemorySlotStore()),
		WithCachePolicy(auth.AllowAll()),
		WithIdentity("registrar-42"),
	)
	assert.NoError(t, err)
	defer client.Close()

	probeErr := errors.New("store unreachable")
	remote.FailWith(docstore.OpContainsField, probeErr)

	_, err = client.ReadEntry(context.Background(), "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, probeErr)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestStoreSkipsCacheWhenPolicyDenies(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote,
		WithOfflineCache(offlinecache.NewMemorySlotStore()),
		WithCachePolicy(auth.DenyAll()),
		WithIdentity("registrar-42"),
	)
	assert.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.AddEntry(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present"))
	assert.NoError(t, err)

	// Reads are unaffected while the remote store is up
	value, err := client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), value)

	// Nothing was mirrored, so the fallback has nothing to serve
	probeErr := errors.New("store unreachable")
	remote.FailWith(docstore.OpContainsField, probeErr)
	_, err = client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, probeErr)
}

func TestStoreServesCachedEntryAfterRemoteDelete(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote,
		WithOfflineCache(offlinecache.NewMemorySlotStore()),
		WithCachePolicy(auth.AllowAll()),
		WithIdentity("registrar-42"),
	)
	assert.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.AddEntry(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present"))
	assert.NoError(t, err)
	_, err = client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)

	// A clean not-found on the remote side still falls back to the cache
	assert.NoError(t, remote.DeleteField(ctx, DefaultCollection, "ATTEND_CS101", "2024-09-02/alice"))

	value, err := client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), value)
}

func TestStorePresentsIdentityToPolicy(t *testing.T) {
	policy := &recordingPolicy{allow: true}
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote,
		WithOfflineCache(offlinecache.NewMemorySlotStore()),
		WithCachePolicy(policy),
		WithIdentity("registrar-42"),
	)
	assert.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.AddEntry(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present"))
	assert.NoError(t, err)
	_, err = client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)

	seen := policy.seen()
	assert.NotEmpty(t, seen)
	for _, identity := range seen {
		assert.Equal(t, "registrar-42", identity)
	}
}

func TestStoreOfflineCacheRequiresPolicy(t *testing.T) {
	remote := docstore.NewMemoryStore()
	defer remote.Close()

	_, err := NewStore(remote, WithOfflineCache(offlinecache.NewMemorySlotStore()))
	assert.ErrorIs(t, err, ErrMissingCachePolicy)
}

func TestStoreMirrorsWithConfiguredClock(t *testing.T) {
	slots := offlinecache.NewMemorySlotStore()
	clock := newMockClock()
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote,
		WithOfflineCache(slots),
		WithCachePolicy(auth.AllowAll()),
		WithIdentity("registrar-42"),
		WithClock(clock),
	)
	assert.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	_, err = client.AddEntry(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("present"))
	assert.NoError(t, err)
	_, err = client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)

	bridge := newOfflineCacheBridge(slots, auth.AllowAll(),
		func() string { return "registrar-42" }, clock)
	snapshot, err := bridge.Lookup(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.EqualValues(t, testEpoch, snapshot.FetchedAt)
}
