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
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/streamnative/docspan/auth"
	"github.com/streamnative/docspan/common"
	"github.com/streamnative/docspan/offlinecache"
)

const cacheSlotPrefix = "docspan-cache-"

var (
	// ErrCacheMiss is returned by a cache lookup when the entry was never
	// mirrored.
	ErrCacheMiss = errors.New("entry not in offline cache")

	// ErrCacheNotPermitted is returned when the caching policy denies the
	// caller access to the offline cache.
	ErrCacheNotPermitted = errors.New("offline caching not permitted for this caller")
)

// CacheSnapshot is one mirrored entry: the value read from the remote store
// and when it was fetched, in epoch milliseconds.
type CacheSnapshot struct {
	Value     []byte `json:"value"`
	FetchedAt uint64 `json:"fetchedAt"`
}

// OfflineCacheBridge mirrors remotely-read entries into a local slot store,
// one slot per base id holding that chain's whole snapshot map. Every access
// is gated by the caching policy, on both the write and the read side: the
// cache never serves a caller the policy would not let cache.
type OfflineCacheBridge struct {
	slots    offlinecache.SlotStore
	policy   auth.CachePolicy
	identity func() string
	clock    common.Clock

	log *slog.Logger
}

func NewOfflineCacheBridge(slots offlinecache.SlotStore, policy auth.CachePolicy, identity func() string) *OfflineCacheBridge {
	return newOfflineCacheBridge(slots, policy, identity, common.SystemClock())
}

func newOfflineCacheBridge(slots offlinecache.SlotStore, policy auth.CachePolicy,
	identity func() string, clock common.Clock) *OfflineCacheBridge {
	return &OfflineCacheBridge{
		slots:    slots,
		policy:   policy,
		identity: identity,
		clock:    clock,
		log: slog.With(
			slog.String("component", "offline-cache-bridge"),
		),
	}
}

// Mirror records a successfully read entry in the base id's slot. The slot
// holds the whole snapshot map, so this is a read-modify-write with no
// locking: concurrent mirrors into the same slot can lose each other's
// update. Mirrored data is best-effort by nature, the remote store stays the
// source of truth.
func (b *OfflineCacheBridge) Mirror(ctx context.Context, baseID string, key string, value []byte) error {
	if err := b.checkPermitted(ctx); err != nil {
		return err
	}

	snapshots, err := b.readSlot(ctx, baseID)
	if err != nil {
		return err
	}
	snapshots[key] = CacheSnapshot{
		Value:     value,
		FetchedAt: b.clock.NowMillis(),
	}
	return b.writeSlot(ctx, baseID, snapshots)
}

// Lookup returns the mirrored snapshot for key, ErrCacheMiss if it was never
// mirrored, or ErrCacheNotPermitted when the policy denies the caller.
func (b *OfflineCacheBridge) Lookup(ctx context.Context, baseID string, key string) (CacheSnapshot, error) {
	if err := b.checkPermitted(ctx); err != nil {
		return CacheSnapshot{}, err
	}

	snapshots, err := b.readSlot(ctx, baseID)
	if err != nil {
		return CacheSnapshot{}, err
	}
	snapshot, ok := snapshots[key]
	if !ok {
		return CacheSnapshot{}, ErrCacheMiss
	}
	return snapshot, nil
}

func (b *OfflineCacheBridge) checkPermitted(ctx context.Context) error {
	allowed, err := b.policy.CanCacheAllEntries(ctx, b.identity())
	if err != nil {
		return errors.Wrap(err, "cache policy check failed")
	}
	if !allowed {
		return ErrCacheNotPermitted
	}
	return nil
}

func (b *OfflineCacheBridge) readSlot(ctx context.Context, baseID string) (map[string]CacheSnapshot, error) {
	content, err := b.slots.Get(ctx, cacheSlotPrefix+baseID)
	if errors.Is(err, offlinecache.ErrSlotNotFound) {
		return map[string]CacheSnapshot{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read cache slot for %s", baseID)
	}

	snapshots := map[string]CacheSnapshot{}
	if err = json.Unmarshal(content, &snapshots); err != nil {
		// A broken slot is treated as empty and overwritten by the next mirror
		b.log.Warn(
			"Discarding unreadable cache slot",
			slog.String("base-id", baseID),
			slog.Any("error", err),
		)
		return map[string]CacheSnapshot{}, nil
	}
	return snapshots, nil
}

func (b *OfflineCacheBridge) writeSlot(ctx context.Context, baseID string, snapshots map[string]CacheSnapshot) error {
	content, err := json.Marshal(snapshots)
	if err != nil {
		return errors.Wrap(err, "failed to serialize cache snapshots")
	}
	if err = b.slots.Put(ctx, cacheSlotPrefix+baseID, content); err != nil {
		return errors.Wrapf(err, "failed to write cache slot for %s", baseID)
	}
	return nil
}
