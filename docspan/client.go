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

// Package docspan spreads a logical key-value collection across a chain of
// fixed-capacity shard documents in a remote document store.
//
// A logical collection is identified by a base id. Entries added under that
// base id land in the first shard of its chain with enough estimated room
// left; shards are created implicitly by the first write that targets them.
// Lookups re-scan the chain from the first shard on every call, so the remote
// store stays the single source of truth.
//
// Capacity accounting is optimistic: there is no locking or reservation, and
// two concurrent adds can both pick the same shard and jointly overflow it.
// Keep the configured shard capacity conservative with respect to the store's
// hard document limit.
package docspan

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrKeyNotFound is returned when a key is not present anywhere in the
	// shard chain of its base id.
	ErrKeyNotFound = errors.New("key not found")

	// ErrChainExhausted is returned when an operation walked the chain up to
	// the configured limit without finishing.
	ErrChainExhausted = errors.New("shard chain limit reached")
)

// Store is the client for one sharded collection.
//
// All operations are single-shot: there are no retries and no background
// work. The only resilience mechanism is the optional offline cache on the
// ReadEntry path, and it is available only to callers approved by the
// configured caching policy.
type Store interface {
	io.Closer

	// AddEntry writes value under key into the first shard of baseID's chain
	// that has room for it, and returns the identifier under which the entry
	// was written. Only adds choose a shard; an entry is never relocated
	// afterwards.
	AddEntry(ctx context.Context, baseID string, key string, value []byte, options ...EntryOption) (string, error)

	// UpdateEntry overwrites the value of key in whichever shard currently
	// holds it. Returns ErrKeyNotFound if the key is nowhere in the chain.
	UpdateEntry(ctx context.Context, baseID string, key string, value []byte) error

	// ReadEntry returns the value of key. When the remote path fails and an
	// offline cache is configured, the last mirrored value is served instead;
	// if the cache cannot help either, the original remote error is returned.
	ReadEntry(ctx context.Context, baseID string, key string) ([]byte, error)

	// ReadAllEntries returns the union of every shard's entries, walking the
	// chain from the first shard until the first missing one.
	ReadAllEntries(ctx context.Context, baseID string) (map[string][]byte, error)

	// BatchUpdate applies UpdateEntry for every entry in the map, one by one,
	// and returns how many succeeded. The batch is best-effort, not atomic:
	// a failure leaves the already-updated keys in place.
	BatchUpdate(ctx context.Context, baseID string, entries map[string][]byte) (int, error)
}
