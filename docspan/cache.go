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
	"io"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

// Cache provides typed, locally cached reads on top of a Store.
//
// Values read through Get are kept in memory for up to defaultCacheTTL.
// Writes through the cache invalidate the local copy immediately; writes by
// other processes are only seen once the TTL expires. The cache does not
// close the underlying Store.
type Cache[Value any] interface {
	io.Closer

	// Add serializes value and stores it as a new entry, invalidating any
	// locally cached copy under the same key.
	Add(ctx context.Context, baseID string, key string, value Value, options ...EntryOption) (string, error)

	// Update serializes value and overwrites the existing entry, invalidating
	// any locally cached copy under the same key.
	Update(ctx context.Context, baseID string, key string, value Value) error

	// Get returns the value associated with the key, from the local cache
	// when present. Returns ErrKeyNotFound if the entry does not exist; the
	// miss is cached too.
	Get(ctx context.Context, baseID string, key string) (Value, error)
}

// SerializeFunc is the serialization function. eg: [json.Marshal].
type SerializeFunc func(value any) ([]byte, error)

// DeserializeFunc is the deserialization function. eg: [json.Unmarshal].
type DeserializeFunc func(data []byte, value any) error

const defaultCacheTTL = 5 * time.Minute

// NewCache creates a typed cache for a specific type over the given Store.
// Uses the `serializeFunc` and `deserializeFunc` for SerDe.
func NewCache[T any](store Store, serializeFunc SerializeFunc, deserializeFunc DeserializeFunc) (Cache[T], error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	valueCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     64 * 1024 * 1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &cacheImpl[T]{
		store:           store,
		serializeFunc:   serializeFunc,
		deserializeFunc: deserializeFunc,
		valueCache:      valueCache,
	}, nil
}

type cacheImpl[Value any] struct {
	store           Store
	serializeFunc   SerializeFunc
	deserializeFunc DeserializeFunc
	valueCache      *ristretto.Cache
}

// cachedResult distinguishes a cached value from a cached remote miss.
type cachedResult[Value any] struct {
	value Value
	found bool
}

func cacheKey(baseID string, key string) string {
	return baseID + "/" + key
}

func (c *cacheImpl[Value]) Add(ctx context.Context, baseID string, key string, value Value,
	options ...EntryOption) (string, error) {
	data, err := c.serializeFunc(value)
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize value")
	}

	writtenID, err := c.store.AddEntry(ctx, baseID, key, data, options...)
	c.valueCache.Del(cacheKey(baseID, key))
	return writtenID, err
}

func (c *cacheImpl[Value]) Update(ctx context.Context, baseID string, key string, value Value) error {
	data, err := c.serializeFunc(value)
	if err != nil {
		return errors.Wrap(err, "failed to serialize value")
	}

	err = c.store.UpdateEntry(ctx, baseID, key, data)
	c.valueCache.Del(cacheKey(baseID, key))
	return err
}

func (c *cacheImpl[Value]) Get(ctx context.Context, baseID string, key string) (value Value, err error) {
	if cachedValue, cached := c.valueCache.Get(cacheKey(baseID, key)); cached {
		result := cachedValue.(cachedResult[Value])
		if !result.found {
			return value, ErrKeyNotFound
		}
		return result.value, nil
	}

	return c.load(ctx, baseID, key)
}

func (c *cacheImpl[Value]) load(ctx context.Context, baseID string, key string) (value Value, err error) {
	data, err := c.store.ReadEntry(ctx, baseID, key)
	if errors.Is(err, ErrKeyNotFound) {
		c.valueCache.SetWithTTL(cacheKey(baseID, key), cachedResult[Value]{}, 1, defaultCacheTTL)
		return value, err
	}
	if err != nil {
		return value, err
	}

	if err = c.deserializeFunc(data, &value); err != nil {
		return value, errors.Wrap(err, "failed to deserialize value")
	}

	c.valueCache.SetWithTTL(cacheKey(baseID, key),
		cachedResult[Value]{value: value, found: true}, int64(len(data)), defaultCacheTTL)
	return value, nil
}

func (c *cacheImpl[Value]) Close() error {
	c.valueCache.Close()
	return nil
}
