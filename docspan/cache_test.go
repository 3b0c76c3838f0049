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
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/streamnative/docspan/docstore"
	"github.com/stretchr/testify/assert"
)

type attendanceRecord struct {
	Status  string `json:"status"`
	Minutes int    `json:"minutes"`
}

func TestCacheRoundTrip(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote)
	assert.NoError(t, err)
	defer client.Close()

	cache, err := NewCache[attendanceRecord](client, json.Marshal, json.Unmarshal)
	assert.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := attendanceRecord{Status: "present", Minutes: 50}
	_, err = cache.Add(ctx, "ATTEND_CS101", "2024-09-02/alice", record, WithEntryKind(KindEvent))
	assert.NoError(t, err)

	got, err := cache.Get(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.Equal(t, record, got)

	updated := attendanceRecord{Status: "late", Minutes: 35}
	assert.NoError(t, cache.Update(ctx, "ATTEND_CS101", "2024-09-02/alice", updated))
	assert.Eventually(t, func() bool {
		got, err := cache.Get(ctx, "ATTEND_CS101", "2024-09-02/alice")
		return err == nil && got == updated
	}, 10*time.Second, 10*time.Millisecond)
}

func TestCacheServesFromMemory(t *testing.T) {
	remote := docstore.NewMemoryStore()
	var remoteOps atomic.Int64
	remote.WithHook(func(docstore.Op, string, string) {
		remoteOps.Add(1)
	})

	client, err := NewStore(remote)
	assert.NoError(t, err)
	defer client.Close()

	cache, err := NewCache[attendanceRecord](client, json.Marshal, json.Unmarshal)
	assert.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	record := attendanceRecord{Status: "present", Minutes: 50}
	_, err = cache.Add(ctx, "ATTEND_CS101", "2024-09-02/alice", record)
	assert.NoError(t, err)

	// The cache admits entries asynchronously; eventually a Get completes
	// without touching the remote store at all
	assert.Eventually(t, func() bool {
		before := remoteOps.Load()
		got, err := cache.Get(ctx, "ATTEND_CS101", "2024-09-02/alice")
		if err != nil || got != record {
			return false
		}
		return remoteOps.Load() == before
	}, 10*time.Second, 10*time.Millisecond)
}

func TestCacheNegativeResult(t *testing.T) {
	remote := docstore.NewMemoryStore()
	var remoteOps atomic.Int64
	remote.WithHook(func(docstore.Op, string, string) {
		remoteOps.Add(1)
	})

	client, err := NewStore(remote)
	assert.NoError(t, err)
	defer client.Close()

	cache, err := NewCache[attendanceRecord](client, json.Marshal, json.Unmarshal)
	assert.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, err = cache.Get(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// The miss itself is cached
	assert.Eventually(t, func() bool {
		before := remoteOps.Load()
		_, err := cache.Get(ctx, "ATTEND_CS101", "2024-09-02/alice")
		return errors.Is(err, ErrKeyNotFound) && remoteOps.Load() == before
	}, 10*time.Second, 10*time.Millisecond)
}

func TestCacheSerializationErrors(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote)
	assert.NoError(t, err)
	defer client.Close()

	serializeErr := errors.New("not serializable")
	cache, err := NewCache[attendanceRecord](client,
		func(any) ([]byte, error) { return nil, serializeErr }, json.Unmarshal)
	assert.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, err = cache.Add(ctx, "ATTEND_CS101", "2024-09-02/alice", attendanceRecord{})
	assert.ErrorIs(t, err, serializeErr)
	// The failed serialization never reached the remote store
	_, err = client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	err = cache.Update(ctx, "ATTEND_CS101", "2024-09-02/alice", attendanceRecord{})
	assert.ErrorIs(t, err, serializeErr)
}

func TestCacheDeserializationError(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote)
	assert.NoError(t, err)
	defer client.Close()

	cache, err := NewCache[attendanceRecord](client, json.Marshal, json.Unmarshal)
	assert.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, err = client.AddEntry(ctx, "ATTEND_CS101", "2024-09-02/alice", []byte("not json"))
	assert.NoError(t, err)

	_, err = cache.Get(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestCacheCloseLeavesStoreOpen(t *testing.T) {
	remote := docstore.NewMemoryStore()
	client, err := NewStore(remote)
	assert.NoError(t, err)
	defer client.Close()

	cache, err := NewCache[attendanceRecord](client, json.Marshal, json.Unmarshal)
	assert.NoError(t, err)

	ctx := context.Background()
	_, err = cache.Add(ctx, "ATTEND_CS101", "2024-09-02/alice", attendanceRecord{Status: "present"})
	assert.NoError(t, err)
	assert.NoError(t, cache.Close())

	value, err := client.ReadEntry(ctx, "ATTEND_CS101", "2024-09-02/alice")
	assert.NoError(t, err)
	assert.NotEmpty(t, value)
}
