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

package offlinecache

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/docspan/common"
	"github.com/streamnative/docspan/common/metric"
)

type PebbleOptions struct {
	// DataDir is the directory where the cache files are stored.
	DataDir string

	// CacheSizeMB is the max size of the Pebble block cache.
	CacheSizeMB int64

	// InMemory makes the cache use a transient in-memory filesystem.
	InMemory bool
}

var DefaultPebbleOptions = &PebbleOptions{
	DataDir:     "./data/offline-cache",
	CacheSizeMB: 32,
}

type pebbleSlotStore struct {
	db    *pebble.DB
	cache *pebble.Cache

	dbMetrics func() *pebble.Metrics
	gauges    []metric.Gauge

	readLatency  metric.LatencyHistogram
	writeLatency metric.LatencyHistogram
	readBytes    metric.Counter
	writeBytes   metric.Counter
	readErrors   metric.Counter
	writeErrors  metric.Counter
}

// NewPebbleSlotStore creates a SlotStore persisted in a local Pebble database.
func NewPebbleSlotStore(options *PebbleOptions) (SlotStore, error) {
	if options == nil {
		options = DefaultPebbleOptions
	}
	cacheSizeMB := options.CacheSizeMB
	if cacheSizeMB == 0 {
		cacheSizeMB = DefaultPebbleOptions.CacheSizeMB
	}
	dataDir := options.DataDir
	if dataDir == "" {
		dataDir = DefaultPebbleOptions.DataDir
	}

	cache := pebble.NewCache(cacheSizeMB * 1024 * 1024)

	pbOptions := &pebble.Options{
		Cache:        cache,
		MemTableSize: 16 * 1024 * 1024,
		Levels: []pebble.LevelOptions{
			{
				BlockSize:      64 * 1024,
				Compression:    pebble.NoCompression,
				TargetFileSize: 32 * 1024 * 1024,
			}, {
				BlockSize:      64 * 1024,
				Compression:    pebble.ZstdCompression,
				TargetFileSize: 64 * 1024 * 1024,
			},
		},
		FS: vfs.Default,
		Logger: &pebbleLogger{
			slog.With(
				slog.String("component", "offline-cache"),
			),
		},

		FormatMajorVersion: pebble.FormatNewest,
	}

	if options.InMemory {
		pbOptions.FS = vfs.NewMem()
	}

	db, err := pebble.Open(dataDir, pbOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open offline cache at %s", dataDir)
	}

	labels := map[string]any{}
	s := &pebbleSlotStore{
		db:    db,
		cache: cache,

		readLatency: metric.NewLatencyHistogram("docspan_cache_read_latency",
			"The latency for reading a slot from the offline cache", labels),
		writeLatency: metric.NewLatencyHistogram("docspan_cache_write_latency",
			"The latency for writing a slot into the offline cache", labels),
		readBytes: metric.NewCounter("docspan_cache_read",
			"The amount of bytes read from the offline cache", metric.Bytes, labels),
		writeBytes: metric.NewCounter("docspan_cache_write",
			"The amount of bytes written into the offline cache", metric.Bytes, labels),
		readErrors: metric.NewCounter("docspan_cache_read_errors",
			"The count of offline cache read errors", "count", labels),
		writeErrors: metric.NewCounter("docspan_cache_write_errors",
			"The count of offline cache write errors", "count", labels),
	}

	// Cache the calls to db.Metrics() which are common to all the gauges
	s.dbMetrics = common.Memoize(func() *pebble.Metrics {
		return s.db.Metrics()
	}, 5*time.Second)

	s.gauges = []metric.Gauge{
		metric.NewGauge("docspan_cache_pebble_max_cache_size",
			"The max size configured for the Pebble block cache in bytes",
			metric.Bytes, labels, func() int64 {
				return cacheSizeMB * 1024 * 1024
			}),
		metric.NewGauge("docspan_cache_pebble_block_cache_used",
			"The size of the block cache used by the offline cache db",
			metric.Bytes, labels, func() int64 {
				return s.dbMetrics().BlockCache.Size
			}),
		metric.NewGauge("docspan_cache_pebble_block_cache_hits",
			"The number of hits in the block cache",
			"count", labels, func() int64 {
				return s.dbMetrics().BlockCache.Hits
			}),
		metric.NewGauge("docspan_cache_pebble_block_cache_misses",
			"The number of misses in the block cache",
			"count", labels, func() int64 {
				return s.dbMetrics().BlockCache.Misses
			}),
		metric.NewGauge("docspan_cache_pebble_disk_space",
			"The total size of all the offline cache db files",
			metric.Bytes, labels, func() int64 {
				return int64(s.dbMetrics().DiskSpaceUsage())
			}),
		metric.NewGauge("docspan_cache_pebble_num_files_total",
			"The total number of files for the offline cache db",
			"count", labels, func() int64 {
				return s.dbMetrics().Total().NumFiles
			}),
	}

	return s, nil
}

func (s *pebbleSlotStore) Close() error {
	for _, g := range s.gauges {
		g.Unregister()
	}

	err := multierr.Combine(
		s.db.Flush(),
		s.db.Close(),
	)
	s.cache.Unref()
	return err
}

func (s *pebbleSlotStore) Get(_ context.Context, slot string) ([]byte, error) {
	timer := s.readLatency.Timer()

	value, closer, err := s.db.Get([]byte(slot))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		s.readErrors.Inc()
		return nil, errors.Wrapf(err, "failed to read slot %s", slot)
	}

	out := make([]byte, len(value))
	copy(out, value)
	if err = closer.Close(); err != nil {
		return nil, err
	}

	s.readBytes.Add(len(out))
	timer.Done()
	return out, nil
}

func (s *pebbleSlotStore) Put(_ context.Context, slot string, value []byte) error {
	timer := s.writeLatency.Timer()

	if err := s.db.Set([]byte(slot), value, pebble.Sync); err != nil {
		s.writeErrors.Inc()
		return errors.Wrapf(err, "failed to write slot %s", slot)
	}

	s.writeBytes.Add(len(value))
	timer.Done()
	return nil
}
