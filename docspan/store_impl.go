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
	"log/slog"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/docspan/common/metric"
	"github.com/streamnative/docspan/docstore"
)

type storeImpl struct {
	remote    docstore.Store
	options   clientOptions
	estimator *SizeEstimator
	arena     *chainArena
	allocator *ShardAllocator
	locator   *ShardLocator
	offline   *OfflineCacheBridge

	log *slog.Logger

	addLatency     metric.LatencyHistogram
	updateLatency  metric.LatencyHistogram
	readLatency    metric.LatencyHistogram
	readAllLatency metric.LatencyHistogram
	entryEstimates metric.Histogram
	fallbackReads  metric.Counter
	opErrors       metric.Counter
}

// NewStore creates a client for one sharded collection on top of the given
// remote document store. Closing the returned Store closes the remote store
// and the offline cache, when one is configured.
func NewStore(remote docstore.Store, opts ...ClientOption) (Store, error) {
	if remote == nil {
		return nil, errors.New("remote document store is required")
	}
	options, err := newClientOptions(opts...)
	if err != nil {
		return nil, err
	}
	if options.offlineCache != nil && options.cachePolicy == nil {
		return nil, ErrMissingCachePolicy
	}

	arena := newChainArena(options.layout)
	labels := metric.LabelsForCollection(options.collection)

	s := &storeImpl{
		remote:    remote,
		options:   options,
		estimator: newSizeEstimator(options.estimates),
		arena:     arena,
		allocator: newShardAllocator(remote, options, arena),
		locator:   newShardLocator(remote, options, arena),
		log: slog.With(
			slog.String("component", "docspan-store"),
			slog.String("collection", options.collection),
		),

		addLatency: metric.NewLatencyHistogram("docspan_client_add_latency",
			"The latency of AddEntry operations", labels),
		updateLatency: metric.NewLatencyHistogram("docspan_client_update_latency",
			"The latency of UpdateEntry operations", labels),
		readLatency: metric.NewLatencyHistogram("docspan_client_read_latency",
			"The latency of ReadEntry operations", labels),
		readAllLatency: metric.NewLatencyHistogram("docspan_client_read_all_latency",
			"The latency of ReadAllEntries operations", labels),
		entryEstimates: metric.NewBytesHistogram("docspan_client_entry_estimate",
			"The estimated sizes of added entries", labels),
		fallbackReads: metric.NewCounter("docspan_client_offline_fallback",
			"The count of reads served from the offline cache", "count", labels),
		opErrors: metric.NewCounter("docspan_client_op_errors",
			"The count of failed operations", "count", labels),
	}

	if options.offlineCache != nil {
		identity := options.identityProvider
		if identity == nil {
			fixedIdentity := options.identity
			identity = func() string { return fixedIdentity }
		}
		s.offline = newOfflineCacheBridge(options.offlineCache, options.cachePolicy, identity, options.clock)
	}
	return s, nil
}

func (s *storeImpl) Close() error {
	err := s.remote.Close()
	if s.options.offlineCache != nil {
		err = multierr.Append(err, s.options.offlineCache.Close())
	}
	return err
}

func (s *storeImpl) AddEntry(ctx context.Context, baseID string, key string, value []byte,
	options ...EntryOption) (string, error) {
	timer := s.addLatency.Timer()
	entryOpts := newEntryOptions(options...)

	estimate := s.estimator.Estimate(entryOpts.kind, value)
	s.entryEstimates.Record(int(estimate))

	shard, err := s.allocator.Allocate(ctx, baseID, estimate)
	if err != nil {
		s.opErrors.Inc()
		return "", err
	}

	writtenID, err := s.remote.AddField(ctx, s.options.collection, shard.ID, key, value)
	if err != nil {
		s.opErrors.Inc()
		return "", errors.Wrapf(err, "failed to add entry %s into shard %s", key, shard.ID)
	}

	timer.Done()
	return writtenID, nil
}

func (s *storeImpl) UpdateEntry(ctx context.Context, baseID string, key string, value []byte) error {
	timer := s.updateLatency.Timer()

	shard, err := s.locator.Locate(ctx, baseID, key)
	if err != nil {
		s.opErrors.Inc()
		return err
	}

	if err = s.remote.UpdateField(ctx, s.options.collection, shard.ID, key, value); err != nil {
		s.opErrors.Inc()
		if errors.Is(err, docstore.ErrDocumentNotFound) || errors.Is(err, docstore.ErrFieldNotFound) {
			// The key vanished between the containment check and the update
			return ErrKeyNotFound
		}
		return errors.Wrapf(err, "failed to update entry %s in shard %s", key, shard.ID)
	}

	timer.Done()
	return nil
}

func (s *storeImpl) ReadEntry(ctx context.Context, baseID string, key string) ([]byte, error) {
	timer := s.readLatency.Timer()

	value, err := s.readRemote(ctx, baseID, key)
	if err == nil {
		s.mirrorEntry(ctx, baseID, key, value)
		timer.Done()
		return value, nil
	}

	s.log.Warn(
		"Remote read failed, falling back to the offline cache",
		slog.String("base-id", baseID),
		slog.String("key", key),
		slog.Any("error", err),
	)

	if s.offline == nil {
		s.opErrors.Inc()
		return nil, err
	}

	snapshot, cacheErr := s.offline.Lookup(ctx, baseID, key)
	if cacheErr != nil {
		s.log.Warn(
			"Offline cache could not serve the entry",
			slog.String("base-id", baseID),
			slog.String("key", key),
			slog.Any("error", cacheErr),
		)
		s.opErrors.Inc()
		// Surface the remote failure, not the cache miss
		return nil, err
	}

	s.fallbackReads.Inc()
	return snapshot.Value, nil
}

func (s *storeImpl) readRemote(ctx context.Context, baseID string, key string) ([]byte, error) {
	shard, err := s.locator.Locate(ctx, baseID, key)
	if err != nil {
		return nil, err
	}

	value, err := s.remote.GetField(ctx, s.options.collection, shard.ID, key)
	if err != nil {
		if errors.Is(err, docstore.ErrDocumentNotFound) || errors.Is(err, docstore.ErrFieldNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "failed to read entry %s from shard %s", key, shard.ID)
	}
	return value, nil
}

// mirrorEntry copies a freshly read value into the offline cache, when there
// is one and the policy allows it. Mirroring is best-effort and never fails
// the read.
func (s *storeImpl) mirrorEntry(ctx context.Context, baseID string, key string, value []byte) {
	if s.offline == nil {
		return
	}
	if err := s.offline.Mirror(ctx, baseID, key, value); err != nil {
		if errors.Is(err, ErrCacheNotPermitted) {
			return
		}
		s.log.Warn(
			"Failed to mirror entry into the offline cache",
			slog.String("base-id", baseID),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func (s *storeImpl) ReadAllEntries(ctx context.Context, baseID string) (map[string][]byte, error) {
	timer := s.readAllLatency.Timer()

	chain := s.arena.chain(baseID)
	entries := map[string][]byte{}
	for index := 1; index <= s.options.chainLimit; index++ {
		shard := chain.shard(index)

		exists, err := s.remote.Exists(ctx, s.options.collection, shard.ID)
		if err != nil {
			s.opErrors.Inc()
			return nil, errors.Wrapf(err, "failed to check existence of shard %s", shard.ID)
		}
		if !exists {
			timer.Done()
			return entries, nil
		}

		fields, err := s.remote.GetDocument(ctx, s.options.collection, shard.ID)
		if err != nil {
			if errors.Is(err, docstore.ErrDocumentNotFound) {
				// The shard vanished since the existence check
				timer.Done()
				return entries, nil
			}
			s.opErrors.Inc()
			return nil, errors.Wrapf(err, "failed to read shard %s", shard.ID)
		}
		for key, value := range fields {
			entries[key] = value
		}
	}

	s.log.Warn(
		"Shard chain limit reached while reading all entries",
		slog.String("base-id", baseID),
		slog.Int("chain-limit", s.options.chainLimit),
	)
	return entries, ErrChainExhausted
}

func (s *storeImpl) BatchUpdate(ctx context.Context, baseID string, entries map[string][]byte) (int, error) {
	succeeded := 0
	var errs error
	for key, value := range entries {
		if err := s.UpdateEntry(ctx, baseID, key, value); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "key %s", key))
			continue
		}
		succeeded++
	}
	return succeeded, errs
}
