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

	"github.com/streamnative/docspan/docstore"
)

// ShardLocator finds which shard of a chain currently holds a key. Every call
// re-scans the chain from the first shard; nothing is remembered between
// calls, so a key moved by a concurrent writer is still found.
type ShardLocator struct {
	remote     docstore.Store
	collection string
	arena      *chainArena
	chainLimit int

	log *slog.Logger
}

func NewShardLocator(remote docstore.Store, options ...ClientOption) (*ShardLocator, error) {
	clientOpts, err := newClientOptions(options...)
	if err != nil {
		return nil, err
	}
	return newShardLocator(remote, clientOpts, newChainArena(clientOpts.layout)), nil
}

func newShardLocator(remote docstore.Store, options clientOptions, arena *chainArena) *ShardLocator {
	return &ShardLocator{
		remote:     remote,
		collection: options.collection,
		arena:      arena,
		chainLimit: options.chainLimit,
		log: slog.With(
			slog.String("component", "shard-locator"),
			slog.String("collection", options.collection),
		),
	}
}

// Locate returns the shard holding key, or ErrKeyNotFound once the end of the
// chain is reached without finding it. Each scanned shard costs up to two
// remote round trips: a containment check, then an existence check to decide
// whether the chain continues.
func (l *ShardLocator) Locate(ctx context.Context, baseID string, key string) (ShardRef, error) {
	chain := l.arena.chain(baseID)
	for index := 1; index <= l.chainLimit; index++ {
		shard := chain.shard(index)

		contained, err := l.remote.ContainsField(ctx, l.collection, shard.ID, key)
		if err != nil {
			return ShardRef{}, errors.Wrapf(err, "failed to check key in shard %s", shard.ID)
		}
		if contained {
			return shard, nil
		}

		exists, err := l.remote.Exists(ctx, l.collection, shard.ID)
		if err != nil {
			return ShardRef{}, errors.Wrapf(err, "failed to check existence of shard %s", shard.ID)
		}
		if !exists {
			// End of the chain: the key is nowhere
			return ShardRef{}, ErrKeyNotFound
		}
	}

	l.log.Warn(
		"Shard chain limit reached while locating key",
		slog.String("base-id", baseID),
		slog.String("key", key),
		slog.Int("chain-limit", l.chainLimit),
	)
	return ShardRef{}, ErrChainExhausted
}
