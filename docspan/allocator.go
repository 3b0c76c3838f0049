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

// ShardAllocator picks the shard a new entry will be written into: the first
// shard of the chain whose estimated size still leaves room for the incoming
// entry, plus the configured headroom. A shard that does not exist yet always
// has room, since the write will create it.
//
// Allocation is optimistic. The size probe and the subsequent write are
// separate remote calls with no reservation in between, so concurrent adds
// can pick the same shard and jointly overflow it.
type ShardAllocator struct {
	remote        docstore.Store
	collection    string
	arena         *chainArena
	maxShardBytes int64
	headroom      int64
	chainLimit    int

	log *slog.Logger
}

func NewShardAllocator(remote docstore.Store, options ...ClientOption) (*ShardAllocator, error) {
	clientOpts, err := newClientOptions(options...)
	if err != nil {
		return nil, err
	}
	return newShardAllocator(remote, clientOpts, newChainArena(clientOpts.layout)), nil
}

func newShardAllocator(remote docstore.Store, options clientOptions, arena *chainArena) *ShardAllocator {
	return &ShardAllocator{
		remote:        remote,
		collection:    options.collection,
		arena:         arena,
		maxShardBytes: options.maxShardBytes,
		headroom:      options.headroom,
		chainLimit:    options.chainLimit,
		log: slog.With(
			slog.String("component", "shard-allocator"),
			slog.String("collection", options.collection),
		),
	}
}

// Allocate returns the shard the entry should be written into.
//
// When a size probe fails the allocator fails open: it logs the failure and
// returns the first shard of the chain instead of propagating the error, so
// writes never hard-fail on a probe. The cost is that capacity accounting is
// skipped for that write.
func (a *ShardAllocator) Allocate(ctx context.Context, baseID string, incomingEstimate int64) (ShardRef, error) {
	chain := a.arena.chain(baseID)
	for index := 1; index <= a.chainLimit; index++ {
		shard := chain.shard(index)

		info, err := a.remote.SizeInfo(ctx, a.collection, shard.ID)
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			// The write creates the shard
			return shard, nil
		}
		if err != nil {
			a.log.Warn(
				"Shard size probe failed, falling back to the first shard",
				slog.String("base-id", baseID),
				slog.String("shard", shard.ID),
				slog.Any("error", err),
			)
			return chain.shard(1), nil
		}

		if info.EstimatedBytes+incomingEstimate < a.maxShardBytes-a.headroom {
			return shard, nil
		}
	}

	a.log.Warn(
		"Shard chain limit reached without finding capacity",
		slog.String("base-id", baseID),
		slog.Int("chain-limit", a.chainLimit),
		slog.Int64("incoming-estimate", incomingEstimate),
	)
	return ShardRef{}, ErrChainExhausted
}
