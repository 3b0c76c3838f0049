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
	"strconv"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"

	"github.com/streamnative/docspan/docstore"
)

// ChainLayout is the naming scheme mapping a chain index to a physical shard
// document id. Two historical schemes exist in the wild and reading data
// written under one with the other makes every key unfindable, so the layout
// is an explicit per-collection choice.
type ChainLayout string

const (
	// LayoutUnderscore names shard 1 with the bare base id and shard n with
	// `{base}_{n}`. This is the scheme of the historical write path and the
	// default for new collections.
	LayoutUnderscore ChainLayout = "underscore"

	// LayoutSuffix names shard n with `{base}{n}`, first shard included.
	LayoutSuffix ChainLayout = "suffix"
)

// DefaultChainLayout is used when no layout is configured.
const DefaultChainLayout = LayoutUnderscore

func (l ChainLayout) Validate() error {
	switch l {
	case LayoutUnderscore, LayoutSuffix:
		return nil
	default:
		return ErrInvalidOptionChainLayout
	}
}

// ShardID returns the physical document id of the shard at the given chain
// index (1-based). The mapping is deterministic and must stay bit-for-bit
// stable: existing data is addressed by these names.
func (l ChainLayout) ShardID(baseID string, index int) string {
	switch l {
	case LayoutSuffix:
		return baseID + strconv.Itoa(index)
	default:
		if index == 1 {
			return baseID
		}
		return baseID + "_" + strconv.Itoa(index)
	}
}

// ShardRef is a handle to one shard document within a chain.
type ShardRef struct {
	BaseID string
	Index  int
	ID     string
}

// shardChain is the ordered, sparse arena of shard handles for one base id.
// It memoizes index-to-name translation only; it never records where a key
// lives, since every lookup must re-scan the remote chain.
type shardChain struct {
	sync.Mutex

	baseID string
	layout ChainLayout
	shards *treemap.Map
}

func newShardChain(baseID string, layout ChainLayout) *shardChain {
	return &shardChain{
		baseID: baseID,
		layout: layout,
		shards: treemap.NewWithIntComparator(),
	}
}

func (c *shardChain) shard(index int) ShardRef {
	c.Lock()
	defer c.Unlock()

	if ref, found := c.shards.Get(index); found {
		return ref.(ShardRef)
	}
	ref := ShardRef{
		BaseID: c.baseID,
		Index:  index,
		ID:     c.layout.ShardID(c.baseID, index),
	}
	c.shards.Put(index, ref)
	return ref
}

// chainArena hands out the shard chain of each base id. All shard naming in
// the engine goes through here; callers never address a shard by a guessed
// name.
type chainArena struct {
	sync.Mutex

	layout ChainLayout
	chains map[string]*shardChain
}

func newChainArena(layout ChainLayout) *chainArena {
	return &chainArena{
		layout: layout,
		chains: map[string]*shardChain{},
	}
}

func (a *chainArena) chain(baseID string) *shardChain {
	a.Lock()
	defer a.Unlock()

	chain, ok := a.chains[baseID]
	if !ok {
		chain = newShardChain(baseID, a.layout)
		a.chains[baseID] = chain
	}
	return chain
}

// ShardStat pairs a shard handle with its current size info.
type ShardStat struct {
	Ref  ShardRef
	Info docstore.SizeInfo
}

// ChainStats walks the chain of baseID, returning the size info of every
// existing shard in chain order. The walk stops at the first missing shard,
// or with ErrChainExhausted (and the stats gathered so far) once limit shards
// were probed.
func ChainStats(ctx context.Context, remote docstore.Store, collection string, baseID string,
	layout ChainLayout, limit int) ([]ShardStat, error) {
	chain := newShardChain(baseID, layout)
	var stats []ShardStat
	for index := 1; index <= limit; index++ {
		shard := chain.shard(index)
		info, err := remote.SizeInfo(ctx, collection, shard.ID)
		if errors.Is(err, docstore.ErrDocumentNotFound) {
			return stats, nil
		}
		if err != nil {
			return stats, errors.Wrapf(err, "failed to probe shard %s", shard.ID)
		}
		stats = append(stats, ShardStat{Ref: shard, Info: info})
	}
	return stats, ErrChainExhausted
}
