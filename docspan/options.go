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
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/docspan/auth"
	"github.com/streamnative/docspan/common"
	"github.com/streamnative/docspan/offlinecache"
)

const (
	DefaultCollection = "docspan"

	// DefaultMaxShardBytes stays conservatively below the ~1MB document cap
	// of typical hosted stores, since shard sizes are estimates.
	DefaultMaxShardBytes = 900_000

	// DefaultAllocationHeadroom is the slack kept free in a shard when
	// deciding whether another entry still fits. It matches the largest
	// per-kind size estimate.
	DefaultAllocationHeadroom = 2_000

	// DefaultChainLimit caps how many shards any chain walk will probe.
	DefaultChainLimit = 100
)

var (
	ErrInvalidOptionCollection    = errors.New("Collection cannot be empty")
	ErrInvalidOptionChainLayout   = errors.New("ChainLayout must be either underscore or suffix")
	ErrInvalidOptionMaxShardBytes = errors.New("MaxShardBytes must be greater than zero")
	ErrInvalidOptionHeadroom      = errors.New("AllocationHeadroom cannot be negative")
	ErrInvalidOptionChainLimit    = errors.New("ChainLimit must be greater than zero")
	ErrInvalidOptionIdentity      = errors.New("Identity must be non-empty")
	ErrInvalidOptionOfflineCache  = errors.New("OfflineCache cannot be empty")
	ErrInvalidOptionCachePolicy   = errors.New("CachePolicy cannot be empty")
	ErrInvalidOptionSizeEstimate  = errors.New("SizeEstimate must be greater than zero")
	ErrInvalidOptionClock         = errors.New("Clock cannot be empty")

	ErrMissingCachePolicy = errors.New("CachePolicy is required when an offline cache is configured")
)

// clientOptions contains options for the docspan client.
type clientOptions struct {
	collection       string
	layout           ChainLayout
	maxShardBytes    int64
	headroom         int64
	chainLimit       int
	identity         string
	identityProvider func() string
	offlineCache     offlinecache.SlotStore
	cachePolicy      auth.CachePolicy
	estimates        map[EntryKind]int64
	clock            common.Clock
}

func defaultIdentity() string {
	return uuid.NewString()
}

// ClientOption is an interface for applying docspan client options.
type ClientOption interface {
	// apply is used to set a ClientOption value of a clientOptions.
	apply(option clientOptions) (clientOptions, error)
}

func newClientOptions(opts ...ClientOption) (clientOptions, error) {
	options := clientOptions{
		collection:    DefaultCollection,
		layout:        DefaultChainLayout,
		maxShardBytes: DefaultMaxShardBytes,
		headroom:      DefaultAllocationHeadroom,
		chainLimit:    DefaultChainLimit,
		identity:      defaultIdentity(),
		estimates:     defaultEstimates(),
		clock:         common.SystemClock(),
	}
	var errs error
	var err error
	for _, o := range opts {
		options, err = o.apply(options)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return options, errs
}

type clientOptionFunc func(clientOptions) (clientOptions, error)

func (f clientOptionFunc) apply(c clientOptions) (clientOptions, error) {
	return f(c)
}

// WithCollection sets the remote collection holding the shard documents.
// If not set, the client will be using the `docspan` collection.
func WithCollection(collection string) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if collection == "" {
			return options, ErrInvalidOptionCollection
		}
		options.collection = collection
		return options, nil
	})
}

// WithChainLayout selects the naming scheme for this collection's shard
// chains. The layout must match the one the collection's data was written
// with; changing it on existing data makes every key unfindable.
func WithChainLayout(layout ChainLayout) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if err := layout.Validate(); err != nil {
			return options, err
		}
		options.layout = layout
		return options, nil
	})
}

// WithMaxShardBytes sets the estimated-size capacity of a single shard.
func WithMaxShardBytes(maxShardBytes int64) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if maxShardBytes <= 0 {
			return options, ErrInvalidOptionMaxShardBytes
		}
		options.maxShardBytes = maxShardBytes
		return options, nil
	})
}

// WithAllocationHeadroom sets the slack kept free when picking a shard for a
// new entry. A value of zero disables the headroom.
func WithAllocationHeadroom(headroom int64) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if headroom < 0 {
			return options, ErrInvalidOptionHeadroom
		}
		options.headroom = headroom
		return options, nil
	})
}

// WithChainLimit bounds how many shards a single chain walk will probe before
// giving up with ErrChainExhausted.
func WithChainLimit(chainLimit int) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if chainLimit <= 0 {
			return options, ErrInvalidOptionChainLimit
		}
		options.chainLimit = chainLimit
		return options, nil
	})
}

// WithIdentity sets a fixed caller identity presented to the caching policy.
// If not set, a random identity is generated.
func WithIdentity(identity string) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if identity == "" {
			return options, ErrInvalidOptionIdentity
		}
		options.identity = identity
		return options, nil
	})
}

// WithIdentityProvider sets a callback producing the caller identity for each
// policy check, for callers whose credentials rotate (eg. bearer tokens).
func WithIdentityProvider(identityProvider func() string) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if identityProvider == nil {
			return options, ErrInvalidOptionIdentity
		}
		options.identityProvider = identityProvider
		return options, nil
	})
}

// WithOfflineCache enables the offline fallback for ReadEntry, mirroring
// successfully read entries into the given slot store. A caching policy must
// be configured as well.
func WithOfflineCache(slots offlinecache.SlotStore) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if slots == nil {
			return options, ErrInvalidOptionOfflineCache
		}
		options.offlineCache = slots
		return options, nil
	})
}

// WithCachePolicy sets the policy deciding which callers may use the offline
// cache.
func WithCachePolicy(policy auth.CachePolicy) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if policy == nil {
			return options, ErrInvalidOptionCachePolicy
		}
		options.cachePolicy = policy
		return options, nil
	})
}

// WithSizeEstimate overrides or adds the size estimate for an entry kind.
func WithSizeEstimate(kind EntryKind, sizeBytes int64) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if sizeBytes <= 0 {
			return options, ErrInvalidOptionSizeEstimate
		}
		options.estimates[kind] = sizeBytes
		return options, nil
	})
}

// WithClock overrides the clock used to timestamp cache snapshots.
func WithClock(clock common.Clock) ClientOption {
	return clientOptionFunc(func(options clientOptions) (clientOptions, error) {
		if clock == nil {
			return options, ErrInvalidOptionClock
		}
		options.clock = clock
		return options, nil
	})
}
