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

// Package offlinecache provides the local persistent storage used as the
// last-resort fallback when the remote document store is unreachable.
//
// The unit of storage is a named slot holding one opaque value. Callers keep
// a whole map of cached entries in a single slot, so concurrent writers to
// the same slot race on a read-modify-write of the entire value.
package offlinecache

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrSlotNotFound is returned by Get when the slot has never been written.
var ErrSlotNotFound = errors.New("slot not found")

// SlotStore is a local cache of named slots.
type SlotStore interface {
	io.Closer

	// Get returns the current value of the slot.
	Get(ctx context.Context, slot string) ([]byte, error)

	// Put replaces the value of the slot.
	Put(ctx context.Context, slot string, value []byte) error
}
