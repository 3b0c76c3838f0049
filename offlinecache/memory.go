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
	"sync"
)

type memorySlotStore struct {
	sync.Mutex
	slots map[string][]byte
}

// NewMemorySlotStore creates a non-persistent SlotStore, useful in tests.
func NewMemorySlotStore() SlotStore {
	return &memorySlotStore{
		slots: make(map[string][]byte),
	}
}

func (s *memorySlotStore) Close() error {
	return nil
}

func (s *memorySlotStore) Get(_ context.Context, slot string) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	value, ok := s.slots[slot]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *memorySlotStore) Put(_ context.Context, slot string, value []byte) error {
	s.Lock()
	defer s.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.slots[slot] = stored
	return nil
}
