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
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/juju/fslock"
	"github.com/pkg/errors"

	"github.com/streamnative/docspan/common"
)

const slotFormatVersion = "1"

// ErrCorruptedSlot is returned when a slot file fails its integrity check.
var ErrCorruptedSlot = errors.New("corrupted slot file")

type slotContainer struct {
	Version  string `json:"version"`
	Payload  []byte `json:"payload"`
	Checksum string `json:"checksum"`
}

// fileSlotStore keeps one file per slot, so the cache can be shared between
// processes. Writers take a file lock per slot to prevent clobbering each
// other; the checksum catches torn writes from crashed processes.
type fileSlotStore struct {
	sync.Mutex

	dir   string
	locks map[string]*fslock.Lock
}

func NewFileSlotStore(dir string) (SlotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %s", dir)
	}
	return &fileSlotStore{
		dir:   dir,
		locks: map[string]*fslock.Lock{},
	}, nil
}

func (f *fileSlotStore) Close() error {
	return nil
}

func (f *fileSlotStore) slotPath(slot string) string {
	return filepath.Join(f.dir, url.PathEscape(slot)+".json")
}

func (f *fileSlotStore) slotLock(slot string) *fslock.Lock {
	f.Lock()
	defer f.Unlock()

	lock, ok := f.locks[slot]
	if !ok {
		lock = fslock.New(f.slotPath(slot))
		f.locks[slot] = lock
	}
	return lock
}

func (f *fileSlotStore) Get(_ context.Context, slot string) ([]byte, error) {
	content, err := os.ReadFile(f.slotPath(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	if len(content) == 0 {
		return nil, ErrSlotNotFound
	}

	container := slotContainer{}
	if err = json.Unmarshal(content, &container); err != nil {
		return nil, ErrCorruptedSlot
	}
	if container.Version != slotFormatVersion {
		return nil, ErrCorruptedSlot
	}
	if payloadChecksum(container.Payload) != container.Checksum {
		return nil, ErrCorruptedSlot
	}
	return container.Payload, nil
}

func (f *fileSlotStore) Put(_ context.Context, slot string, value []byte) error {
	lock := f.slotLock(slot)
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "failed to acquire file lock for slot %s", slot)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn(
				"Failed to release file lock on cache slot",
				slog.String("slot", slot),
				slog.Any("error", err),
			)
		}
	}()

	content, err := json.Marshal(slotContainer{
		Version:  slotFormatVersion,
		Payload:  value,
		Checksum: payloadChecksum(value),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(f.slotPath(slot), content, 0640)
}

func payloadChecksum(payload []byte) string {
	return strconv.FormatUint(common.Xxh364(payload), 16)
}
