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

package docstore

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreAddAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	writtenID, err := s.AddField(ctx, "attendance", "ATTEND_CS101", "MAT/2020/001", []byte("present"))
	assert.NoError(t, err)
	assert.Equal(t, "ATTEND_CS101/MAT/2020/001", writtenID)

	value, err := s.GetField(ctx, "attendance", "ATTEND_CS101", "MAT/2020/001")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), value)

	assert.NoError(t, s.Close())
}

func TestMemoryStoreExistsAndContains(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	exists, err := s.Exists(ctx, "attendance", "ATTEND_CS101")
	assert.NoError(t, err)
	assert.False(t, exists)

	contains, err := s.ContainsField(ctx, "attendance", "ATTEND_CS101", "k")
	assert.NoError(t, err)
	assert.False(t, contains)

	_, err = s.AddField(ctx, "attendance", "ATTEND_CS101", "k", []byte("v"))
	assert.NoError(t, err)

	exists, err = s.Exists(ctx, "attendance", "ATTEND_CS101")
	assert.NoError(t, err)
	assert.True(t, exists)

	contains, err = s.ContainsField(ctx, "attendance", "ATTEND_CS101", "k")
	assert.NoError(t, err)
	assert.True(t, contains)

	contains, err = s.ContainsField(ctx, "attendance", "ATTEND_CS101", "other")
	assert.NoError(t, err)
	assert.False(t, contains)
}

func TestMemoryStoreSizeEstimate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.SizeInfo(ctx, "c", "doc")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = s.AddField(ctx, "c", "doc", "key", []byte("value"))
	assert.NoError(t, err)

	info, err := s.SizeInfo(ctx, "c", "doc")
	assert.NoError(t, err)
	assert.EqualValues(t, len("key")+len("value"), info.EstimatedBytes)
	assert.Equal(t, 1, info.FieldCount)

	// Overwriting through AddField keeps growing the estimate
	_, err = s.AddField(ctx, "c", "doc", "key", []byte("value"))
	assert.NoError(t, err)

	info, err = s.SizeInfo(ctx, "c", "doc")
	assert.NoError(t, err)
	assert.EqualValues(t, 2*(len("key")+len("value")), info.EstimatedBytes)
	assert.Equal(t, 1, info.FieldCount)

	// Deletions do not shrink the estimate
	assert.NoError(t, s.DeleteField(ctx, "c", "doc", "key"))

	info, err = s.SizeInfo(ctx, "c", "doc")
	assert.NoError(t, err)
	assert.EqualValues(t, 2*(len("key")+len("value")), info.EstimatedBytes)
	assert.Equal(t, 0, info.FieldCount)
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.UpdateField(ctx, "c", "doc", "key", []byte("v"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = s.AddField(ctx, "c", "doc", "other", []byte("v"))
	assert.NoError(t, err)

	err = s.UpdateField(ctx, "c", "doc", "key", []byte("v"))
	assert.ErrorIs(t, err, ErrFieldNotFound)

	err = s.UpdateField(ctx, "c", "doc", "other", []byte("v2"))
	assert.NoError(t, err)

	value, err := s.GetField(ctx, "c", "doc", "other")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)
}

func TestMemoryStoreGetDocument(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "c", "doc")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = s.AddField(ctx, "c", "doc", "a", []byte("1"))
	assert.NoError(t, err)
	_, err = s.AddField(ctx, "c", "doc", "b", []byte("2"))
	assert.NoError(t, err)

	fields, err := s.GetDocument(ctx, "c", "doc")
	assert.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}, fields)

	// The returned map is a copy
	fields["c"] = []byte("3")
	contains, err := s.ContainsField(ctx, "c", "doc", "c")
	assert.NoError(t, err)
	assert.False(t, contains)
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	injected := errors.New("injected failure")
	s.FailWith(OpSizeInfo, injected)

	_, err := s.AddField(ctx, "c", "doc", "k", []byte("v"))
	assert.NoError(t, err)

	_, err = s.SizeInfo(ctx, "c", "doc")
	assert.ErrorIs(t, err, injected)

	s.ClearFailures()
	_, err = s.SizeInfo(ctx, "c", "doc")
	assert.NoError(t, err)
}

func TestMemoryStoreHook(t *testing.T) {
	var (
		mu  sync.Mutex
		ops []Op
	)
	s := NewMemoryStore().WithHook(func(op Op, _, _ string) {
		mu.Lock()
		defer mu.Unlock()
		ops = append(ops, op)
	})

	ctx := context.Background()
	_, err := s.AddField(ctx, "c", "doc", "k", []byte("v"))
	assert.NoError(t, err)
	_, err = s.GetField(ctx, "c", "doc", "k")
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Op{OpAddField, OpGetField}, ops)
}
