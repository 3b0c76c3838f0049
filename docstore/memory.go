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
)

// Op identifies one Store operation, for test hooks and failure injection.
type Op string

const (
	OpExists        Op = "exists"
	OpContainsField Op = "contains-field"
	OpSizeInfo      Op = "size-info"
	OpAddField      Op = "add-field"
	OpUpdateField   Op = "update-field"
	OpGetField      Op = "get-field"
	OpGetDocument   Op = "get-document"
	OpDeleteField   Op = "delete-field"
)

type memoryDocument struct {
	fields         map[string][]byte
	estimatedBytes int64
}

// MemoryStore is an in-memory Store used in tests and examples.
//
// The optional hook is invoked at the beginning of every operation, before
// the internal lock is taken, so tests can coordinate the interleaving of
// concurrent operations.
type MemoryStore struct {
	sync.Mutex

	documents map[string]*memoryDocument
	hook      func(op Op, collection string, docID string)
	failures  map[Op]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*memoryDocument),
		failures:  make(map[Op]error),
	}
}

// WithHook registers a callback invoked at the start of every operation.
func (s *MemoryStore) WithHook(hook func(op Op, collection string, docID string)) *MemoryStore {
	s.Lock()
	defer s.Unlock()
	s.hook = hook
	return s
}

// FailWith makes every subsequent call of the given operation return err.
func (s *MemoryStore) FailWith(op Op, err error) {
	s.Lock()
	defer s.Unlock()
	s.failures[op] = err
}

// ClearFailures removes all injected failures.
func (s *MemoryStore) ClearFailures() {
	s.Lock()
	defer s.Unlock()
	s.failures = make(map[Op]error)
}

func (s *MemoryStore) enter(op Op, collection, docID string) error {
	s.Lock()
	hook := s.hook
	err := s.failures[op]
	s.Unlock()

	if hook != nil {
		hook(op, collection, docID)
	}
	return err
}

func documentKey(collection, docID string) string {
	return collection + "/" + docID
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, collection, docID string) (bool, error) {
	if err := s.enter(OpExists, collection, docID); err != nil {
		return false, err
	}

	s.Lock()
	defer s.Unlock()
	_, ok := s.documents[documentKey(collection, docID)]
	return ok, nil
}

func (s *MemoryStore) ContainsField(_ context.Context, collection, docID, field string) (bool, error) {
	if err := s.enter(OpContainsField, collection, docID); err != nil {
		return false, err
	}

	s.Lock()
	defer s.Unlock()
	doc, ok := s.documents[documentKey(collection, docID)]
	if !ok {
		return false, nil
	}
	_, ok = doc.fields[field]
	return ok, nil
}

func (s *MemoryStore) SizeInfo(_ context.Context, collection, docID string) (SizeInfo, error) {
	if err := s.enter(OpSizeInfo, collection, docID); err != nil {
		return SizeInfo{}, err
	}

	s.Lock()
	defer s.Unlock()
	doc, ok := s.documents[documentKey(collection, docID)]
	if !ok {
		return SizeInfo{}, ErrDocumentNotFound
	}
	return SizeInfo{
		EstimatedBytes: doc.estimatedBytes,
		FieldCount:     len(doc.fields),
	}, nil
}

func (s *MemoryStore) AddField(_ context.Context, collection, docID, field string, value []byte) (string, error) {
	if err := s.enter(OpAddField, collection, docID); err != nil {
		return "", err
	}

	s.Lock()
	defer s.Unlock()
	key := documentKey(collection, docID)
	doc, ok := s.documents[key]
	if !ok {
		doc = &memoryDocument{fields: make(map[string][]byte)}
		s.documents[key] = doc
	}

	doc.fields[field] = value
	// The estimate only ever grows, even when a field is overwritten
	doc.estimatedBytes += int64(len(field) + len(value))
	return docID + "/" + field, nil
}

func (s *MemoryStore) UpdateField(_ context.Context, collection, docID, field string, value []byte) error {
	if err := s.enter(OpUpdateField, collection, docID); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	doc, ok := s.documents[documentKey(collection, docID)]
	if !ok {
		return ErrDocumentNotFound
	}
	if _, ok = doc.fields[field]; !ok {
		return ErrFieldNotFound
	}
	doc.fields[field] = value
	return nil
}

func (s *MemoryStore) GetField(_ context.Context, collection, docID, field string) ([]byte, error) {
	if err := s.enter(OpGetField, collection, docID); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()
	doc, ok := s.documents[documentKey(collection, docID)]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	value, ok := doc.fields[field]
	if !ok {
		return nil, ErrFieldNotFound
	}
	return value, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, collection, docID string) (map[string][]byte, error) {
	if err := s.enter(OpGetDocument, collection, docID); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()
	doc, ok := s.documents[documentKey(collection, docID)]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	fields := make(map[string][]byte, len(doc.fields))
	for k, v := range doc.fields {
		fields[k] = v
	}
	return fields, nil
}

func (s *MemoryStore) DeleteField(_ context.Context, collection, docID, field string) error {
	if err := s.enter(OpDeleteField, collection, docID); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	doc, ok := s.documents[documentKey(collection, docID)]
	if !ok {
		return ErrDocumentNotFound
	}
	if _, ok = doc.fields[field]; !ok {
		return ErrFieldNotFound
	}
	// Deletions do not shrink the size estimate
	delete(doc.fields, field)
	return nil
}
