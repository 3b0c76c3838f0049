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
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrDocumentNotFound is returned when the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrFieldNotFound is returned when the document exists but does not hold
	// the requested field.
	ErrFieldNotFound = errors.New("field not found")

	// ErrDocumentTooLarge is returned when a write would push the document
	// past the store's hard size limit.
	ErrDocumentTooLarge = errors.New("document too large")
)

// SizeInfo describes the current storage footprint of a single document.
//
// EstimatedBytes is a heuristic maintained by the store on every field
// addition. It is not an exact serialized size and it never shrinks when
// fields are overwritten or deleted.
type SizeInfo struct {
	EstimatedBytes int64
	FieldCount     int
}

// Store is the contract of a remote document store organized in collections
// of documents, each document holding a flat map of field -> opaque value.
//
// A Store implementation is expected to treat documents as implicitly
// created: AddField on a document that does not exist yet will create it.
type Store interface {
	io.Closer

	// Exists checks whether the document is present in the collection.
	Exists(ctx context.Context, collection string, docID string) (bool, error)

	// ContainsField checks whether the document holds the given field,
	// without retrieving its value. A missing document yields (false, nil).
	ContainsField(ctx context.Context, collection string, docID string, field string) (bool, error)

	// SizeInfo returns the size estimate of the document.
	// Returns ErrDocumentNotFound if the document does not exist.
	SizeInfo(ctx context.Context, collection string, docID string) (SizeInfo, error)

	// AddField appends a field to the document, creating the document if
	// needed, and returns the identifier under which the field was written.
	AddField(ctx context.Context, collection string, docID string, field string, value []byte) (string, error)

	// UpdateField overwrites the value of an existing field.
	// Returns ErrDocumentNotFound or ErrFieldNotFound if the target is absent.
	UpdateField(ctx context.Context, collection string, docID string, field string, value []byte) error

	// GetField reads a single field value.
	// Returns ErrDocumentNotFound or ErrFieldNotFound if the target is absent.
	GetField(ctx context.Context, collection string, docID string, field string) ([]byte, error)

	// GetDocument returns all the fields of the document.
	// Returns ErrDocumentNotFound if the document does not exist.
	GetDocument(ctx context.Context, collection string, docID string) (map[string][]byte, error)

	// DeleteField removes a field from the document. The document size
	// estimate is left untouched.
	// Returns ErrDocumentNotFound or ErrFieldNotFound if the target is absent.
	DeleteField(ctx context.Context, collection string, docID string, field string) error
}
