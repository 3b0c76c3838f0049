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

package standalone

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/docspan/common"
	"github.com/streamnative/docspan/common/metric"
	"github.com/streamnative/docspan/docstore"
)

const (
	// DefaultMaxDocumentBytes mirrors the per-document hard limit of the
	// hosted document stores this service stands in for.
	DefaultMaxDocumentBytes = 1_000_000
)

type FactoryOptions struct {
	// DataDir is the directory where the database files are stored.
	DataDir string

	// CacheSizeMB is the max size of the Pebble block cache.
	CacheSizeMB int64

	// InMemory makes the store use a transient in-memory filesystem.
	InMemory bool

	// MaxDocumentBytes is the hard per-document size limit enforced on
	// writes. Zero applies DefaultMaxDocumentBytes.
	MaxDocumentBytes int64
}

var DefaultFactoryOptions = &FactoryOptions{
	DataDir:          "data/docstore",
	CacheSizeMB:      128,
	MaxDocumentBytes: DefaultMaxDocumentBytes,
}

// documentMeta is the per-document size record, maintained on writes so that
// size probes never have to scan the document's fields.
type documentMeta struct {
	estimatedBytes int64
	fieldCount     int64
}

func encodeMeta(meta documentMeta) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf, uint64(meta.estimatedBytes))
	binary.BigEndian.PutUint64(buf[8:], uint64(meta.fieldCount))
	return buf
}

func decodeMeta(buf []byte) (documentMeta, error) {
	if len(buf) != 16 {
		return documentMeta{}, errors.Errorf("invalid document meta record: %d bytes", len(buf))
	}
	return documentMeta{
		estimatedBytes: int64(binary.BigEndian.Uint64(buf)),
		fieldCount:     int64(binary.BigEndian.Uint64(buf[8:])),
	}, nil
}

// Storage key layout, with all the user-supplied components path-escaped so
// they cannot contain a bare '/':
//
//	doc/{collection}/{docID}/m           -> documentMeta
//	doc/{collection}/{docID}/f/{field}   -> field value
func documentPrefix(collection, docID string) string {
	return "doc/" + url.PathEscape(collection) + "/" + url.PathEscape(docID)
}

func metaKey(collection, docID string) []byte {
	return []byte(documentPrefix(collection, docID) + "/m")
}

func fieldsPrefix(collection, docID string) string {
	return documentPrefix(collection, docID) + "/f/"
}

func fieldKey(collection, docID, field string) []byte {
	return []byte(fieldsPrefix(collection, docID) + url.PathEscape(field))
}

// PebbleStore is a docstore.Store persisted in a local Pebble database. It
// keeps the same write semantics as the hosted stores it stands in for: the
// per-document size estimate grows on every added field, never shrinks, and a
// write that would push the estimate past the hard limit is rejected with
// docstore.ErrDocumentTooLarge.
//
// Writes are serialized by a single mutex so the size record stays consistent
// with the fields. Reads go straight to the database.
type PebbleStore struct {
	writeLock sync.Mutex

	db    *pebble.DB
	cache *pebble.Cache

	maxDocumentBytes atomic.Int64

	dbMetrics func() *pebble.Metrics
	gauges    []metric.Gauge

	writeLatency       metric.LatencyHistogram
	readLatency        metric.LatencyHistogram
	documentSizes      metric.Histogram
	oversizeRejections metric.Counter
}

// NewPebbleStore opens (or creates) the document database in DataDir.
func NewPebbleStore(options *FactoryOptions) (*PebbleStore, error) {
	if options == nil {
		options = DefaultFactoryOptions
	}
	dataDir := options.DataDir
	if dataDir == "" {
		dataDir = DefaultFactoryOptions.DataDir
	}
	cacheSizeMB := options.CacheSizeMB
	if cacheSizeMB == 0 {
		cacheSizeMB = DefaultFactoryOptions.CacheSizeMB
	}
	maxDocumentBytes := options.MaxDocumentBytes
	if maxDocumentBytes == 0 {
		maxDocumentBytes = DefaultMaxDocumentBytes
	}

	cache := pebble.NewCache(cacheSizeMB * 1024 * 1024)
	pbOptions := &pebble.Options{
		Cache:        cache,
		MemTableSize: 64 * 1024 * 1024,
		Levels: []pebble.LevelOptions{
			{
				BlockSize:      32 * 1024,
				Compression:    pebble.NoCompression,
				TargetFileSize: 64 * 1024 * 1024,
			}, {
				BlockSize:      32 * 1024,
				Compression:    pebble.ZstdCompression,
				TargetFileSize: 128 * 1024 * 1024,
			},
		},
		FS: vfs.Default,
		Logger: &pebbleLogger{
			slog.With(
				slog.String("component", "document-store"),
			),
		},

		FormatMajorVersion: pebble.FormatNewest,
	}
	if options.InMemory {
		pbOptions.FS = vfs.NewMem()
	}

	db, err := pebble.Open(dataDir, pbOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open document store at %s", dataDir)
	}

	labels := map[string]any{"component": "document-store"}
	s := &PebbleStore{
		db:    db,
		cache: cache,

		writeLatency: metric.NewLatencyHistogram("docspan_standalone_write_latency",
			"The latency of document store writes", labels),
		readLatency: metric.NewLatencyHistogram("docspan_standalone_read_latency",
			"The latency of document store reads", labels),
		documentSizes: metric.NewBytesHistogram("docspan_standalone_document_size",
			"The estimated document sizes after each write", labels),
		oversizeRejections: metric.NewCounter("docspan_standalone_oversize_rejections",
			"The count of writes rejected for exceeding the document size limit", "count", labels),
	}
	s.maxDocumentBytes.Store(maxDocumentBytes)

	s.dbMetrics = common.Memoize(func() *pebble.Metrics {
		return s.db.Metrics()
	}, 5*time.Second)

	s.gauges = []metric.Gauge{
		metric.NewGauge("docspan_standalone_pebble_disk_space",
			"The total size of all the document store db files",
			metric.Bytes, labels, func() int64 {
				return int64(s.dbMetrics().DiskSpaceUsage())
			}),
		metric.NewGauge("docspan_standalone_pebble_num_files_total",
			"The total number of files for the document store db",
			"count", labels, func() int64 {
				return s.dbMetrics().Total().NumFiles
			}),
		metric.NewGauge("docspan_standalone_pebble_block_cache_used",
			"The size of the block cache used by the document store db",
			metric.Bytes, labels, func() int64 {
				return s.dbMetrics().BlockCache.Size
			}),
	}

	return s, nil
}

// MaxDocumentBytes returns the currently enforced per-document size limit.
func (s *PebbleStore) MaxDocumentBytes() int64 {
	return s.maxDocumentBytes.Load()
}

// SetMaxDocumentBytes changes the per-document size limit for subsequent
// writes. Existing documents are never truncated.
func (s *PebbleStore) SetMaxDocumentBytes(limit int64) {
	s.maxDocumentBytes.Store(limit)
}

func (s *PebbleStore) Close() error {
	for _, g := range s.gauges {
		g.Unregister()
	}

	err := multierr.Combine(
		s.db.Flush(),
		s.db.Close(),
	)
	s.cache.Unref()
	return err
}

func (s *PebbleStore) hasKey(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (s *PebbleStore) getValue(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, closer.Close()
}

func (s *PebbleStore) readMeta(collection, docID string) (documentMeta, bool, error) {
	buf, err := s.getValue(metaKey(collection, docID))
	if errors.Is(err, pebble.ErrNotFound) {
		return documentMeta{}, false, nil
	}
	if err != nil {
		return documentMeta{}, false, errors.Wrapf(err, "failed to read size record of %s", docID)
	}
	meta, err := decodeMeta(buf)
	if err != nil {
		return documentMeta{}, false, errors.Wrapf(err, "document %s", docID)
	}
	return meta, true, nil
}

func (s *PebbleStore) Exists(_ context.Context, collection, docID string) (bool, error) {
	return s.hasKey(metaKey(collection, docID))
}

func (s *PebbleStore) ContainsField(_ context.Context, collection, docID, field string) (bool, error) {
	return s.hasKey(fieldKey(collection, docID, field))
}

func (s *PebbleStore) SizeInfo(_ context.Context, collection, docID string) (docstore.SizeInfo, error) {
	meta, found, err := s.readMeta(collection, docID)
	if err != nil {
		return docstore.SizeInfo{}, err
	}
	if !found {
		return docstore.SizeInfo{}, docstore.ErrDocumentNotFound
	}
	return docstore.SizeInfo{
		EstimatedBytes: meta.estimatedBytes,
		FieldCount:     int(meta.fieldCount),
	}, nil
}

func (s *PebbleStore) AddField(_ context.Context, collection, docID, field string, value []byte) (string, error) {
	timer := s.writeLatency.Timer()
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	meta, _, err := s.readMeta(collection, docID)
	if err != nil {
		return "", err
	}
	key := fieldKey(collection, docID, field)
	overwrite, err := s.hasKey(key)
	if err != nil {
		return "", err
	}

	// The estimate grows on overwrites too, matching the hosted stores
	meta.estimatedBytes += int64(len(field) + len(value))
	if !overwrite {
		meta.fieldCount++
	}
	if meta.estimatedBytes > s.maxDocumentBytes.Load() {
		s.oversizeRejections.Inc()
		return "", errors.Wrapf(docstore.ErrDocumentTooLarge,
			"document %s would reach %d bytes", docID, meta.estimatedBytes)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err = batch.Set(key, value, nil); err != nil {
		return "", err
	}
	if err = batch.Set(metaKey(collection, docID), encodeMeta(meta), nil); err != nil {
		return "", err
	}
	if err = batch.Commit(pebble.Sync); err != nil {
		return "", errors.Wrapf(err, "failed to write field %s of %s", field, docID)
	}

	s.documentSizes.Record(int(meta.estimatedBytes))
	timer.Done()
	return docID + "/" + field, nil
}

func (s *PebbleStore) UpdateField(_ context.Context, collection, docID, field string, value []byte) error {
	timer := s.writeLatency.Timer()
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	_, found, err := s.readMeta(collection, docID)
	if err != nil {
		return err
	}
	if !found {
		return docstore.ErrDocumentNotFound
	}
	key := fieldKey(collection, docID, field)
	exists, err := s.hasKey(key)
	if err != nil {
		return err
	}
	if !exists {
		return docstore.ErrFieldNotFound
	}

	// Overwrites leave the size estimate untouched
	if err = s.db.Set(key, value, pebble.Sync); err != nil {
		return errors.Wrapf(err, "failed to update field %s of %s", field, docID)
	}
	timer.Done()
	return nil
}

func (s *PebbleStore) GetField(_ context.Context, collection, docID, field string) ([]byte, error) {
	timer := s.readLatency.Timer()

	value, err := s.getValue(fieldKey(collection, docID, field))
	if errors.Is(err, pebble.ErrNotFound) {
		exists, err := s.hasKey(metaKey(collection, docID))
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, docstore.ErrDocumentNotFound
		}
		return nil, docstore.ErrFieldNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read field %s of %s", field, docID)
	}

	timer.Done()
	return value, nil
}

func (s *PebbleStore) GetDocument(_ context.Context, collection, docID string) (map[string][]byte, error) {
	timer := s.readLatency.Timer()

	exists, err := s.hasKey(metaKey(collection, docID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, docstore.ErrDocumentNotFound
	}

	prefix := fieldsPrefix(collection, docID)
	// '0' is the byte right after '/', so this bounds the fields sub-range
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(documentPrefix(collection, docID) + "/f0"),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan document %s", docID)
	}
	defer it.Close()

	fields := map[string][]byte{}
	for it.First(); it.Valid(); it.Next() {
		field, err := url.PathUnescape(strings.TrimPrefix(string(it.Key()), prefix))
		if err != nil {
			return nil, errors.Wrapf(err, "malformed field key in document %s", docID)
		}
		value := make([]byte, len(it.Value()))
		copy(value, it.Value())
		fields[field] = value
	}

	timer.Done()
	return fields, nil
}

func (s *PebbleStore) DeleteField(_ context.Context, collection, docID, field string) error {
	timer := s.writeLatency.Timer()
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	meta, found, err := s.readMeta(collection, docID)
	if err != nil {
		return err
	}
	if !found {
		return docstore.ErrDocumentNotFound
	}
	key := fieldKey(collection, docID, field)
	exists, err := s.hasKey(key)
	if err != nil {
		return err
	}
	if !exists {
		return docstore.ErrFieldNotFound
	}

	// The field goes away, the size estimate stays
	meta.fieldCount--
	batch := s.db.NewBatch()
	defer batch.Close()
	if err = batch.Delete(key, nil); err != nil {
		return err
	}
	if err = batch.Set(metaKey(collection, docID), encodeMeta(meta), nil); err != nil {
		return err
	}
	if err = batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "failed to delete field %s of %s", field, docID)
	}

	timer.Done()
	return nil
}
