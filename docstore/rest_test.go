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
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamnative/docspan/common/security"
)

type staticToken string

func (t staticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

func TestRestStoreFieldRoundTrip(t *testing.T) {
	var lastAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/collections/attendance/documents/ATTEND_CS101/fields/MAT-2020-001",
		func(w http.ResponseWriter, r *http.Request) {
			lastAuth = r.Header.Get("Authorization")
			var req FieldRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []byte("present"), req.Value)
			_ = json.NewEncoder(w).Encode(AddResponse{WrittenID: "ATTEND_CS101/MAT-2020-001"})
		})
	mux.HandleFunc("GET /api/v1/collections/attendance/documents/ATTEND_CS101/fields/MAT-2020-001",
		func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(FieldResponse{Value: []byte("present")})
		})
	mux.HandleFunc("PUT /api/v1/collections/attendance/documents/ATTEND_CS101/fields/MAT-2020-001",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	mux.HandleFunc("DELETE /api/v1/collections/attendance/documents/ATTEND_CS101/fields/MAT-2020-001",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := NewRestStore(RestConfig{
		ServiceURL:  server.URL,
		TokenSource: staticToken("tok-1"),
	})
	assert.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	writtenID, err := store.AddField(ctx, "attendance", "ATTEND_CS101", "MAT-2020-001", []byte("present"))
	assert.NoError(t, err)
	assert.Equal(t, "ATTEND_CS101/MAT-2020-001", writtenID)
	assert.Equal(t, "Bearer tok-1", lastAuth)

	value, err := store.GetField(ctx, "attendance", "ATTEND_CS101", "MAT-2020-001")
	assert.NoError(t, err)
	assert.Equal(t, []byte("present"), value)

	assert.NoError(t, store.UpdateField(ctx, "attendance", "ATTEND_CS101", "MAT-2020-001", []byte("absent")))
	assert.NoError(t, store.DeleteField(ctx, "attendance", "ATTEND_CS101", "MAT-2020-001"))
}

func TestRestStoreExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /api/v1/collections/c/documents/present",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	mux.HandleFunc("HEAD /api/v1/collections/c/documents/absent",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := NewRestStore(RestConfig{ServiceURL: server.URL})
	assert.NoError(t, err)
	defer store.Close()

	exists, err := store.Exists(context.Background(), "c", "present")
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(context.Background(), "c", "absent")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestRestStoreTLS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /api/v1/collections/c/documents/doc",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	server := httptest.NewTLSServer(mux)
	defer server.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	assert.NoError(t, os.WriteFile(caPath, pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: server.Certificate().Raw,
	}), 0o600))

	option := security.TLSOption{TrustedCaFile: caPath}
	tlsConf, err := option.MakeClientTLSConf()
	assert.NoError(t, err)

	store, err := NewRestStore(RestConfig{ServiceURL: server.URL, TLS: tlsConf})
	assert.NoError(t, err)
	defer store.Close()

	exists, err := store.Exists(context.Background(), "c", "doc")
	assert.NoError(t, err)
	assert.True(t, exists)

	// Without the CA bundle the service certificate is not trusted.
	plain, err := NewRestStore(RestConfig{ServiceURL: server.URL})
	assert.NoError(t, err)
	defer plain.Close()

	_, err = plain.Exists(context.Background(), "c", "doc")
	assert.Error(t, err)
}

func TestRestStoreErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/collections/c/documents/missing/size",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorCodeDocumentNotFound})
		})
	mux.HandleFunc("GET /api/v1/collections/c/documents/doc/fields/missing",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorCodeFieldNotFound})
		})
	mux.HandleFunc("GET /api/v1/collections/c/documents/broken/size",
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "internal", Message: "boom"})
		})

	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := NewRestStore(RestConfig{ServiceURL: server.URL})
	assert.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, err = store.SizeInfo(ctx, "c", "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = store.GetField(ctx, "c", "doc", "missing")
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = store.SizeInfo(ctx, "c", "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDocumentNotFound)
}
