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
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/streamnative/docspan/common/metric"
	"github.com/streamnative/docspan/common/process"
	"github.com/streamnative/docspan/docstore"
)

// maxRequestBytes bounds request bodies. Field values are capped well below
// this by the document size limit; the slack covers base64 and JSON framing.
const maxRequestBytes = 4 * 1024 * 1024

// RestServer exposes a docstore.Store over the document service REST API, the
// same API the docstore REST client consumes.
type RestServer struct {
	store    docstore.Store
	listener net.Listener
	server   *http.Server

	log *slog.Logger

	requestLatency metric.LatencyHistogram
	requestErrors  metric.Counter
}

func NewRestServer(bindAddress string, store docstore.Store) (*RestServer, error) {
	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", bindAddress)
	}

	labels := map[string]any{"component": "rest-server"}
	s := &RestServer{
		store:    store,
		listener: listener,
		log: slog.With(
			slog.String("component", "rest-server"),
		),
		requestLatency: metric.NewLatencyHistogram("docspan_standalone_request_latency",
			"The latency of document service requests", labels),
		requestErrors: metric.NewCounter("docspan_standalone_request_errors",
			"The count of failed document service requests", "count", labels),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/collections/{collection}/documents/{docID}", s.handleDocument)
	mux.HandleFunc("GET /api/v1/collections/{collection}/documents/{docID}/size", s.handleSize)
	mux.HandleFunc("GET /api/v1/collections/{collection}/documents/{docID}/fields/{field}", s.handleFieldGet)
	mux.HandleFunc("POST /api/v1/collections/{collection}/documents/{docID}/fields/{field}", s.handleFieldAdd)
	mux.HandleFunc("PUT /api/v1/collections/{collection}/documents/{docID}/fields/{field}", s.handleFieldUpdate)
	mux.HandleFunc("DELETE /api/v1/collections/{collection}/documents/{docID}/fields/{field}", s.handleFieldDelete)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	s.log.Info(
		"Serving document service REST API",
		slog.String("bind-address", listener.Addr().String()),
	)

	go process.DoWithLabels(context.Background(), map[string]string{
		"docspan": "rest-server",
	}, func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(
				"Failed to serve the document service",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	})

	return s, nil
}

// Port returns the TCP port the server is bound to.
func (s *RestServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *RestServer) Close() error {
	return s.server.Close()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *RestServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.requestErrors.Inc()

	switch {
	case errors.Is(err, docstore.ErrDocumentNotFound):
		writeJSON(w, http.StatusNotFound, docstore.ErrorResponse{
			Error: docstore.ErrorCodeDocumentNotFound,
		})
	case errors.Is(err, docstore.ErrFieldNotFound):
		writeJSON(w, http.StatusNotFound, docstore.ErrorResponse{
			Error: docstore.ErrorCodeFieldNotFound,
		})
	case errors.Is(err, docstore.ErrDocumentTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, docstore.ErrorResponse{
			Error:   docstore.ErrorCodeDocumentTooLarge,
			Message: err.Error(),
		})
	default:
		s.log.Warn(
			"Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request-id", r.Header.Get("X-Request-Id")),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, docstore.ErrorResponse{
			Error:   "internal",
			Message: err.Error(),
		})
	}
}

func (s *RestServer) decodeField(w http.ResponseWriter, r *http.Request) (docstore.FieldRequest, bool) {
	var payload docstore.FieldRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		s.requestErrors.Inc()
		writeJSON(w, http.StatusBadRequest, docstore.ErrorResponse{
			Error:   "bad-request",
			Message: err.Error(),
		})
		return docstore.FieldRequest{}, false
	}
	return payload, true
}

// handleDocument serves both the existence probe (HEAD) and the full document
// read (GET).
func (s *RestServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	timer := s.requestLatency.Timer()
	collection, docID := r.PathValue("collection"), r.PathValue("docID")

	if r.Method == http.MethodHead {
		exists, err := s.store.Exists(r.Context(), collection, docID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		timer.Done()
		return
	}

	fields, err := s.store.GetDocument(r.Context(), collection, docID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docstore.DocumentResponse{Fields: fields})
	timer.Done()
}

func (s *RestServer) handleSize(w http.ResponseWriter, r *http.Request) {
	timer := s.requestLatency.Timer()

	info, err := s.store.SizeInfo(r.Context(), r.PathValue("collection"), r.PathValue("docID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docstore.SizeResponse{
		EstimatedBytes: info.EstimatedBytes,
		FieldCount:     info.FieldCount,
	})
	timer.Done()
}

// handleFieldGet serves both the containment probe (HEAD) and the field read
// (GET).
func (s *RestServer) handleFieldGet(w http.ResponseWriter, r *http.Request) {
	timer := s.requestLatency.Timer()
	collection, docID, field := r.PathValue("collection"), r.PathValue("docID"), r.PathValue("field")

	if r.Method == http.MethodHead {
		contained, err := s.store.ContainsField(r.Context(), collection, docID, field)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !contained {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		timer.Done()
		return
	}

	value, err := s.store.GetField(r.Context(), collection, docID, field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docstore.FieldResponse{Value: value})
	timer.Done()
}

func (s *RestServer) handleFieldAdd(w http.ResponseWriter, r *http.Request) {
	timer := s.requestLatency.Timer()
	payload, ok := s.decodeField(w, r)
	if !ok {
		return
	}

	writtenID, err := s.store.AddField(r.Context(),
		r.PathValue("collection"), r.PathValue("docID"), r.PathValue("field"), payload.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docstore.AddResponse{WrittenID: writtenID})
	timer.Done()
}

func (s *RestServer) handleFieldUpdate(w http.ResponseWriter, r *http.Request) {
	timer := s.requestLatency.Timer()
	payload, ok := s.decodeField(w, r)
	if !ok {
		return
	}

	err := s.store.UpdateField(r.Context(),
		r.PathValue("collection"), r.PathValue("docID"), r.PathValue("field"), payload.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	timer.Done()
}

func (s *RestServer) handleFieldDelete(w http.ResponseWriter, r *http.Request) {
	timer := s.requestLatency.Timer()

	err := s.store.DeleteField(r.Context(),
		r.PathValue("collection"), r.PathValue("docID"), r.PathValue("field"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	timer.Done()
}
