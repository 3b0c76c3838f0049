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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/streamnative/docspan/common/metric"
)

const DefaultRequestTimeout = 30 * time.Second

// TokenSource provides the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RestConfig configures a Store backed by the document service REST API.
type RestConfig struct {
	// ServiceURL is the base URL of the document service,
	// eg. `http://localhost:8190`.
	ServiceURL string

	// RequestTimeout bounds every individual request. There are no retries:
	// a failed call surfaces immediately to the caller.
	RequestTimeout time.Duration

	// TokenSource, when set, provides the bearer token for each request.
	TokenSource TokenSource

	// TLS, when set, secures the connection to the document service.
	TLS *tls.Config
}

type restStore struct {
	baseURL     string
	client      *http.Client
	tokenSource TokenSource

	requestLatency metric.LatencyHistogram
	requestErrors  metric.Counter
}

// NewRestStore creates a Store talking to the document service REST API.
func NewRestStore(config RestConfig) (Store, error) {
	if config.ServiceURL == "" {
		return nil, errors.New("service URL must be non-empty")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	httpClient := &http.Client{Timeout: config.RequestTimeout}
	if config.TLS != nil {
		httpClient.Transport = &http.Transport{TLSClientConfig: config.TLS}
	}

	labels := map[string]any{"service": config.ServiceURL}
	return &restStore{
		baseURL:     strings.TrimSuffix(config.ServiceURL, "/"),
		client:      httpClient,
		tokenSource: config.TokenSource,

		requestLatency: metric.NewLatencyHistogram("docspan_docstore_request_latency",
			"The latency of requests to the document service", labels),
		requestErrors: metric.NewCounter("docspan_docstore_request_errors",
			"The count of failed requests to the document service", "count", labels),
	}, nil
}

func (r *restStore) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *restStore) documentURL(collection, docID string) string {
	return fmt.Sprintf("%s/api/v1/collections/%s/documents/%s",
		r.baseURL, url.PathEscape(collection), url.PathEscape(docID))
}

func (r *restStore) fieldURL(collection, docID, field string) string {
	return r.documentURL(collection, docID) + "/fields/" + url.PathEscape(field)
}

func (r *restStore) do(ctx context.Context, method, requestURL string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.tokenSource != nil {
		token, err := r.tokenSource.Token(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get auth token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	timer := r.requestLatency.Timer()
	res, err := r.client.Do(req)
	timer.Done()
	if err != nil {
		r.requestErrors.Inc()
	}
	return res, err
}

// decodeError maps an error payload to the Store sentinel errors.
func decodeError(res *http.Response) error {
	var payload ErrorResponse
	_ = json.NewDecoder(io.LimitReader(res.Body, 4096)).Decode(&payload)

	switch payload.Error {
	case ErrorCodeDocumentNotFound:
		return ErrDocumentNotFound
	case ErrorCodeFieldNotFound:
		return ErrFieldNotFound
	case ErrorCodeDocumentTooLarge:
		return ErrDocumentTooLarge
	}
	return errors.Errorf("document service error: status %d: %s", res.StatusCode, payload.Message)
}

func closeBody(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

func (r *restStore) head(ctx context.Context, requestURL string) (bool, error) {
	res, err := r.do(ctx, http.MethodHead, requestURL, nil)
	if err != nil {
		return false, err
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Errorf("document service error: status %d", res.StatusCode)
	}
}

func (r *restStore) Exists(ctx context.Context, collection, docID string) (bool, error) {
	return r.head(ctx, r.documentURL(collection, docID))
}

func (r *restStore) ContainsField(ctx context.Context, collection, docID, field string) (bool, error) {
	return r.head(ctx, r.fieldURL(collection, docID, field))
}

func (r *restStore) SizeInfo(ctx context.Context, collection, docID string) (SizeInfo, error) {
	res, err := r.do(ctx, http.MethodGet, r.documentURL(collection, docID)+"/size", nil)
	if err != nil {
		return SizeInfo{}, err
	}
	defer closeBody(res)

	if res.StatusCode != http.StatusOK {
		return SizeInfo{}, decodeError(res)
	}
	var payload SizeResponse
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return SizeInfo{}, errors.Wrap(err, "failed to decode size info")
	}
	return SizeInfo{
		EstimatedBytes: payload.EstimatedBytes,
		FieldCount:     payload.FieldCount,
	}, nil
}

func (r *restStore) AddField(ctx context.Context, collection, docID, field string, value []byte) (string, error) {
	res, err := r.do(ctx, http.MethodPost, r.fieldURL(collection, docID, field), FieldRequest{Value: value})
	if err != nil {
		return "", err
	}
	defer closeBody(res)

	if res.StatusCode != http.StatusOK {
		return "", decodeError(res)
	}
	var payload AddResponse
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "failed to decode add response")
	}
	return payload.WrittenID, nil
}

func (r *restStore) UpdateField(ctx context.Context, collection, docID, field string, value []byte) error {
	res, err := r.do(ctx, http.MethodPut, r.fieldURL(collection, docID, field), FieldRequest{Value: value})
	if err != nil {
		return err
	}
	defer closeBody(res)

	if res.StatusCode != http.StatusNoContent {
		return decodeError(res)
	}
	return nil
}

func (r *restStore) GetField(ctx context.Context, collection, docID, field string) ([]byte, error) {
	res, err := r.do(ctx, http.MethodGet, r.fieldURL(collection, docID, field), nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(res)

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}
	var payload FieldResponse
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode field")
	}
	return payload.Value, nil
}

func (r *restStore) GetDocument(ctx context.Context, collection, docID string) (map[string][]byte, error) {
	res, err := r.do(ctx, http.MethodGet, r.documentURL(collection, docID), nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(res)

	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}
	var payload DocumentResponse
	if err = json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode document")
	}
	return payload.Fields, nil
}

func (r *restStore) DeleteField(ctx context.Context, collection, docID, field string) error {
	res, err := r.do(ctx, http.MethodDelete, r.fieldURL(collection, docID, field), nil)
	if err != nil {
		return err
	}
	defer closeBody(res)

	if res.StatusCode != http.StatusNoContent {
		return decodeError(res)
	}
	return nil
}
