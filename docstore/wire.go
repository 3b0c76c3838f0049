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

// JSON types exchanged between the REST Store client and the document
// service. Field values are []byte and travel base64-encoded.

type SizeResponse struct {
	EstimatedBytes int64 `json:"estimatedBytes"`
	FieldCount     int   `json:"fieldCount"`
}

type FieldRequest struct {
	Value []byte `json:"value"`
}

type FieldResponse struct {
	Value []byte `json:"value"`
}

type AddResponse struct {
	WrittenID string `json:"writtenId"`
}

type DocumentResponse struct {
	Fields map[string][]byte `json:"fields"`
}

// Error codes carried by ErrorResponse.
const (
	ErrorCodeDocumentNotFound = "document-not-found"
	ErrorCodeFieldNotFound    = "field-not-found"
	ErrorCodeDocumentTooLarge = "document-too-large"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
