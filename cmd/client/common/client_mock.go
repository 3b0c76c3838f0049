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

package common

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/streamnative/docspan/docspan"
	"github.com/streamnative/docspan/docstore"
)

type MockClient struct {
	mock.Mock
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Close() error {
	args := m.MethodCalled("Close")
	return args.Error(0)
}

func (m *MockClient) AddEntry(_ context.Context, baseID string, key string, value []byte, options ...docspan.EntryOption) (string, error) {
	args := m.MethodCalled("AddEntry", baseID, key, value, options)
	return args.String(0), args.Error(1)
}

func (m *MockClient) UpdateEntry(_ context.Context, baseID string, key string, value []byte) error {
	args := m.MethodCalled("UpdateEntry", baseID, key, value)
	return args.Error(0)
}

func (m *MockClient) ReadEntry(_ context.Context, baseID string, key string) ([]byte, error) {
	args := m.MethodCalled("ReadEntry", baseID, key)
	arg0, ok := args.Get(0).([]byte)
	if !ok {
		panic("cast failed")
	}
	return arg0, args.Error(1)
}

func (m *MockClient) ReadAllEntries(_ context.Context, baseID string) (map[string][]byte, error) {
	args := m.MethodCalled("ReadAllEntries", baseID)
	arg0, ok := args.Get(0).(map[string][]byte)
	if !ok {
		panic("cast failed")
	}
	return arg0, args.Error(1)
}

func (m *MockClient) BatchUpdate(_ context.Context, baseID string, entries map[string][]byte) (int, error) {
	args := m.MethodCalled("BatchUpdate", baseID, entries)
	return args.Int(0), args.Error(1)
}

type MockRemote struct {
	mock.Mock
}

func NewMockRemote() *MockRemote {
	return &MockRemote{}
}

func (m *MockRemote) Close() error {
	args := m.MethodCalled("Close")
	return args.Error(0)
}

func (m *MockRemote) Exists(_ context.Context, collection string, docID string) (bool, error) {
	args := m.MethodCalled("Exists", collection, docID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRemote) ContainsField(_ context.Context, collection string, docID string, field string) (bool, error) {
	args := m.MethodCalled("ContainsField", collection, docID, field)
	return args.Bool(0), args.Error(1)
}

func (m *MockRemote) SizeInfo(_ context.Context, collection string, docID string) (docstore.SizeInfo, error) {
	args := m.MethodCalled("SizeInfo", collection, docID)
	arg0, ok := args.Get(0).(docstore.SizeInfo)
	if !ok {
		panic("cast failed")
	}
	return arg0, args.Error(1)
}

func (*MockRemote) AddField(context.Context, string, string, string, []byte) (string, error) {
	return "", errors.New("not implemented in mock")
}

func (*MockRemote) UpdateField(context.Context, string, string, string, []byte) error {
	return errors.New("not implemented in mock")
}

func (*MockRemote) GetField(context.Context, string, string, string) ([]byte, error) {
	return nil, errors.New("not implemented in mock")
}

func (*MockRemote) GetDocument(context.Context, string, string) (map[string][]byte, error) {
	return nil, errors.New("not implemented in mock")
}

func (*MockRemote) DeleteField(context.Context, string, string, string) error {
	return errors.New("not implemented in mock")
}
