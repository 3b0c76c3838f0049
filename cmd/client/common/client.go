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
	"time"

	"github.com/streamnative/docspan/common/security"
	"github.com/streamnative/docspan/docspan"
	"github.com/streamnative/docspan/docstore"
)

var (
	Config = ClientConfig{}

	// MockedClient, when set, is handed out instead of a real client.
	MockedClient *MockClient

	// MockedRemote, when set, is handed out instead of a real document
	// store connection.
	MockedRemote *MockRemote
)

type ClientConfig struct {
	ServiceURL     string
	Collection     string
	MaxShardBytes  int64
	ChainLimit     int
	Layout         string
	RequestTimeout time.Duration
	TLS            security.TLSOption
}

func (config *ClientConfig) NewClient() (docspan.Store, error) {
	if MockedClient != nil {
		return MockedClient, nil
	}

	remote, err := config.NewRemote()
	if err != nil {
		return nil, err
	}

	return docspan.NewStore(remote,
		docspan.WithCollection(config.Collection),
		docspan.WithMaxShardBytes(config.MaxShardBytes),
		docspan.WithChainLimit(config.ChainLimit),
		docspan.WithChainLayout(docspan.ChainLayout(config.Layout)),
	)
}

func (config *ClientConfig) NewRemote() (docstore.Store, error) {
	if MockedRemote != nil {
		return MockedRemote, nil
	}

	restConfig := docstore.RestConfig{
		ServiceURL:     config.ServiceURL,
		RequestTimeout: config.RequestTimeout,
	}
	if config.TLS.IsConfigured() {
		tlsConf, err := config.TLS.MakeClientTLSConf()
		if err != nil {
			return nil, err
		}
		restConfig.TLS = tlsConf
	}
	return docstore.NewRestStore(restConfig)
}
