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

// Package standalone runs a self-contained document service: a Pebble-backed
// document store served over the REST API that the docspan engine's remote
// client consumes.
package standalone

import (
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/streamnative/docspan/common/metric"
)

type Standalone struct {
	config Config
	store  *PebbleStore
	rpc    *RestServer

	metrics *metric.PrometheusMetrics
}

func NewTestConfig(dir string) Config {
	config := DefaultConfig()
	config.ServiceAddress = "localhost:0"
	config.MetricsAddress = ""
	config.DataDir = filepath.Join(dir, "docstore")
	return config
}

func NewStandalone(config Config) (*Standalone, error) {
	slog.Info(
		"Starting docspan standalone",
		slog.Any("config", config),
	)

	s := &Standalone{config: config}

	var err error
	if s.store, err = NewPebbleStore(&FactoryOptions{
		DataDir:          config.DataDir,
		CacheSizeMB:      config.CacheSizeMB,
		InMemory:         config.InMemory,
		MaxDocumentBytes: config.MaxDocumentBytes,
	}); err != nil {
		return nil, err
	}

	if s.rpc, err = NewRestServer(config.ServiceAddress, s.store); err != nil {
		return nil, err
	}

	if config.MetricsAddress != "" {
		s.metrics, err = metric.Start(config.MetricsAddress)
	}
	if err != nil {
		return nil, err
	}

	if config.ConfigFile != "" {
		s.watchConfig()
	}

	return s, nil
}

// watchConfig applies changes to the dynamic settings whenever the config
// file is rewritten. Only the document size limit is dynamic; the other
// settings require a restart.
func (s *Standalone) watchConfig() {
	v := viper.New()
	v.OnConfigChange(func(_ fsnotify.Event) {
		config := s.config
		if err := readConfig(v, s.config.ConfigFile, &config); err != nil {
			slog.Warn(
				"Failed to reload the config file",
				slog.Any("error", err),
				slog.String("config-file", s.config.ConfigFile),
			)
			return
		}

		if config.MaxDocumentBytes > 0 && config.MaxDocumentBytes != s.store.MaxDocumentBytes() {
			s.store.SetMaxDocumentBytes(config.MaxDocumentBytes)
			slog.Info(
				"Updated the document size limit",
				slog.String("max-document-bytes", humanize.Bytes(uint64(config.MaxDocumentBytes))),
			)
		}
	})

	v.SetConfigFile(s.config.ConfigFile)
	v.WatchConfig()
}

func (s *Standalone) RestPort() int {
	return s.rpc.Port()
}

func (s *Standalone) Close() error {
	var err error
	if s.metrics != nil {
		err = s.metrics.Close()
	}

	return multierr.Combine(
		err,
		s.rpc.Close(),
		s.store.Close(),
	)
}
