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
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	// ServiceAddress is the bind address for the document service REST API.
	ServiceAddress string `json:"serviceAddress" yaml:"serviceAddress"`

	// MetricsAddress is the bind address for the Prometheus metrics
	// endpoint. Empty disables metrics.
	MetricsAddress string `json:"metricsAddress" yaml:"metricsAddress"`

	DataDir     string `json:"dataDir" yaml:"dataDir"`
	CacheSizeMB int64  `json:"cacheSizeMB" yaml:"cacheSizeMB"`
	InMemory    bool   `json:"inMemory" yaml:"inMemory"`

	// MaxDocumentBytes is the hard per-document size limit. Values in the
	// config file can use humanized sizes, eg. "1MB". This setting is
	// reloaded when the config file changes.
	MaxDocumentBytes int64 `json:"maxDocumentBytes" yaml:"maxDocumentBytes"`

	// ConfigFile is the path the config was loaded from, watched for
	// changes to the dynamic settings.
	ConfigFile string `json:"-" yaml:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		ServiceAddress:   "0.0.0.0:8190",
		MetricsAddress:   "0.0.0.0:8200",
		DataDir:          DefaultFactoryOptions.DataDir,
		CacheSizeMB:      DefaultFactoryOptions.CacheSizeMB,
		MaxDocumentBytes: DefaultMaxDocumentBytes,
	}
}

// LoadConfig overlays the settings from configFile on top of the defaults.
// An empty configFile returns the defaults as-is.
func LoadConfig(configFile string) (Config, error) {
	config := DefaultConfig()
	if configFile == "" {
		return config, nil
	}

	if err := config.LoadFile(configFile); err != nil {
		return Config{}, err
	}
	return config, nil
}

// LoadFile overlays the settings present in configFile on top of the current
// values, and marks the file for watching.
func (c *Config) LoadFile(configFile string) error {
	if err := readConfig(viper.New(), configFile, c); err != nil {
		return err
	}

	c.ConfigFile = configFile
	return nil
}

func readConfig(v *viper.Viper, configFile string, config *Config) error {
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", configFile)
	}

	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		StringToByteSizeHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(), // default hook
		mapstructure.StringToSliceHookFunc(","),     // default hook
	))); err != nil {
		return errors.Wrapf(err, "failed to load config file %s", configFile)
	}

	return nil
}

// StringToByteSizeHookFunc decodes humanized sizes like "900KB" or "1MiB"
// into int64 fields.
func StringToByteSizeHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(int64(0)) {
			return data, nil
		}

		size, err := humanize.ParseBytes(data.(string))
		if err != nil {
			return nil, errors.Errorf("invalid byte size: '%v'", data)
		}

		return int64(size), nil
	}
}
