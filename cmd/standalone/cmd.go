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
	"io"

	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/cmd/flag"
	"github.com/streamnative/docspan/common/process"
	"github.com/streamnative/docspan/standalone"
)

var (
	conf       = standalone.DefaultConfig()
	configFile string

	Cmd = &cobra.Command{
		Use:   "standalone",
		Short: "Start a standalone document service",
		Long:  `Start a standalone document service`,
		RunE:  exec,
	}
)

func init() {
	flag.ServiceAddr(Cmd, &conf.ServiceAddress)
	flag.MetricsAddr(Cmd, &conf.MetricsAddress)
	Cmd.Flags().StringVar(&conf.DataDir, "data-dir", conf.DataDir, "Directory where to store the documents")
	Cmd.Flags().Int64Var(&conf.CacheSizeMB, "db-cache-size-mb", conf.CacheSizeMB, "Max size of the DB block cache in MB")
	Cmd.Flags().BoolVar(&conf.InMemory, "in-memory", false, "Keep the documents in memory only")
	Cmd.Flags().Int64Var(&conf.MaxDocumentBytes, "max-document-bytes", conf.MaxDocumentBytes, "Hard per-document size limit")
	Cmd.Flags().StringVarP(&configFile, "conf", "f", "", "Config file, watched for changes to the dynamic settings")
}

func exec(*cobra.Command, []string) error {
	process.RunProcess(func() (io.Closer, error) {
		if configFile != "" {
			if err := conf.LoadFile(configFile); err != nil {
				return nil, err
			}
		}
		return standalone.NewStandalone(conf)
	})
	return nil
}
