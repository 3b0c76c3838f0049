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

package perf

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/common/process"
	"github.com/streamnative/docspan/docstore"
	"github.com/streamnative/docspan/perf"
)

var (
	Cmd = &cobra.Command{
		Use:   "perf",
		Short: "Docspan perf client",
		Long:  `Docspan tool for basic performance tests`,
		RunE:  exec,
	}

	config = perf.Config{}
)

func init() {
	Cmd.Flags().StringVarP(&config.ServiceURL, "service-url", "u", "http://localhost:8190", "Document service URL")

	Cmd.Flags().Float64VarP(&config.RequestRate, "rate", "r", 100.0, "Request rate, ops/s")
	Cmd.Flags().Float64VarP(&config.ReadPercentage, "read-write-percent", "p", 80.0, "Percentage of read requests, compared to total requests")
	Cmd.Flags().Uint32Var(&config.BaseCardinality, "base-cardinality", 10, "Number of distinct shard chains to spread the workload over")
	Cmd.Flags().Uint32Var(&config.KeysCardinality, "keys-cardinality", 1000, "Number of distinct entry keys per chain")
	Cmd.Flags().Uint32VarP(&config.ValueSize, "value-size", "s", 128, "Size of the values to write")

	Cmd.Flags().Int64Var(&config.MaxShardBytes, "max-shard-bytes", 0, "Shrink the shard capacity so that chains overflow quickly, 0 keeps the default")
	Cmd.Flags().DurationVar(&config.RequestTimeout, "request-timeout", docstore.DefaultRequestTimeout, "Request timeout")
}

func exec(*cobra.Command, []string) error {
	process.RunProcess(runPerf)
	return nil
}

type closer struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newCloser(ctx context.Context) *closer {
	c := &closer{}
	c.ctx, c.cancel = context.WithCancel(ctx)
	return c
}

func (c *closer) Close() error {
	c.cancel()
	return nil
}

func runPerf() (io.Closer, error) {
	closer := newCloser(context.Background())
	go perf.New(config).Run(closer.ctx)
	return closer, nil
}
