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

package client

import (
	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/cmd/client/add"
	"github.com/streamnative/docspan/cmd/client/chain"
	"github.com/streamnative/docspan/cmd/client/common"
	"github.com/streamnative/docspan/cmd/client/get"
	"github.com/streamnative/docspan/cmd/client/getall"
	"github.com/streamnative/docspan/cmd/client/update"
	"github.com/streamnative/docspan/docspan"
	"github.com/streamnative/docspan/docstore"
)

var Cmd = &cobra.Command{
	Use:   "client",
	Short: "Read/Write entries",
	Long:  `Operations to add, read and modify entries in sharded document chains`,
}

func init() {
	Cmd.PersistentFlags().StringVarP(&common.Config.ServiceURL, "service-url", "u", "http://localhost:8190", "Document service URL")
	Cmd.PersistentFlags().StringVarP(&common.Config.Collection, "collection", "c", docspan.DefaultCollection, "Collection holding the shard documents")
	Cmd.PersistentFlags().Int64Var(&common.Config.MaxShardBytes, "max-shard-bytes", docspan.DefaultMaxShardBytes, "Estimated size at which a shard is considered full")
	Cmd.PersistentFlags().IntVar(&common.Config.ChainLimit, "chain-limit", docspan.DefaultChainLimit, "Max number of shards probed per chain")
	Cmd.PersistentFlags().StringVar(&common.Config.Layout, "chain-layout", string(docspan.DefaultChainLayout), "Shard naming layout: underscore or suffix")
	Cmd.PersistentFlags().DurationVar(&common.Config.RequestTimeout, "request-timeout", docstore.DefaultRequestTimeout, "Request timeout")

	Cmd.PersistentFlags().StringVar(&common.Config.TLS.CertFile, "tls-cert-file", "", "Tls client certificate file")
	Cmd.PersistentFlags().StringVar(&common.Config.TLS.KeyFile, "tls-key-file", "", "Tls client key file")
	Cmd.PersistentFlags().Uint16Var(&common.Config.TLS.MinVersion, "tls-min-version", 0, "Tls minimum version")
	Cmd.PersistentFlags().StringVar(&common.Config.TLS.TrustedCaFile, "tls-trusted-ca-file", "", "Tls trusted ca file")
	Cmd.PersistentFlags().BoolVar(&common.Config.TLS.InsecureSkipVerify, "tls-insecure-skip-verify", false, "Tls insecure skip verify")
	Cmd.PersistentFlags().StringVar(&common.Config.TLS.ServerName, "tls-server-name", "", "Tls server name")

	Cmd.AddCommand(add.Cmd)
	Cmd.AddCommand(update.Cmd)
	Cmd.AddCommand(get.Cmd)
	Cmd.AddCommand(getall.Cmd)
	Cmd.AddCommand(chain.Cmd)
}
