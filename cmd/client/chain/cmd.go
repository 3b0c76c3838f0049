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

package chain

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/cmd/client/common"
	"github.com/streamnative/docspan/docspan"
)

var Cmd = &cobra.Command{
	Use:   "chain BASE_ID",
	Short: "Inspect a shard chain",
	Long:  `Show every shard of the chain with its estimated size and entry count.`,
	Args:  cobra.ExactArgs(1),
	RunE:  exec,
}

func exec(cmd *cobra.Command, args []string) error {
	layout := docspan.ChainLayout(common.Config.Layout)
	if err := layout.Validate(); err != nil {
		return err
	}

	remote, err := common.Config.NewRemote()
	if err != nil {
		return err
	}
	defer remote.Close()

	stats, err := docspan.ChainStats(cmd.Context(), remote, common.Config.Collection, args[0],
		layout, common.Config.ChainLimit)
	if err != nil {
		return err
	}

	if len(stats) == 0 {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "empty chain")
		return err
	}

	for _, stat := range stats {
		if _, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%d\n",
			stat.Ref.Index, stat.Ref.ID,
			humanize.Bytes(uint64(stat.Info.EstimatedBytes)), stat.Info.FieldCount); err != nil {
			return err
		}
	}
	return nil
}
