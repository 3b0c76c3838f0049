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

package getall

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/streamnative/docspan/cmd/client/common"
)

var Cmd = &cobra.Command{
	Use:   "get-all BASE_ID",
	Short: "Get all the entries of a chain",
	Long:  `Get every entry of the chain, walking the shards in order and merging their contents.`,
	Args:  cobra.ExactArgs(1),
	RunE:  exec,
}

func exec(cmd *cobra.Command, args []string) error {
	client, err := common.Config.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.ReadAllEntries(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	keys := maps.Keys(entries)
	slices.Sort(keys)
	for _, key := range keys {
		if _, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, entries[key]); err != nil {
			return err
		}
	}
	return nil
}
