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

package add

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/cmd/client/common"
	"github.com/streamnative/docspan/docspan"
)

var Config = flags{}

type flags struct {
	kind string
}

func (flags *flags) Reset() {
	flags.kind = ""
}

func init() {
	Cmd.Flags().StringVarP(&Config.kind, "kind", "k", "", "Entry kind driving the size estimate: profile, event or level")
}

var Cmd = &cobra.Command{
	Use:   "add BASE_ID KEY VALUE",
	Short: "Add an entry",
	Long:  `Add an entry to the first shard of the chain that has room for it, and print the identifier it was written under.`,
	Args:  cobra.ExactArgs(3),
	RunE:  exec,
}

func exec(cmd *cobra.Command, args []string) error {
	client, err := common.Config.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var options []docspan.EntryOption
	if Config.kind != "" {
		options = append(options, docspan.WithEntryKind(docspan.EntryKind(Config.kind)))
	}

	writtenID, err := client.AddEntry(cmd.Context(), args[0], args[1], []byte(args[2]), options...)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), writtenID)
	return err
}
