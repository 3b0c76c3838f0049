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

package update

import (
	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/cmd/client/common"
)

var Cmd = &cobra.Command{
	Use:   "update BASE_ID KEY VALUE",
	Short: "Update an entry",
	Long:  `Overwrite the value of the entry in whichever shard currently holds it.`,
	Args:  cobra.ExactArgs(3),
	RunE:  exec,
}

func exec(cmd *cobra.Command, args []string) error {
	client, err := common.Config.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return client.UpdateEntry(cmd.Context(), args[0], args[1], []byte(args[2]))
}
