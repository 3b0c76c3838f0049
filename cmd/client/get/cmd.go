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

package get

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streamnative/docspan/cmd/client/common"
)

var Config = flags{}

type flags struct {
	binaryValue bool
}

func (flags *flags) Reset() {
	flags.binaryValue = false
}

func init() {
	Cmd.Flags().BoolVarP(&Config.binaryValue, "binary", "b", false, "Output the value as a base64 encoded string, use when values are binary")
}

var Cmd = &cobra.Command{
	Use:   "get BASE_ID KEY",
	Short: "Get an entry",
	Long:  `Get the value of the entry, scanning the shard chain to find it.`,
	Args:  cobra.ExactArgs(2),
	RunE:  exec,
}

func exec(cmd *cobra.Command, args []string) error {
	client, err := common.Config.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()

	value, err := client.ReadEntry(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	if Config.binaryValue {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(value))
	} else {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(value))
	}
	return err
}
