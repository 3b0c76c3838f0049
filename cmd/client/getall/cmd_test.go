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
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/streamnative/docspan/cmd/client/common"
)

func runCmd(cmd *cobra.Command, args string) (string, error) {
	actual := new(bytes.Buffer)
	cmd.SetOut(actual)
	cmd.SetErr(actual)
	cmd.SetArgs(strings.Split(args, " "))
	err := cmd.Execute()
	return strings.TrimSpace(actual.String()), err
}

func Test_exec(t *testing.T) {
	common.MockedClient = common.NewMockClient()
	common.MockedClient.On("ReadAllEntries", "ATTEND_CS101").
		Return(map[string][]byte{
			"2024-09-02/bob":   []byte("absent"),
			"2024-09-01/alice": []byte("present"),
		}, nil)
	common.MockedClient.On("Close").Return(nil)

	out, err := runCmd(Cmd, "ATTEND_CS101")
	assert.NoError(t, err)
	assert.Equal(t, "2024-09-01/alice\tpresent\n2024-09-02/bob\tabsent", out)

	common.MockedClient.AssertExpectations(t)
}
