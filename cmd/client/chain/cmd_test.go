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
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/streamnative/docspan/cmd/client/common"
	"github.com/streamnative/docspan/docspan"
	"github.com/streamnative/docspan/docstore"
)

func runCmd(cmd *cobra.Command, args string) (string, error) {
	actual := new(bytes.Buffer)
	cmd.SetOut(actual)
	cmd.SetErr(actual)
	cmd.SetArgs(strings.Split(args, " "))
	err := cmd.Execute()
	return strings.TrimSpace(actual.String()), err
}

func configure(layout docspan.ChainLayout) {
	common.Config.Collection = docspan.DefaultCollection
	common.Config.ChainLimit = docspan.DefaultChainLimit
	common.Config.Layout = string(layout)
}

func Test_exec(t *testing.T) {
	t.Run("chain", func(t *testing.T) {
		configure(docspan.LayoutUnderscore)
		common.MockedRemote = common.NewMockRemote()
		common.MockedRemote.On("SizeInfo", "docspan", "ATTEND_CS101").
			Return(docstore.SizeInfo{EstimatedBytes: 897_000, FieldCount: 3}, nil)
		common.MockedRemote.On("SizeInfo", "docspan", "ATTEND_CS101_2").
			Return(docstore.SizeInfo{EstimatedBytes: 500, FieldCount: 1}, nil)
		common.MockedRemote.On("SizeInfo", "docspan", "ATTEND_CS101_3").
			Return(docstore.SizeInfo{}, docstore.ErrDocumentNotFound)
		common.MockedRemote.On("Close").Return(nil)

		out, err := runCmd(Cmd, "ATTEND_CS101")
		assert.NoError(t, err)
		assert.Equal(t, "1\tATTEND_CS101\t897 kB\t3\n2\tATTEND_CS101_2\t500 B\t1", out)

		common.MockedRemote.AssertExpectations(t)
	})

	t.Run("empty-chain", func(t *testing.T) {
		configure(docspan.LayoutSuffix)
		common.MockedRemote = common.NewMockRemote()
		common.MockedRemote.On("SizeInfo", "docspan", "LEVELS1").
			Return(docstore.SizeInfo{}, docstore.ErrDocumentNotFound)
		common.MockedRemote.On("Close").Return(nil)

		out, err := runCmd(Cmd, "LEVELS")
		assert.NoError(t, err)
		assert.Equal(t, "empty chain", out)

		common.MockedRemote.AssertExpectations(t)
	})

	t.Run("invalid-layout", func(t *testing.T) {
		configure("camel")
		common.MockedRemote = common.NewMockRemote()

		_, err := runCmd(Cmd, "ATTEND_CS101")
		assert.ErrorIs(t, err, docspan.ErrInvalidOptionChainLayout)
	})
}
