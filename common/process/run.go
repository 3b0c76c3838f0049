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

package process

import (
	"io"
	"log/slog"
	"os"

	"github.com/streamnative/docspan/common/concurrent"
)

// RunProcess starts the service returned by startProcess and blocks until a
// shutdown signal arrives. The profiling endpoint is brought up before
// startProcess runs; on startup failure the profiler is released and the
// process exits.
func RunProcess(startProcess func() (io.Closer, error)) {
	profiler := RunProfiling()
	service, err := startProcess()
	if err != nil {
		slog.Error(
			"Failed to start the service",
			slog.Any("error", err),
		)
		_ = profiler.Close()
		os.Exit(1)
	}

	concurrent.WaitUntilSignal(
		service,
		profiler,
	)
}
