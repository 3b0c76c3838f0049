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

package common

import "time"

// Clock provides wall-clock milliseconds for cache snapshot stamps and
// credential expiry checks.
type Clock interface {
	NowMillis() uint64
}

type systemClock struct{}

// SystemClock returns the Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
