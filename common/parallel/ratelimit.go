// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"time"

	"github.com/juju/ratelimit"
)

type RateLimiter interface {
	Wait(count int64)
}

type Unlimited struct{}

func (n *Unlimited) Wait(int64) {}

// NewRateLimiter limits throughput to rate tokens per second. A non-positive rate means unlimited.
func NewRateLimiter(rate int) RateLimiter {
	if rate <= 0 {
		return &Unlimited{}
	}
	return ratelimit.NewBucketWithQuantum(time.Second, int64(rate), int64(rate))
}
