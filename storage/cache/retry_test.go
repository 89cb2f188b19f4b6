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

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

type flakyDatabase struct {
	NoDatabase
	failures int
	calls    int
	rows     []SimilarItem
}

func (f *flakyDatabase) ReplaceSimilarItems(_ context.Context, rows []SimilarItem) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	f.rows = rows
	return nil
}

func TestRetry(t *testing.T) {
	flaky := &flakyDatabase{failures: 2}
	database := Retry(flaky, 3)
	database.initialInterval = time.Millisecond
	err := database.ReplaceSimilarItems(context.Background(), []SimilarItem{{ItemId: "1", NeighborId: "2"}})
	assert.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.Len(t, flaky.rows, 1)
}

func TestRetryExhausted(t *testing.T) {
	flaky := &flakyDatabase{failures: 5}
	database := Retry(flaky, 3)
	database.initialInterval = time.Millisecond
	err := database.ReplaceSimilarItems(context.Background(), nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	database := Retry(NoDatabase{}, 3)
	database.initialInterval = time.Millisecond
	err := database.ReplaceFrequentlyBoughtTogether(ctx, nil)
	assert.Error(t, err)
}

func TestRetryPassesReads(t *testing.T) {
	database := Retry(NoDatabase{}, 0)
	assert.Equal(t, 1, database.attempts)
	_, err := database.GetSimilarItems(context.Background(), "1", 10)
	assert.ErrorIs(t, err, ErrNoDatabase)
}
