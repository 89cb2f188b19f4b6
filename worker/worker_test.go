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

package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorse-io/basket/config"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T) *Pipeline {
	dir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Jobs = 2
	dataClient, err := data.Open(fmt.Sprintf("sqlite://%s/data.db", dir), "")
	require.NoError(t, err)
	require.NoError(t, dataClient.Init())
	cacheClient, err := cache.Open(fmt.Sprintf("sqlite://%s/cache.db", dir), "")
	require.NoError(t, err)
	require.NoError(t, cacheClient.Init())
	t.Cleanup(func() {
		assert.NoError(t, dataClient.Close())
		assert.NoError(t, cacheClient.Close())
	})
	now := time.Now()
	var rows []data.OrderItem
	for i := 0; i < 10; i++ {
		orderId := fmt.Sprintf("o%d", i)
		userId := fmt.Sprintf("u%d", i)
		for _, itemId := range []string{"a", "b", "c", "d"} {
			rows = append(rows, data.OrderItem{OrderId: orderId, UserId: userId, ItemId: itemId, Timestamp: now.Add(-time.Hour)})
		}
	}
	require.NoError(t, dataClient.BatchInsertOrderItems(context.Background(), rows))
	return NewPipeline(cfg, dataClient, cacheClient)
}

func TestWorkerServe(t *testing.T) {
	pipeline := newTestPipeline(t)
	worker := NewWorker(pipeline)
	worker.Serve(context.Background())
	defer worker.Shutdown()

	ctx := context.Background()
	assert.Eventually(t, func() bool {
		_, errFBT := pipeline.CacheClient.Get(ctx, cache.LastFBTTime)
		_, errIBCF := pipeline.CacheClient.Get(ctx, cache.LastIBCFTime)
		return errFBT == nil && errIBCF == nil
	}, 10*time.Second, 100*time.Millisecond)
	rows, err := pipeline.CacheClient.GetFrequentlyBoughtTogether(ctx, "a", 0)
	assert.NoError(t, err)
	assert.Len(t, rows, 3)
	recommendations, err := pipeline.CacheClient.GetUserRecommendations(ctx, "u1", 0)
	assert.NoError(t, err)
	assert.NotEmpty(t, recommendations)
}

func TestWorkerDisabled(t *testing.T) {
	pipeline := newTestPipeline(t)
	pipeline.Config.Schedule.FBTPeriod = 0
	worker := NewWorker(pipeline)
	worker.Serve(context.Background())

	ctx := context.Background()
	assert.Eventually(t, func() bool {
		_, err := pipeline.CacheClient.Get(ctx, cache.LastIBCFTime)
		return err == nil
	}, 10*time.Second, 100*time.Millisecond)
	worker.Shutdown()
	_, err := pipeline.CacheClient.Get(ctx, cache.LastFBTTime)
	assert.ErrorIs(t, err, cache.ErrObjectNotExist)
}

func TestWorkerDelay(t *testing.T) {
	pipeline := newTestPipeline(t)
	worker := NewWorker(pipeline)
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	worker.now = func() time.Time { return now }
	ctx := context.Background()
	fbt := worker.jobs()[0]

	// never run
	assert.Zero(t, worker.delay(ctx, fbt))
	// invalid value
	require.NoError(t, pipeline.CacheClient.Set(ctx, cache.LastFBTTime, "yesterday"))
	assert.Zero(t, worker.delay(ctx, fbt))
	// run recently
	require.NoError(t, pipeline.CacheClient.Set(ctx, cache.LastFBTTime, now.Add(-time.Hour).Format(time.RFC3339)))
	assert.Equal(t, 23*time.Hour, worker.delay(ctx, fbt))
	// overdue
	require.NoError(t, pipeline.CacheClient.Set(ctx, cache.LastFBTTime, now.Add(-48*time.Hour).Format(time.RFC3339)))
	assert.Zero(t, worker.delay(ctx, fbt))
}

func TestWorkerShutdownBeforeServe(t *testing.T) {
	worker := NewWorker(newTestPipeline(t))
	worker.Shutdown()
}
