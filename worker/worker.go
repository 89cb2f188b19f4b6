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
	"sync"
	"time"

	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Worker runs the batch jobs of a pipeline periodically.
type Worker struct {
	pipeline *Pipeline
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	// for testing
	now func() time.Time
}

func NewWorker(pipeline *Pipeline) *Worker {
	return &Worker{pipeline: pipeline, now: time.Now}
}

type job struct {
	name   string
	period time.Duration
	meta   string
	run    func(ctx context.Context) error
}

func (w *Worker) jobs() []job {
	schedule := w.pipeline.Config.Schedule
	return []job{
		{
			name:   JobFBT,
			period: schedule.FBTPeriod,
			meta:   cache.LastFBTTime,
			run: func(ctx context.Context) error {
				_, err := w.pipeline.FrequentlyBoughtTogether(ctx)
				return err
			},
		},
		{
			name:   JobIBCF,
			period: schedule.IBCFPeriod,
			meta:   cache.LastIBCFTime,
			run: func(ctx context.Context) error {
				_, err := w.pipeline.ItemBasedCF(ctx)
				return err
			},
		},
	}
}

// Serve starts a goroutine per job with a positive period. It returns immediately.
func (w *Worker) Serve(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for _, j := range w.jobs() {
		if j.period <= 0 {
			log.Logger().Info("job disabled", zap.String("job", j.name))
			continue
		}
		w.wg.Add(1)
		go func(j job) {
			defer w.wg.Done()
			w.loop(ctx, j)
		}(j)
	}
}

// Shutdown stops scheduling and waits for running jobs to exit.
func (w *Worker) Shutdown() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, j job) {
	timer := time.NewTimer(w.delay(ctx, j))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := j.run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				FailuresVec.WithLabelValues(j.name).Inc()
				log.Logger().Error("failed to run job", zap.String("job", j.name), zap.Error(err))
			}
			timer.Reset(j.period)
		}
	}
}

// delay returns the time left until the next run based on the last successful run.
func (w *Worker) delay(ctx context.Context, j job) time.Duration {
	value, err := w.pipeline.CacheClient.Get(ctx, j.meta)
	if err != nil {
		if !errors.Is(err, cache.ErrObjectNotExist) {
			log.Logger().Warn("failed to read last run time", zap.String("job", j.name), zap.Error(err))
		}
		return 0
	}
	last, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Logger().Warn("invalid last run time", zap.String("job", j.name), zap.String("value", value))
		return 0
	}
	next := last.Add(j.period)
	if delay := next.Sub(w.now()); delay > 0 {
		log.Logger().Info("schedule job", zap.String("job", j.name), zap.Time("next", next))
		return delay
	}
	return 0
}
