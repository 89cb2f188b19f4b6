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
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorse-io/basket/common/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// RetryDatabase retries failed writes of the underlying database. Reads are passed through.
type RetryDatabase struct {
	Database
	attempts        int
	initialInterval time.Duration
}

// Retry wraps a database so that every write is attempted up to attempts times.
func Retry(database Database, attempts int) *RetryDatabase {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryDatabase{
		Database:        database,
		attempts:        attempts,
		initialInterval: time.Second,
	}
}

func (r *RetryDatabase) write(ctx context.Context, table string, rows int, fn func() error) error {
	start := time.Now()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := fn(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(r.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			ReplaceRetries.WithLabelValues(table).Inc()
			log.Logger().Warn("failed to write results, retrying",
				zap.String("table", table),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.attempts),
				zap.Duration("next", next),
				zap.Error(err))
		}))
	if err != nil {
		log.Logger().Error("failed to write results",
			zap.String("table", table), zap.Int("attempts", attempt), zap.Error(err))
		return errors.Annotatef(err, "write %s after %d attempts", table, attempt)
	}
	ReplaceSeconds.WithLabelValues(table).Observe(time.Since(start).Seconds())
	ReplaceRows.WithLabelValues(table).Add(float64(rows))
	return nil
}

func (r *RetryDatabase) Set(ctx context.Context, key, value string) error {
	return r.write(ctx, "meta", 1, func() error {
		return r.Database.Set(ctx, key, value)
	})
}

func (r *RetryDatabase) ReplaceFrequentlyBoughtTogether(ctx context.Context, rows []FrequentlyBoughtTogether) error {
	return r.write(ctx, "frequently_bought_together", len(rows), func() error {
		return r.Database.ReplaceFrequentlyBoughtTogether(ctx, rows)
	})
}

func (r *RetryDatabase) ReplaceAssociationRules(ctx context.Context, rules []AssociationRule) error {
	return r.write(ctx, "association_rules", len(rules), func() error {
		return r.Database.ReplaceAssociationRules(ctx, rules)
	})
}

func (r *RetryDatabase) ReplaceUserRecommendations(ctx context.Context, recommendType int, rows []UserRecommendation) error {
	return r.write(ctx, "user_recommendations", len(rows), func() error {
		return r.Database.ReplaceUserRecommendations(ctx, recommendType, rows)
	})
}

func (r *RetryDatabase) ReplaceSimilarItems(ctx context.Context, rows []SimilarItem) error {
	return r.write(ctx, "similar_items", len(rows), func() error {
		return r.Database.ReplaceSimilarItems(ctx, rows)
	})
}
