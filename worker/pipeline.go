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
	"sort"
	"strconv"
	"time"

	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/config"
	"github.com/gorse-io/basket/dataset"
	"github.com/gorse-io/basket/logics"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const streamBatchSize = 10000

// Pipeline runs the batch jobs: it loads order items from the data store, mines results
// and replaces them in the cache store.
type Pipeline struct {
	Config      *config.Config
	DataClient  data.Database
	CacheClient cache.Database
	// End of the training window. Zero means now.
	End time.Time
}

// NewPipeline creates a pipeline whose writes are retried write.retries times.
func NewPipeline(cfg *config.Config, dataClient data.Database, cacheClient cache.Database) *Pipeline {
	return &Pipeline{
		Config:      cfg,
		DataClient:  dataClient,
		CacheClient: cache.Retry(cacheClient, cfg.Write.Retries),
	}
}

func (p *Pipeline) end() time.Time {
	if p.End.IsZero() {
		return time.Now()
	}
	return p.End
}

// LoadOrderItems loads order items in [begin, end), at most source.limit rows, latest first.
func (p *Pipeline) LoadOrderItems(ctx context.Context, begin, end time.Time) ([]data.OrderItem, error) {
	itemChan, errChan := p.DataClient.GetOrderItemStream(ctx, streamBatchSize, &begin, &end, p.Config.Source.Limit)
	var rows []data.OrderItem
	for batch := range itemChan {
		rows = append(rows, batch...)
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	return rows, nil
}

// FBTResult summarizes a run of the frequently bought together job.
type FBTResult struct {
	OrderItems       int
	Baskets          int
	Itemsets         int
	Products         int
	BoughtTogether   []cache.FrequentlyBoughtTogether
	AssociationRules []cache.AssociationRule
}

// FrequentlyBoughtTogether mines frequent itemsets from baskets of the training window and
// replaces the bought together lists and the association rules.
func (p *Pipeline) FrequentlyBoughtTogether(ctx context.Context) (*FBTResult, error) {
	start := time.Now()
	cfg := p.Config.FBT
	end := p.end()
	log.Logger().Info("start frequently bought together",
		zap.Time("begin", end.Add(-p.Config.Source.TimeWindow)),
		zap.Time("end", end),
		zap.Int("min_basket_size", cfg.MinBasketSize),
		zap.Float64("min_support", cfg.MinSupport))

	// load order items
	stepStart := time.Now()
	rows, err := p.LoadOrderItems(ctx, end.Add(-p.Config.Source.TimeWindow), end)
	if err != nil {
		return nil, errors.Trace(err)
	}
	LoadedOrderItems.WithLabelValues(JobFBT).Set(float64(len(rows)))
	p.step(JobFBT, "load order items", start, stepStart, zap.Int("n_order_items", len(rows)))

	// build baskets
	stepStart = time.Now()
	transactions := dataset.NewTransactions(rows, cfg.MinBasketSize)
	if transactions.Count() == 0 {
		return nil, errors.Annotate(logics.ErrEmptyDataset, "no basket")
	}
	Baskets.Set(float64(transactions.Count()))
	p.step(JobFBT, "build baskets", start, stepStart,
		zap.Int("n_baskets", transactions.Count()),
		zap.Int("n_items", transactions.Items.Count()))

	// mine frequent itemsets
	stepStart = time.Now()
	itemsets := logics.FPGrowth(transactions.Baskets, transactions.Items.Count(), cfg.MinSupport, cfg.MaxLength)
	FrequentItemsets.Set(float64(len(itemsets)))
	p.step(JobFBT, "mine frequent itemsets", start, stepStart,
		zap.Int("n_itemsets", len(itemsets)),
		zap.Int("min_count", logics.MinCount(cfg.MinSupport, transactions.Count())))

	// assemble bought together lists
	stepStart = time.Now()
	boughtTogether := p.boughtTogether(transactions.Items,
		logics.FrequentlyBoughtTogether(logics.FilterItemsets(itemsets, cfg.MinItemsetLength), cfg.TopItemsets))
	products := len(lo.UniqBy(boughtTogether, func(row cache.FrequentlyBoughtTogether) string { return row.ProductId }))
	BoughtTogetherProducts.Set(float64(products))
	p.step(JobFBT, "assemble bought together", start, stepStart, zap.Int("n_products", products))

	// generate association rules
	stepStart = time.Now()
	rules := p.associationRules(transactions.Items, logics.AssociationRules(itemsets, cfg.MinConfidence, cfg.MinLift))
	AssociationRules.Set(float64(len(rules)))
	p.step(JobFBT, "generate association rules", start, stepStart, zap.Int("n_rules", len(rules)))

	// write results
	stepStart = time.Now()
	if err = p.CacheClient.ReplaceFrequentlyBoughtTogether(ctx, boughtTogether); err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.CacheClient.ReplaceAssociationRules(ctx, rules); err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.CacheClient.Set(ctx, cache.LastFBTRules, strconv.Itoa(len(rules))); err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.CacheClient.Set(ctx, cache.LastFBTTime, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, errors.Trace(err)
	}
	p.step(JobFBT, "write results", start, stepStart, zap.Int("n_rows", len(boughtTogether)))

	TotalSecondsVec.WithLabelValues(JobFBT).Set(time.Since(start).Seconds())
	LastSuccessVec.WithLabelValues(JobFBT).SetToCurrentTime()
	log.Elapsed(JobFBT, "complete frequently bought together", start)
	return &FBTResult{
		OrderItems:       len(rows),
		Baskets:          transactions.Count(),
		Itemsets:         len(itemsets),
		Products:         products,
		BoughtTogether:   boughtTogether,
		AssociationRules: rules,
	}, nil
}

// step records the duration of a step and logs it with the time since the job started.
func (p *Pipeline) step(job, step string, start, stepStart time.Time, fields ...zap.Field) {
	stepElapsed := time.Since(stepStart)
	StepSecondsVec.WithLabelValues(job, step).Set(stepElapsed.Seconds())
	log.Elapsed(job, step, start, append([]zap.Field{zap.Duration("step_elapsed", stepElapsed)}, fields...)...)
}

// boughtTogether converts lists to rows ordered by product id and rank.
func (p *Pipeline) boughtTogether(items *dataset.Dict, lists []logics.ItemBoughtTogether) []cache.FrequentlyBoughtTogether {
	sort.Slice(lists, func(i, j int) bool {
		a, _ := items.String(lists[i].Item)
		b, _ := items.String(lists[j].Item)
		return a < b
	})
	var rows []cache.FrequentlyBoughtTogether
	for _, list := range lists {
		productId, _ := items.String(list.Item)
		for rank, item := range list.Items {
			recommended, _ := items.String(item.Item)
			rows = append(rows, cache.FrequentlyBoughtTogether{
				ProductId:            productId,
				RecommendedProductId: recommended,
				Rank:                 rank + 1,
				Support:              item.Support,
			})
		}
	}
	return rows
}

func (p *Pipeline) associationRules(items *dataset.Dict, rules []logics.Rule) []cache.AssociationRule {
	return lo.Map(rules, func(rule logics.Rule, _ int) cache.AssociationRule {
		consequent, _ := items.String(rule.Consequent)
		return cache.AssociationRule{
			Antecedent: lo.Map(rule.Antecedent, func(item int32, _ int) string {
				s, _ := items.String(item)
				return s
			}),
			Consequent: consequent,
			Support:    rule.Support,
			Confidence: rule.Confidence,
			Lift:       rule.Lift,
		}
	})
}

// IBCFResult summarizes a run of the item-based collaborative filtering job.
type IBCFResult struct {
	OrderItems       int
	Users            int
	Items            int
	DroppedItems     int
	DroppedUsers     int
	RecommendedUsers int
	Recommendations  []cache.UserRecommendation
	SimilarItems     []cache.SimilarItem
}

// ItemBasedCF computes item similarities from the purchase matrix of the training window and
// replaces user recommendations and similar items.
func (p *Pipeline) ItemBasedCF(ctx context.Context) (*IBCFResult, error) {
	start := time.Now()
	result, err := p.trainItemBasedCF(ctx, start)
	if err != nil {
		return nil, errors.Trace(err)
	}

	// write results
	stepStart := time.Now()
	if err = p.CacheClient.ReplaceUserRecommendations(ctx, p.Config.IBCF.RecommendType, result.Recommendations); err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.CacheClient.ReplaceSimilarItems(ctx, result.SimilarItems); err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.CacheClient.Set(ctx, cache.LastIBCFUsers, strconv.Itoa(result.RecommendedUsers)); err != nil {
		return nil, errors.Trace(err)
	}
	if err = p.CacheClient.Set(ctx, cache.LastIBCFTime, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, errors.Trace(err)
	}
	p.step(JobIBCF, "write results", start, stepStart, zap.Int("n_rows", len(result.Recommendations)+len(result.SimilarItems)))

	TotalSecondsVec.WithLabelValues(JobIBCF).Set(time.Since(start).Seconds())
	LastSuccessVec.WithLabelValues(JobIBCF).SetToCurrentTime()
	log.Elapsed(JobIBCF, "complete item-based collaborative filtering", start)
	return result, nil
}

// TrainItemBasedCF computes recommendations like ItemBasedCF but leaves the cache store
// untouched. Evaluation runs on it so that live results and job times are kept.
func (p *Pipeline) TrainItemBasedCF(ctx context.Context) (*IBCFResult, error) {
	start := time.Now()
	result, err := p.trainItemBasedCF(ctx, start)
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Elapsed(JobIBCF, "complete training", start)
	return result, nil
}

func (p *Pipeline) trainItemBasedCF(ctx context.Context, start time.Time) (*IBCFResult, error) {
	cfg := p.Config.IBCF
	end := p.end()
	log.Logger().Info("start item-based collaborative filtering",
		zap.Time("begin", end.Add(-p.Config.Source.TimeWindow)),
		zap.Time("end", end),
		zap.String("similarity", cfg.Similarity),
		zap.Int("n_jobs", p.Config.Jobs))

	// load order items
	stepStart := time.Now()
	rows, err := p.LoadOrderItems(ctx, end.Add(-p.Config.Source.TimeWindow), end)
	if err != nil {
		return nil, errors.Trace(err)
	}
	LoadedOrderItems.WithLabelValues(JobIBCF).Set(float64(len(rows)))
	p.step(JobIBCF, "load order items", start, stepStart, zap.Int("n_order_items", len(rows)))

	// build and prune matrix
	stepStart = time.Now()
	matrix, droppedItems, droppedUsers := dataset.NewMatrix(rows).Prune(cfg.MinItemUsers)
	if matrix.CountItems() == 0 || matrix.CountUsers() == 0 {
		return nil, errors.Annotate(logics.ErrEmptyDataset, "no item left after pruning")
	}
	PrunedItems.Set(float64(droppedItems))
	p.step(JobIBCF, "build matrix", start, stepStart,
		zap.Int("n_users", matrix.CountUsers()),
		zap.Int("n_items", matrix.CountItems()),
		zap.Int("n_dropped_items", droppedItems),
		zap.Int("n_dropped_users", droppedUsers))

	// compute similarity
	stepStart = time.Now()
	sim, err := logics.NewItemSimilarity(ctx, matrix, cfg.Similarity, cfg.NumNeighbors, p.Config.Jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	similarItems := p.similarItems(matrix, sim)
	p.step(JobIBCF, "compute similarity", start, stepStart,
		zap.Int("n_pairs", sim.Pairs()),
		zap.Int("n_similar_items", len(similarItems)))

	// recommend
	stepStart = time.Now()
	results, err := logics.RecommendForAll(ctx, matrix, sim, cfg.NumRecommendations, cfg.ExcludePurchased, p.Config.Jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	recommendations := p.userRecommendations(matrix, results)
	RecommendedUsers.Set(float64(len(results)))
	p.step(JobIBCF, "recommend", start, stepStart,
		zap.Int("n_users", len(results)),
		zap.Int("n_recommendations", len(recommendations)))

	return &IBCFResult{
		OrderItems:       len(rows),
		Users:            matrix.CountUsers(),
		Items:            matrix.CountItems(),
		DroppedItems:     droppedItems,
		DroppedUsers:     droppedUsers,
		RecommendedUsers: len(results),
		Recommendations:  recommendations,
		SimilarItems:     similarItems,
	}, nil
}

// similarItems converts neighbors to rows ordered by item id and rank.
func (p *Pipeline) similarItems(matrix *dataset.Matrix, sim *logics.ItemSimilarity) []cache.SimilarItem {
	items := make([]int32, matrix.CountItems())
	for i := range items {
		items[i] = int32(i)
	}
	sort.Slice(items, func(i, j int) bool {
		a, _ := matrix.Items.String(items[i])
		b, _ := matrix.Items.String(items[j])
		return a < b
	})
	var rows []cache.SimilarItem
	for _, item := range items {
		itemId, _ := matrix.Items.String(item)
		for rank, neighbor := range sim.Neighbors(item) {
			neighborId, _ := matrix.Items.String(neighbor.Item)
			rows = append(rows, cache.SimilarItem{
				ItemId:     itemId,
				NeighborId: neighborId,
				Rank:       rank + 1,
				Score:      neighbor.Score,
			})
		}
	}
	return rows
}

func (p *Pipeline) userRecommendations(matrix *dataset.Matrix, results []logics.UserRecommendations) []cache.UserRecommendation {
	var rows []cache.UserRecommendation
	for _, result := range results {
		userId, _ := matrix.Users.String(result.User)
		for rank, item := range result.Items {
			productId, _ := matrix.Items.String(item.Item)
			rows = append(rows, cache.UserRecommendation{
				UserId:    userId,
				Type:      p.Config.IBCF.RecommendType,
				ProductId: productId,
				Rank:      rank + 1,
				Score:     item.Score,
			})
		}
	}
	return rows
}

// Evaluate computes the hit rate of recommendations on purchases in the test window that
// follows the training window.
func (p *Pipeline) Evaluate(ctx context.Context, recommendations []cache.UserRecommendation) (logics.Evaluation, error) {
	start := time.Now()
	begin := p.end()
	end := begin.Add(p.Config.Evaluate.TestWindow)
	testRows, err := p.LoadOrderItems(ctx, begin, end)
	if err != nil {
		return logics.Evaluation{}, errors.Trace(err)
	}
	evaluation := logics.HitRate(recommendations, testRows)
	HitRate.Set(evaluation.HitRate)
	OverlapRatio.Set(evaluation.OverlapRatio)
	if err = p.CacheClient.Set(ctx, cache.LastHitRate, strconv.FormatFloat(evaluation.HitRate, 'f', -1, 64)); err != nil {
		return logics.Evaluation{}, errors.Trace(err)
	}
	log.Elapsed(JobIBCF, "evaluate", start,
		zap.Time("begin", begin),
		zap.Time("end", end),
		zap.Int("n_recommended_users", evaluation.RecommendedUsers),
		zap.Int("n_overlapping_users", evaluation.OverlappingUsers),
		zap.Float64("overlap_ratio", evaluation.OverlapRatio),
		zap.Int("n_hits", evaluation.Hits),
		zap.Float64("hit_rate", evaluation.HitRate))
	return evaluation, nil
}
