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
	"encoding/json"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorse-io/basket/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const userRecommendationTypes = "user_recommendation_types"

// Redis stores every result table as a hash keyed by the entity id. Rows of an entity are encoded
// as a JSON array in rank order. A replace writes a staging key and renames it over the live key.
type Redis struct {
	storage.TablePrefix
	client    *redis.Client
	batchSize int
}

func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// patterns matches the keys owned by the cache store, staging keys included. Keys of
// other applications sharing the database are never matched, even without a table prefix.
func (r *Redis) patterns() []string {
	return []string{
		r.MetaTable() + ":*",
		r.Key(userRecommendationTypes),
		r.FrequentlyBoughtTogetherTable() + "*",
		r.AssociationRulesTable() + "*",
		r.UserRecommendationsTable() + "*",
		r.SimilarItemsTable() + "*",
	}
}

// Purge deletes every key owned by the cache store.
func (r *Redis) Purge() error {
	ctx := context.Background()
	for _, pattern := range r.patterns() {
		var cursor uint64
		for {
			var (
				keys []string
				err  error
			)
			keys, cursor, err = r.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return errors.Trace(err)
			}
			if len(keys) > 0 {
				if err = r.client.Del(ctx, keys...).Err(); err != nil {
					return errors.Trace(err)
				}
			}
			if cursor == 0 {
				break
			}
		}
	}
	return nil
}

func (r *Redis) metaKey(key string) string {
	return r.Key("meta:" + key)
}

func (r *Redis) userRecommendationsKey(recommendType int) string {
	return r.UserRecommendationsTable() + ":" + strconv.Itoa(recommendType)
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return errors.Trace(r.client.Set(ctx, r.metaKey(key), value, 0).Err())
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.metaKey(key)).Result()
	if err == redis.Nil {
		return "", errors.Annotate(ErrObjectNotExist, key)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	return value, nil
}

// replaceHash groups rows by entity and swaps the hash stored at key.
func replaceHash[T any](ctx context.Context, r *Redis, key string, rows []T, field func(T) string, rank func(T) int) error {
	if len(rows) == 0 {
		return errors.Trace(r.client.Del(ctx, key).Err())
	}
	groups := lo.GroupBy(rows, field)
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return rank(group[i]) < rank(group[j])
		})
	}
	fields := lo.Keys(groups)
	sort.Strings(fields)
	staging := key + ":" + uuid.NewString()
	for _, chunk := range lo.Chunk(fields, r.batchSize) {
		values := make([]any, 0, len(chunk)*2)
		for _, f := range chunk {
			data, err := json.Marshal(groups[f])
			if err != nil {
				return errors.Trace(err)
			}
			values = append(values, f, string(data))
		}
		if err := r.client.HSet(ctx, staging, values...).Err(); err != nil {
			r.client.Del(ctx, staging)
			return errors.Trace(err)
		}
	}
	return errors.Trace(r.client.Rename(ctx, staging, key).Err())
}

func getHash[T any](ctx context.Context, r *Redis, key, field string, n int) ([]T, error) {
	data, err := r.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var rows []T
	if err = json.Unmarshal([]byte(data), &rows); err != nil {
		return nil, errors.Trace(err)
	}
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func scanHash[T any](ctx context.Context, r *Redis, key string, fn func(T) error) error {
	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return errors.Trace(err)
	}
	fields := lo.Keys(values)
	sort.Strings(fields)
	for _, field := range fields {
		var rows []T
		if err = json.Unmarshal([]byte(values[field]), &rows); err != nil {
			return errors.Trace(err)
		}
		for _, row := range rows {
			if err = fn(row); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}

func (r *Redis) ReplaceFrequentlyBoughtTogether(ctx context.Context, rows []FrequentlyBoughtTogether) error {
	return replaceHash(ctx, r, r.FrequentlyBoughtTogetherTable(), stampFrequentlyBoughtTogether(rows),
		func(row FrequentlyBoughtTogether) string { return row.ProductId },
		func(row FrequentlyBoughtTogether) int { return row.Rank })
}

func (r *Redis) GetFrequentlyBoughtTogether(ctx context.Context, productId string, n int) ([]FrequentlyBoughtTogether, error) {
	return getHash[FrequentlyBoughtTogether](ctx, r, r.FrequentlyBoughtTogetherTable(), productId, n)
}

func (r *Redis) ScanFrequentlyBoughtTogether(ctx context.Context, fn func(FrequentlyBoughtTogether) error) error {
	return scanHash(ctx, r, r.FrequentlyBoughtTogetherTable(), fn)
}

// ReplaceAssociationRules stores rules as a single JSON array. The order of the rules is kept.
func (r *Redis) ReplaceAssociationRules(ctx context.Context, rules []AssociationRule) error {
	if len(rules) == 0 {
		return errors.Trace(r.client.Del(ctx, r.AssociationRulesTable()).Err())
	}
	data, err := json.Marshal(stampAssociationRules(rules))
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.client.Set(ctx, r.AssociationRulesTable(), string(data), 0).Err())
}

func (r *Redis) GetAssociationRules(ctx context.Context, n int) ([]AssociationRule, error) {
	data, err := r.client.Get(ctx, r.AssociationRulesTable()).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var rules []AssociationRule
	if err = json.Unmarshal([]byte(data), &rules); err != nil {
		return nil, errors.Trace(err)
	}
	if n > 0 && len(rules) > n {
		rules = rules[:n]
	}
	return rules, nil
}

func (r *Redis) recommendTypes(ctx context.Context) ([]int, error) {
	members, err := r.client.SMembers(ctx, r.Key(userRecommendationTypes)).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	types := make([]int, 0, len(members))
	for _, member := range members {
		recommendType, err := strconv.Atoi(member)
		if err != nil {
			return nil, errors.Trace(err)
		}
		types = append(types, recommendType)
	}
	sort.Ints(types)
	return types, nil
}

func (r *Redis) ReplaceUserRecommendations(ctx context.Context, recommendType int, rows []UserRecommendation) error {
	if err := r.client.SAdd(ctx, r.Key(userRecommendationTypes), strconv.Itoa(recommendType)).Err(); err != nil {
		return errors.Trace(err)
	}
	return replaceHash(ctx, r, r.userRecommendationsKey(recommendType), stampUserRecommendations(recommendType, rows),
		func(row UserRecommendation) string { return row.UserId },
		func(row UserRecommendation) int { return row.Rank })
}

func (r *Redis) GetUserRecommendations(ctx context.Context, userId string, n int) ([]UserRecommendation, error) {
	types, err := r.recommendTypes(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var recommendations []UserRecommendation
	for _, recommendType := range types {
		rows, err := getHash[UserRecommendation](ctx, r, r.userRecommendationsKey(recommendType), userId, 0)
		if err != nil {
			return nil, errors.Trace(err)
		}
		recommendations = append(recommendations, rows...)
	}
	if n > 0 && len(recommendations) > n {
		recommendations = recommendations[:n]
	}
	return recommendations, nil
}

func (r *Redis) ScanUserRecommendations(ctx context.Context, fn func(UserRecommendation) error) error {
	types, err := r.recommendTypes(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	for _, recommendType := range types {
		if err = scanHash(ctx, r, r.userRecommendationsKey(recommendType), fn); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (r *Redis) ReplaceSimilarItems(ctx context.Context, rows []SimilarItem) error {
	return replaceHash(ctx, r, r.SimilarItemsTable(), stampSimilarItems(rows),
		func(row SimilarItem) string { return row.ItemId },
		func(row SimilarItem) int { return row.Rank })
}

func (r *Redis) GetSimilarItems(ctx context.Context, itemId string, n int) ([]SimilarItem, error) {
	return getHash[SimilarItem](ctx, r, r.SimilarItemsTable(), itemId, n)
}
