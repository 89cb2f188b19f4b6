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

	"github.com/gorse-io/basket/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	storage.TablePrefix
	client    *mongo.Client
	dbName    string
	batchSize int
}

func (m MongoDB) collections() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		m.MetaTable(): nil,
		m.FrequentlyBoughtTogetherTable(): {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "rank", Value: 1}}},
		},
		m.AssociationRulesTable(): {
			{Keys: bson.D{{Key: "lift", Value: -1}, {Key: "confidence", Value: -1}}},
		},
		m.UserRecommendationsTable(): {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}, {Key: "rank", Value: 1}}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
		},
		m.SimilarItemsTable(): {
			{Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "rank", Value: 1}}},
		},
	}
}

func (m MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	// list collections
	names, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	exists := lo.SliceToMap(names, func(name string) (string, struct{}) {
		return name, struct{}{}
	})
	for name, indices := range m.collections() {
		if _, ok := exists[name]; !ok {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
		if len(indices) == 0 {
			continue
		}
		// create indices
		if _, err = d.Collection(name).Indexes().CreateMany(ctx, indices); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m MongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

func (m MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m MongoDB) Purge() error {
	ctx := context.Background()
	for name := range m.collections() {
		if _, err := m.client.Database(m.dbName).Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m MongoDB) Set(ctx context.Context, key, value string) error {
	_, err := m.client.Database(m.dbName).Collection(m.MetaTable()).UpdateOne(ctx,
		bson.M{"_id": bson.M{"$eq": key}},
		bson.M{"$set": bson.M{"_id": key, "value": value}},
		options.Update().SetUpsert(true))
	return errors.Trace(err)
}

func (m MongoDB) Get(ctx context.Context, key string) (string, error) {
	r := m.client.Database(m.dbName).Collection(m.MetaTable()).FindOne(ctx, bson.M{"_id": bson.M{"$eq": key}})
	if err := r.Err(); err == mongo.ErrNoDocuments {
		return "", errors.Annotate(ErrObjectNotExist, key)
	} else if err != nil {
		return "", errors.Trace(err)
	}
	var doc bson.M
	if err := r.Decode(&doc); err != nil {
		return "", errors.Trace(err)
	}
	value, _ := doc["value"].(string)
	return value, nil
}

// replaceCollection deletes the documents matched by filter and inserts rows in chunks.
func replaceCollection[T any](ctx context.Context, m MongoDB, name string, filter bson.M, rows []T) error {
	c := m.client.Database(m.dbName).Collection(name)
	if _, err := c.DeleteMany(ctx, filter); err != nil {
		return errors.Trace(err)
	}
	for _, chunk := range lo.Chunk(rows, m.batchSize) {
		docs := lo.Map(chunk, func(row T, _ int) any { return row })
		if _, err := c.InsertMany(ctx, docs); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func find[T any](ctx context.Context, m MongoDB, name string, filter bson.M, sort bson.D, n int) ([]T, error) {
	opt := options.Find().SetSort(sort)
	if n > 0 {
		opt.SetLimit(int64(n))
	}
	r, err := m.client.Database(m.dbName).Collection(name).Find(ctx, filter, opt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var rows []T
	for r.Next(ctx) {
		var row T
		if err = r.Decode(&row); err != nil {
			return nil, errors.Trace(err)
		}
		rows = append(rows, row)
	}
	return rows, errors.Trace(r.Err())
}

func scan[T any](ctx context.Context, m MongoDB, name string, filter bson.M, sort bson.D, fn func(T) error) error {
	r, err := m.client.Database(m.dbName).Collection(name).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return errors.Trace(err)
	}
	defer r.Close(ctx)
	for r.Next(ctx) {
		var row T
		if err = r.Decode(&row); err != nil {
			return errors.Trace(err)
		}
		if err = fn(row); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(r.Err())
}

func (m MongoDB) ReplaceFrequentlyBoughtTogether(ctx context.Context, rows []FrequentlyBoughtTogether) error {
	return replaceCollection(ctx, m, m.FrequentlyBoughtTogetherTable(), bson.M{}, stampFrequentlyBoughtTogether(rows))
}

func (m MongoDB) GetFrequentlyBoughtTogether(ctx context.Context, productId string, n int) ([]FrequentlyBoughtTogether, error) {
	return find[FrequentlyBoughtTogether](ctx, m, m.FrequentlyBoughtTogetherTable(),
		bson.M{"product_id": productId, "is_current": true}, bson.D{{Key: "rank", Value: 1}}, n)
}

func (m MongoDB) ScanFrequentlyBoughtTogether(ctx context.Context, fn func(FrequentlyBoughtTogether) error) error {
	return scan(ctx, m, m.FrequentlyBoughtTogetherTable(), bson.M{"is_current": true},
		bson.D{{Key: "product_id", Value: 1}, {Key: "rank", Value: 1}}, fn)
}

func (m MongoDB) ReplaceAssociationRules(ctx context.Context, rules []AssociationRule) error {
	return replaceCollection(ctx, m, m.AssociationRulesTable(), bson.M{}, stampAssociationRules(rules))
}

func (m MongoDB) GetAssociationRules(ctx context.Context, n int) ([]AssociationRule, error) {
	return find[AssociationRule](ctx, m, m.AssociationRulesTable(), bson.M{},
		bson.D{{Key: "lift", Value: -1}, {Key: "confidence", Value: -1}, {Key: "support", Value: -1}, {Key: "consequent", Value: 1}}, n)
}

func (m MongoDB) ReplaceUserRecommendations(ctx context.Context, recommendType int, rows []UserRecommendation) error {
	return replaceCollection(ctx, m, m.UserRecommendationsTable(), bson.M{"type": recommendType},
		stampUserRecommendations(recommendType, rows))
}

func (m MongoDB) GetUserRecommendations(ctx context.Context, userId string, n int) ([]UserRecommendation, error) {
	return find[UserRecommendation](ctx, m, m.UserRecommendationsTable(),
		bson.M{"user_id": userId, "is_current": true}, bson.D{{Key: "type", Value: 1}, {Key: "rank", Value: 1}}, n)
}

func (m MongoDB) ScanUserRecommendations(ctx context.Context, fn func(UserRecommendation) error) error {
	return scan(ctx, m, m.UserRecommendationsTable(), bson.M{"is_current": true},
		bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}, {Key: "rank", Value: 1}}, fn)
}

func (m MongoDB) ReplaceSimilarItems(ctx context.Context, rows []SimilarItem) error {
	return replaceCollection(ctx, m, m.SimilarItemsTable(), bson.M{}, stampSimilarItems(rows))
}

func (m MongoDB) GetSimilarItems(ctx context.Context, itemId string, n int) ([]SimilarItem, error) {
	return find[SimilarItem](ctx, m, m.SimilarItemsTable(), bson.M{"item_id": itemId}, bson.D{{Key: "rank", Value: 1}}, n)
}
