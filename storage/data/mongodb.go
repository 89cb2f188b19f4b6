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

package data

import (
	"context"
	"time"

	"github.com/gorse-io/basket/storage"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB stores order items in a collection.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{"name": db.OrderItemsTable()})
	if err != nil {
		return errors.Trace(err)
	}
	if len(collections) == 0 {
		if err = d.CreateCollection(ctx, db.OrderItemsTable()); err != nil {
			return errors.Trace(err)
		}
	}
	// create indices
	_, err = d.Collection(db.OrderItemsTable()).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "time_stamp", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	})
	return errors.Trace(err)
}

func (db *MongoDB) Ping() error {
	return db.client.Ping(context.Background(), nil)
}

func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) Purge() error {
	_, err := db.client.Database(db.dbName).Collection(db.OrderItemsTable()).DeleteMany(context.Background(), bson.M{})
	return errors.Trace(err)
}

func (db *MongoDB) BatchInsertOrderItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]any, len(items))
	for i, item := range items {
		item.Timestamp = item.Timestamp.UTC()
		docs[i] = item
	}
	_, err := db.client.Database(db.dbName).Collection(db.OrderItemsTable()).InsertMany(ctx, docs)
	return errors.Trace(err)
}

func (db *MongoDB) CountOrderItems(ctx context.Context) (int, error) {
	n, err := db.client.Database(db.dbName).Collection(db.OrderItemsTable()).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return int(n), nil
}

func (db *MongoDB) GetOrderItemStream(ctx context.Context, batchSize int, begin, end *time.Time, limit int) (chan []OrderItem, chan error) {
	itemChan := make(chan []OrderItem, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(itemChan)
		defer close(errChan)
		filter := bson.M{}
		timeFilter := bson.M{}
		if begin != nil {
			timeFilter["$gte"] = begin.UTC()
		}
		if end != nil {
			timeFilter["$lt"] = end.UTC()
		}
		if len(timeFilter) > 0 {
			filter["time_stamp"] = timeFilter
		}
		opt := options.Find().SetSort(bson.D{{Key: "time_stamp", Value: -1}, {Key: "order_id", Value: 1}, {Key: "item_id", Value: 1}})
		if limit > 0 {
			opt.SetLimit(int64(limit))
		}
		r, err := db.client.Database(db.dbName).Collection(db.OrderItemsTable()).Find(ctx, filter, opt)
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer r.Close(ctx)
		items := make([]OrderItem, 0, batchSize)
		for r.Next(ctx) {
			var item OrderItem
			if err = r.Decode(&item); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			item.Timestamp = item.Timestamp.UTC()
			items = append(items, item)
			if len(items) == batchSize {
				itemChan <- items
				items = make([]OrderItem, 0, batchSize)
			}
		}
		if err = r.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(items) > 0 {
			itemChan <- items
		}
		errChan <- nil
	}()
	return itemChan, errChan
}
