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
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/basket/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	_ "github.com/mailru/go-clickhouse/v2"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

const bufSize = 1

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	ClickHouse
	SQLite
)

// SQLDatabase stores order items in MySQL, Postgres, ClickHouse or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates the order items table and its indices.
func (d *SQLDatabase) Init() error {
	switch d.driver {
	case MySQL:
		type OrderItems struct {
			OrderId   string    `gorm:"column:order_id;type:varchar(256) not null;index:order_items_order_id"`
			UserId    string    `gorm:"column:user_id;type:varchar(256) not null;index:order_items_user_id"`
			ItemId    string    `gorm:"column:item_id;type:varchar(256) not null"`
			Timestamp time.Time `gorm:"column:time_stamp;type:datetime not null;index:order_items_time_stamp"`
		}
		err := d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").Table(d.OrderItemsTable()).AutoMigrate(OrderItems{})
		if err != nil {
			return errors.Trace(err)
		}
	case Postgres:
		type OrderItems struct {
			OrderId   string    `gorm:"column:order_id;type:varchar(256) not null;index:order_id_index"`
			UserId    string    `gorm:"column:user_id;type:varchar(256) not null;index:user_id_index"`
			ItemId    string    `gorm:"column:item_id;type:varchar(256) not null"`
			Timestamp time.Time `gorm:"column:time_stamp;type:timestamptz not null;index:time_stamp_index"`
		}
		err := d.gormDB.Table(d.OrderItemsTable()).AutoMigrate(OrderItems{})
		if err != nil {
			return errors.Trace(err)
		}
	case ClickHouse:
		type OrderItems struct {
			OrderId   string    `gorm:"column:order_id;type:String"`
			UserId    string    `gorm:"column:user_id;type:String;index:user_index,type:bloom_filter(0.01),granularity:1"`
			ItemId    string    `gorm:"column:item_id;type:String"`
			Timestamp time.Time `gorm:"column:time_stamp;type:DateTime"`
		}
		err := d.gormDB.Set("gorm:table_options", "ENGINE = MergeTree() ORDER BY (time_stamp, order_id)").
			Table(d.OrderItemsTable()).AutoMigrate(OrderItems{})
		if err != nil {
			return errors.Trace(err)
		}
	case SQLite:
		type OrderItems struct {
			OrderId   string    `gorm:"column:order_id;type:varchar(256) not null;index:order_items_order_id"`
			UserId    string    `gorm:"column:user_id;type:varchar(256) not null;index:order_items_user_id"`
			ItemId    string    `gorm:"column:item_id;type:varchar(256) not null"`
			Timestamp time.Time `gorm:"column:time_stamp;type:datetime not null;index:order_items_time_stamp"`
		}
		err := d.gormDB.Table(d.OrderItemsTable()).AutoMigrate(OrderItems{})
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

// Close the database connection.
func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes every order item.
func (d *SQLDatabase) Purge() error {
	if !d.gormDB.Migrator().HasTable(d.OrderItemsTable()) {
		return nil
	}
	var err error
	switch d.driver {
	case SQLite:
		err = d.gormDB.Exec("DELETE FROM " + d.OrderItemsTable()).Error
	default:
		err = d.gormDB.Exec("TRUNCATE TABLE " + d.OrderItemsTable()).Error
	}
	return errors.Trace(err)
}

// BatchInsertOrderItems appends order items. Timestamps are stored in UTC.
func (d *SQLDatabase) BatchInsertOrderItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]OrderItem, len(items))
	for i, item := range items {
		rows[i] = item
		rows[i].Timestamp = item.Timestamp.UTC()
	}
	err := d.gormDB.WithContext(ctx).Table(d.OrderItemsTable()).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) CountOrderItems(ctx context.Context) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Table(d.OrderItemsTable()).Count(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

// GetOrderItemStream reads order items by stream.
func (d *SQLDatabase) GetOrderItemStream(ctx context.Context, batchSize int, begin, end *time.Time, limit int) (chan []OrderItem, chan error) {
	itemChan := make(chan []OrderItem, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(itemChan)
		defer close(errChan)
		// send query
		tx := d.gormDB.WithContext(ctx).Table(d.OrderItemsTable()).Select("order_id, user_id, item_id, time_stamp")
		if begin != nil {
			tx = tx.Where("time_stamp >= ?", begin.UTC())
		}
		if end != nil {
			tx = tx.Where("time_stamp < ?", end.UTC())
		}
		tx = tx.Order("time_stamp DESC").Order("order_id").Order("item_id")
		if limit > 0 {
			tx = tx.Limit(limit)
		}
		result, err := tx.Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		// fetch result
		items := make([]OrderItem, 0, batchSize)
		defer result.Close()
		for result.Next() {
			var item OrderItem
			if err = result.Scan(&item.OrderId, &item.UserId, &item.ItemId, &item.Timestamp); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			item.Timestamp = item.Timestamp.UTC()
			items = append(items, item)
			if len(items) == batchSize {
				select {
				case <-ctx.Done():
					errChan <- errors.Trace(ctx.Err())
					return
				case itemChan <- items:
				}
				items = make([]OrderItem, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
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
