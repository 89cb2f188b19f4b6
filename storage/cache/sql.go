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
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorse-io/basket/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type SQLMeta struct {
	Name  string `gorm:"column:name;type:varchar(256);primaryKey"`
	Value string `gorm:"column:value;type:text"`
}

type SQLFrequentlyBoughtTogether struct {
	ProductId            string    `gorm:"column:product_id;type:varchar(256);index"`
	RecommendedProductId string    `gorm:"column:recommended_product_id;type:varchar(256)"`
	Rank                 int       `gorm:"column:rank_no"`
	Support              float64   `gorm:"column:support"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	IsCurrent            bool      `gorm:"column:is_current"`
}

type SQLAssociationRule struct {
	Antecedent string    `gorm:"column:antecedent;type:text"`
	Consequent string    `gorm:"column:consequent;type:varchar(256)"`
	Support    float64   `gorm:"column:support"`
	Confidence float64   `gorm:"column:confidence"`
	Lift       float64   `gorm:"column:lift;index"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

type SQLUserRecommendation struct {
	UserId    string    `gorm:"column:user_id;type:varchar(256);index"`
	Type      int       `gorm:"column:recommend_type;index"`
	ProductId string    `gorm:"column:product_id;type:varchar(256)"`
	Rank      int       `gorm:"column:rank_no"`
	Score     float64   `gorm:"column:score"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	IsCurrent bool      `gorm:"column:is_current"`
}

type SQLSimilarItem struct {
	ItemId     string    `gorm:"column:item_id;type:varchar(256);index"`
	NeighborId string    `gorm:"column:neighbor_id;type:varchar(256)"`
	Rank       int       `gorm:"column:rank_no"`
	Score      float64   `gorm:"column:score"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

// SQLDatabase stores recommendation results in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB    *gorm.DB
	client    *sql.DB
	driver    SQLDriver
	batchSize int
}

func (db *SQLDatabase) Init() error {
	tx := db.gormDB
	if db.driver == MySQL {
		tx = tx.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := tx.AutoMigrate(&SQLMeta{}, &SQLFrequentlyBoughtTogether{}, &SQLAssociationRule{},
		&SQLUserRecommendation{}, &SQLSimilarItem{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (db *SQLDatabase) Ping() error {
	return db.client.Ping()
}

func (db *SQLDatabase) Close() error {
	return db.client.Close()
}

func (db *SQLDatabase) tables() []string {
	return []string{
		db.MetaTable(),
		db.FrequentlyBoughtTogetherTable(),
		db.AssociationRulesTable(),
		db.UserRecommendationsTable(),
		db.SimilarItemsTable(),
	}
}

func (db *SQLDatabase) Purge() error {
	for _, table := range db.tables() {
		if !db.gormDB.Migrator().HasTable(table) {
			continue
		}
		var err error
		switch db.driver {
		case SQLite:
			err = db.gormDB.Exec("DELETE FROM " + table).Error
		default:
			err = db.gormDB.Exec("TRUNCATE TABLE " + table).Error
		}
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *SQLDatabase) Set(ctx context.Context, key, value string) error {
	err := db.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&SQLMeta{Name: key, Value: value}).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) Get(ctx context.Context, key string) (string, error) {
	var meta SQLMeta
	result := db.gormDB.WithContext(ctx).Where("name = ?", key).Limit(1).Find(&meta)
	if result.Error != nil {
		return "", errors.Trace(result.Error)
	}
	if result.RowsAffected == 0 {
		return "", errors.Annotate(ErrObjectNotExist, key)
	}
	return meta.Value, nil
}

// replace deletes the rows matched by query and inserts new rows in one transaction.
func replace[T any](ctx context.Context, db *SQLDatabase, rows []T, query any, args ...any) error {
	err := db.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var zero T
		if err := tx.Where(query, args...).Delete(&zero).Error; err != nil {
			return errors.Trace(err)
		}
		if len(rows) == 0 {
			return nil
		}
		return errors.Trace(tx.CreateInBatches(rows, db.batchSize).Error)
	})
	return errors.Trace(err)
}

func limit(tx *gorm.DB, n int) *gorm.DB {
	if n > 0 {
		return tx.Limit(n)
	}
	return tx
}

func (db *SQLDatabase) ReplaceFrequentlyBoughtTogether(ctx context.Context, rows []FrequentlyBoughtTogether) error {
	models := lo.Map(stampFrequentlyBoughtTogether(rows), func(row FrequentlyBoughtTogether, _ int) SQLFrequentlyBoughtTogether {
		return SQLFrequentlyBoughtTogether(row)
	})
	return replace(ctx, db, models, "1 = 1")
}

func (db *SQLDatabase) GetFrequentlyBoughtTogether(ctx context.Context, productId string, n int) ([]FrequentlyBoughtTogether, error) {
	var models []SQLFrequentlyBoughtTogether
	tx := db.gormDB.WithContext(ctx).Where("product_id = ? AND is_current = ?", productId, true).Order("rank_no")
	if err := limit(tx, n).Find(&models).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(models, func(model SQLFrequentlyBoughtTogether, _ int) FrequentlyBoughtTogether {
		return FrequentlyBoughtTogether(model)
	}), nil
}

func (db *SQLDatabase) ScanFrequentlyBoughtTogether(ctx context.Context, fn func(FrequentlyBoughtTogether) error) error {
	rows, err := db.gormDB.WithContext(ctx).Model(&SQLFrequentlyBoughtTogether{}).
		Where("is_current = ?", true).Order("product_id").Order("rank_no").Rows()
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		var model SQLFrequentlyBoughtTogether
		if err = db.gormDB.ScanRows(rows, &model); err != nil {
			return errors.Trace(err)
		}
		if err = fn(FrequentlyBoughtTogether(model)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(rows.Err())
}

func (db *SQLDatabase) ReplaceAssociationRules(ctx context.Context, rules []AssociationRule) error {
	models := make([]SQLAssociationRule, 0, len(rules))
	for _, rule := range stampAssociationRules(rules) {
		antecedent, err := json.Marshal(rule.Antecedent)
		if err != nil {
			return errors.Trace(err)
		}
		models = append(models, SQLAssociationRule{
			Antecedent: string(antecedent),
			Consequent: rule.Consequent,
			Support:    rule.Support,
			Confidence: rule.Confidence,
			Lift:       rule.Lift,
			UpdatedAt:  rule.UpdatedAt,
		})
	}
	return replace(ctx, db, models, "1 = 1")
}

func (db *SQLDatabase) GetAssociationRules(ctx context.Context, n int) ([]AssociationRule, error) {
	var models []SQLAssociationRule
	tx := db.gormDB.WithContext(ctx).Model(&SQLAssociationRule{}).
		Order("lift DESC").Order("confidence DESC").Order("support DESC").Order("consequent")
	if err := limit(tx, n).Find(&models).Error; err != nil {
		return nil, errors.Trace(err)
	}
	rules := make([]AssociationRule, 0, len(models))
	for _, model := range models {
		rule := AssociationRule{
			Consequent: model.Consequent,
			Support:    model.Support,
			Confidence: model.Confidence,
			Lift:       model.Lift,
			UpdatedAt:  model.UpdatedAt,
		}
		if err := json.Unmarshal([]byte(model.Antecedent), &rule.Antecedent); err != nil {
			return nil, errors.Trace(err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (db *SQLDatabase) ReplaceUserRecommendations(ctx context.Context, recommendType int, rows []UserRecommendation) error {
	models := lo.Map(stampUserRecommendations(recommendType, rows), func(row UserRecommendation, _ int) SQLUserRecommendation {
		return SQLUserRecommendation(row)
	})
	return replace(ctx, db, models, "recommend_type = ?", recommendType)
}

func (db *SQLDatabase) GetUserRecommendations(ctx context.Context, userId string, n int) ([]UserRecommendation, error) {
	var models []SQLUserRecommendation
	tx := db.gormDB.WithContext(ctx).Where("user_id = ? AND is_current = ?", userId, true).
		Order("recommend_type").Order("rank_no")
	if err := limit(tx, n).Find(&models).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(models, func(model SQLUserRecommendation, _ int) UserRecommendation {
		return UserRecommendation(model)
	}), nil
}

func (db *SQLDatabase) ScanUserRecommendations(ctx context.Context, fn func(UserRecommendation) error) error {
	rows, err := db.gormDB.WithContext(ctx).Model(&SQLUserRecommendation{}).
		Where("is_current = ?", true).Order("user_id").Order("recommend_type").Order("rank_no").Rows()
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		var model SQLUserRecommendation
		if err = db.gormDB.ScanRows(rows, &model); err != nil {
			return errors.Trace(err)
		}
		if err = fn(UserRecommendation(model)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(rows.Err())
}

func (db *SQLDatabase) ReplaceSimilarItems(ctx context.Context, rows []SimilarItem) error {
	models := lo.Map(stampSimilarItems(rows), func(row SimilarItem, _ int) SQLSimilarItem {
		return SQLSimilarItem(row)
	})
	return replace(ctx, db, models, "1 = 1")
}

func (db *SQLDatabase) GetSimilarItems(ctx context.Context, itemId string, n int) ([]SimilarItem, error) {
	var models []SQLSimilarItem
	tx := db.gormDB.WithContext(ctx).Where("item_id = ?", itemId).Order("rank_no")
	if err := limit(tx, n).Find(&models).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(models, func(model SQLSimilarItem, _ int) SimilarItem {
		return SimilarItem(model)
	}), nil
}
