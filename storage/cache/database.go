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
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	ErrObjectNotExist = errors.NotFoundf("object")
	ErrNoDatabase     = errors.NotAssignedf("database")
)

const (
	LastFBTTime   = "last_fbt_time"
	LastIBCFTime  = "last_ibcf_time"
	LastHitRate   = "last_hit_rate"
	LastFBTRules  = "last_fbt_rules"
	LastIBCFUsers = "last_ibcf_users"
)

// FrequentlyBoughtTogether is a product bought together with another product.
type FrequentlyBoughtTogether struct {
	ProductId            string    `json:"product_id" bson:"product_id"`
	RecommendedProductId string    `json:"recommended_product_id" bson:"recommended_product_id"`
	Rank                 int       `json:"rank" bson:"rank"`
	Support              float64   `json:"support" bson:"support"`
	UpdatedAt            time.Time `json:"updated_at" bson:"updated_at"`
	IsCurrent            bool      `json:"is_current" bson:"is_current"`
}

// AssociationRule is a rule "antecedent => consequent" mined from frequent itemsets.
type AssociationRule struct {
	Antecedent []string  `json:"antecedent" bson:"antecedent"`
	Consequent string    `json:"consequent" bson:"consequent"`
	Support    float64   `json:"support" bson:"support"`
	Confidence float64   `json:"confidence" bson:"confidence"`
	Lift       float64   `json:"lift" bson:"lift"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// UserRecommendation is a product recommended to a user.
type UserRecommendation struct {
	UserId    string    `json:"user_id" bson:"user_id"`
	Type      int       `json:"type" bson:"type"`
	ProductId string    `json:"product_id" bson:"product_id"`
	Rank      int       `json:"rank" bson:"rank"`
	Score     float64   `json:"score" bson:"score"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	IsCurrent bool      `json:"is_current" bson:"is_current"`
}

// SimilarItem is a neighbor of an item in the item-item similarity.
type SimilarItem struct {
	ItemId     string    `json:"item_id" bson:"item_id"`
	NeighborId string    `json:"neighbor_id" bson:"neighbor_id"`
	Rank       int       `json:"rank" bson:"rank"`
	Score      float64   `json:"score" bson:"score"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// Database stores recommendation results. Replace methods swap the whole result set:
// once they return, only the new rows are visible.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error

	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)

	ReplaceFrequentlyBoughtTogether(ctx context.Context, rows []FrequentlyBoughtTogether) error
	GetFrequentlyBoughtTogether(ctx context.Context, productId string, n int) ([]FrequentlyBoughtTogether, error)
	ScanFrequentlyBoughtTogether(ctx context.Context, fn func(FrequentlyBoughtTogether) error) error
	ReplaceAssociationRules(ctx context.Context, rules []AssociationRule) error
	GetAssociationRules(ctx context.Context, n int) ([]AssociationRule, error)
	ReplaceUserRecommendations(ctx context.Context, recommendType int, rows []UserRecommendation) error
	GetUserRecommendations(ctx context.Context, userId string, n int) ([]UserRecommendation, error)
	ScanUserRecommendations(ctx context.Context, fn func(UserRecommendation) error) error
	ReplaceSimilarItems(ctx context.Context, rows []SimilarItem) error
	GetSimilarItems(ctx context.Context, itemId string, n int) ([]SimilarItem, error)
}

// Open a connection to a database.
func Open(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	var err error
	option := storage.NewOptions(opts...)
	if strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix) {
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		database.batchSize = option.BatchSize
		if err = redisotel.InstrumentTracing(database.client, redisotel.WithAttributes(semconv.DBSystemRedis)); err != nil {
			log.Logger().Error("failed to add tracing for redis")
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		database.batchSize = option.BatchSize
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, option)
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		database.batchSize = option.BatchSize
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, option)
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		database.batchSize = option.BatchSize
		if database.client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, option)
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MongoPrefix) || strings.HasPrefix(path, storage.MongoSrvPrefix) {
		// connect to database
		database := new(MongoDB)
		opts := options.Client()
		opts.Monitor = otelmongo.NewMonitor()
		opts.ApplyURI(path)
		if database.client, err = mongo.Connect(context.Background(), opts); err != nil {
			return nil, errors.Trace(err)
		}
		// parse DSN and extract database name
		if cs, err := connstring.ParseAndValidate(path); err != nil {
			return nil, errors.Trace(err)
		} else {
			database.dbName = cs.Database
			database.TablePrefix = storage.TablePrefix(tablePrefix)
			database.batchSize = option.BatchSize
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", log.RedactDBURL(path))
}

// stamp sets the update time and the current flag on every row.
func stamp[T any](rows []T, now time.Time, set func(*T, time.Time)) []T {
	stamped := make([]T, len(rows))
	for i := range rows {
		stamped[i] = rows[i]
		set(&stamped[i], now)
	}
	return stamped
}

func stampFrequentlyBoughtTogether(rows []FrequentlyBoughtTogether) []FrequentlyBoughtTogether {
	return stamp(rows, time.Now().UTC(), func(row *FrequentlyBoughtTogether, now time.Time) {
		row.UpdatedAt = now
		row.IsCurrent = true
	})
}

func stampAssociationRules(rows []AssociationRule) []AssociationRule {
	return stamp(rows, time.Now().UTC(), func(row *AssociationRule, now time.Time) {
		row.UpdatedAt = now
	})
}

func stampUserRecommendations(recommendType int, rows []UserRecommendation) []UserRecommendation {
	return stamp(rows, time.Now().UTC(), func(row *UserRecommendation, now time.Time) {
		row.Type = recommendType
		row.UpdatedAt = now
		row.IsCurrent = true
	})
}

func stampSimilarItems(rows []SimilarItem) []SimilarItem {
	return stamp(rows, time.Now().UTC(), func(row *SimilarItem, now time.Time) {
		row.UpdatedAt = now
	})
}
