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

package storage

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestAppendURLParams(t *testing.T) {
	url, err := AppendURLParams("sqlite://basket.db", []lo.Tuple2[string, string]{{A: "_pragma", B: "busy_timeout(10000)"}})
	assert.NoError(t, err)
	assert.Equal(t, "sqlite://basket.db?_pragma=busy_timeout%2810000%29", url)
	url, err = AppendURLParams(`sqlite.db`, []lo.Tuple2[string, string]{{A: "a", B: "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `sqlite.db?a=b`, url)
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := AppendMySQLParams("basket:basket_pass@tcp(localhost:3306)/basket?foo=bar", map[string]string{
		"foo": "baz",
		"zoo": "1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "basket:basket_pass@tcp(localhost:3306)/basket?foo=bar&zoo=1", dsn)
}

func TestTablePrefix(t *testing.T) {
	prefix := TablePrefix("basket_")
	assert.Equal(t, "basket_order_items", prefix.OrderItemsTable())
	assert.Equal(t, "basket_frequently_bought_together", prefix.FrequentlyBoughtTogetherTable())
	assert.Equal(t, "basket_association_rules", prefix.AssociationRulesTable())
	assert.Equal(t, "basket_user_recommendations", prefix.UserRecommendationsTable())
	assert.Equal(t, "basket_similar_items", prefix.SimilarItemsTable())
	assert.Equal(t, "basket_meta", prefix.MetaTable())
	assert.Equal(t, "basket_key", prefix.Key("key"))
}

func TestNewGORMConfig(t *testing.T) {
	cfg := NewGORMConfig("basket_")
	assert.Equal(t, "basket_order_items", cfg.NamingStrategy.TableName("SQLOrderItem"))
	assert.Equal(t, "basket_meta", cfg.NamingStrategy.TableName("SQLMeta"))
	assert.True(t, cfg.SkipDefaultTransaction)
}

func TestNewOptions(t *testing.T) {
	opt := NewOptions()
	assert.Equal(t, 10000, opt.BatchSize)
	opt = NewOptions(WithBatchSize(100), WithMaxOpenConns(8), WithMaxIdleConns(4))
	assert.Equal(t, 100, opt.BatchSize)
	assert.Equal(t, 8, opt.MaxOpenConns)
	assert.Equal(t, 4, opt.MaxIdleConns)
	assert.Equal(t, 10000, NewOptions(WithBatchSize(0)).BatchSize)
}
