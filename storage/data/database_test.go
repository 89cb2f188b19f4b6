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
	"os"
	"strconv"
	"time"

	"github.com/stretchr/testify/suite"
)

func env(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TearDownSuite() {
	err := suite.Database.Close()
	suite.NoError(err)
}

func (suite *baseTestSuite) SetupTest() {
	err := suite.Database.Ping()
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TearDownTest() {
	err := suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) getOrderItems(batchSize int, begin, end *time.Time, limit int) []OrderItem {
	itemChan, errChan := suite.Database.GetOrderItemStream(context.Background(), batchSize, begin, end, limit)
	var items []OrderItem
	for batch := range itemChan {
		suite.LessOrEqual(len(batch), batchSize)
		items = append(items, batch...)
	}
	suite.NoError(<-errChan)
	return items
}

func (suite *baseTestSuite) TestInit() {
	err := suite.Database.Init()
	suite.NoError(err)
	// init twice
	err = suite.Database.Init()
	suite.NoError(err)
}

func (suite *baseTestSuite) TestOrderItems() {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var items []OrderItem
	for i := 0; i < 10; i++ {
		for j := 0; j <= i%3; j++ {
			items = append(items, OrderItem{
				OrderId:   strconv.Itoa(i),
				UserId:    "u" + strconv.Itoa(i%4),
				ItemId:    strconv.Itoa(j),
				Timestamp: base.Add(time.Duration(i) * time.Hour),
			})
		}
	}
	err := suite.Database.BatchInsertOrderItems(ctx, items)
	suite.NoError(err)
	err = suite.Database.BatchInsertOrderItems(ctx, nil)
	suite.NoError(err)
	count, err := suite.Database.CountOrderItems(ctx)
	suite.NoError(err)
	suite.Equal(len(items), count)

	// stream all, latest first
	all := suite.getOrderItems(3, nil, nil, 0)
	suite.Equal(len(items), len(all))
	suite.Equal(OrderItem{OrderId: "9", UserId: "u1", ItemId: "0", Timestamp: base.Add(9 * time.Hour)}, all[0])
	for i := 1; i < len(all); i++ {
		suite.False(all[i].Timestamp.After(all[i-1].Timestamp))
	}

	// stream window [2h, 5h)
	begin, end := base.Add(2*time.Hour), base.Add(5*time.Hour)
	window := suite.getOrderItems(2, &begin, &end, 0)
	suite.Len(window, 3+1+2)
	for _, item := range window {
		suite.False(item.Timestamp.Before(begin))
		suite.True(item.Timestamp.Before(end))
	}

	// stream with limit
	limited := suite.getOrderItems(100, &begin, nil, 4)
	suite.Len(limited, 4)
	suite.Equal("9", limited[0].OrderId)

	// purge
	err = suite.Database.Purge()
	suite.NoError(err)
	count, err = suite.Database.CountOrderItems(ctx)
	suite.NoError(err)
	suite.Zero(count)
}

func (suite *baseTestSuite) TestTimezone() {
	ctx := context.Background()
	zone := time.FixedZone("UTC+8", 8*60*60)
	local := time.Date(2024, 6, 1, 8, 0, 0, 0, zone)
	err := suite.Database.BatchInsertOrderItems(ctx, []OrderItem{{OrderId: "1", UserId: "1", ItemId: "1", Timestamp: local}})
	suite.NoError(err)
	begin := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	items := suite.getOrderItems(10, &begin, nil, 0)
	if suite.Len(items, 1) {
		suite.True(local.Equal(items[0].Timestamp))
	}
}
