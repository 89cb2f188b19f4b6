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
	"os"
	"time"

	"github.com/juju/errors"
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

func (suite *baseTestSuite) TestInit() {
	err := suite.Database.Init()
	suite.NoError(err)
	// init twice
	err = suite.Database.Init()
	suite.NoError(err)
}

func (suite *baseTestSuite) TestMeta() {
	ctx := context.Background()
	_, err := suite.Database.Get(ctx, LastFBTTime)
	suite.ErrorIs(err, ErrObjectNotExist)
	suite.True(errors.Is(err, errors.NotFound))
	err = suite.Database.Set(ctx, LastFBTTime, "2024-01-01T00:00:00Z")
	suite.NoError(err)
	value, err := suite.Database.Get(ctx, LastFBTTime)
	suite.NoError(err)
	suite.Equal("2024-01-01T00:00:00Z", value)
	// overwrite
	err = suite.Database.Set(ctx, LastFBTTime, "2024-01-02T00:00:00Z")
	suite.NoError(err)
	value, err = suite.Database.Get(ctx, LastFBTTime)
	suite.NoError(err)
	suite.Equal("2024-01-02T00:00:00Z", value)
}

func (suite *baseTestSuite) TestFrequentlyBoughtTogether() {
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)
	err := suite.Database.ReplaceFrequentlyBoughtTogether(ctx, []FrequentlyBoughtTogether{
		{ProductId: "1", RecommendedProductId: "3", Rank: 2, Support: 0.2},
		{ProductId: "1", RecommendedProductId: "2", Rank: 1, Support: 0.3},
		{ProductId: "1", RecommendedProductId: "4", Rank: 3, Support: 0.1},
		{ProductId: "2", RecommendedProductId: "1", Rank: 1, Support: 0.3},
	})
	suite.NoError(err)
	rows, err := suite.Database.GetFrequentlyBoughtTogether(ctx, "1", 0)
	suite.NoError(err)
	if suite.Len(rows, 3) {
		suite.Equal([]string{"2", "3", "4"}, []string{rows[0].RecommendedProductId, rows[1].RecommendedProductId, rows[2].RecommendedProductId})
		suite.Equal(0.3, rows[0].Support)
		suite.True(rows[0].IsCurrent)
		suite.True(rows[0].UpdatedAt.After(start))
	}
	rows, err = suite.Database.GetFrequentlyBoughtTogether(ctx, "1", 2)
	suite.NoError(err)
	suite.Len(rows, 2)
	rows, err = suite.Database.GetFrequentlyBoughtTogether(ctx, "9", 10)
	suite.NoError(err)
	suite.Empty(rows)

	// scan
	var scanned []string
	err = suite.Database.ScanFrequentlyBoughtTogether(ctx, func(row FrequentlyBoughtTogether) error {
		scanned = append(scanned, row.ProductId+"-"+row.RecommendedProductId)
		return nil
	})
	suite.NoError(err)
	suite.Equal([]string{"1-2", "1-3", "1-4", "2-1"}, scanned)

	// replace
	err = suite.Database.ReplaceFrequentlyBoughtTogether(ctx, []FrequentlyBoughtTogether{
		{ProductId: "3", RecommendedProductId: "1", Rank: 1, Support: 0.5},
	})
	suite.NoError(err)
	rows, err = suite.Database.GetFrequentlyBoughtTogether(ctx, "1", 0)
	suite.NoError(err)
	suite.Empty(rows)
	rows, err = suite.Database.GetFrequentlyBoughtTogether(ctx, "3", 0)
	suite.NoError(err)
	suite.Len(rows, 1)

	// replace with nothing
	err = suite.Database.ReplaceFrequentlyBoughtTogether(ctx, nil)
	suite.NoError(err)
	rows, err = suite.Database.GetFrequentlyBoughtTogether(ctx, "3", 0)
	suite.NoError(err)
	suite.Empty(rows)
}

func (suite *baseTestSuite) TestAssociationRules() {
	ctx := context.Background()
	err := suite.Database.ReplaceAssociationRules(ctx, []AssociationRule{
		{Antecedent: []string{"1", "2"}, Consequent: "3", Support: 0.1, Confidence: 0.8, Lift: 2.5},
		{Antecedent: []string{"1"}, Consequent: "2", Support: 0.2, Confidence: 0.5, Lift: 1.5},
	})
	suite.NoError(err)
	rules, err := suite.Database.GetAssociationRules(ctx, 0)
	suite.NoError(err)
	if suite.Len(rules, 2) {
		suite.Equal([]string{"1", "2"}, rules[0].Antecedent)
		suite.Equal("3", rules[0].Consequent)
		suite.Equal(0.8, rules[0].Confidence)
		suite.Equal(2.5, rules[0].Lift)
		suite.Equal([]string{"1"}, rules[1].Antecedent)
	}
	rules, err = suite.Database.GetAssociationRules(ctx, 1)
	suite.NoError(err)
	suite.Len(rules, 1)

	err = suite.Database.ReplaceAssociationRules(ctx, nil)
	suite.NoError(err)
	rules, err = suite.Database.GetAssociationRules(ctx, 0)
	suite.NoError(err)
	suite.Empty(rules)
}

func (suite *baseTestSuite) TestUserRecommendations() {
	ctx := context.Background()
	err := suite.Database.ReplaceUserRecommendations(ctx, 1, []UserRecommendation{
		{UserId: "u1", ProductId: "2", Rank: 2, Score: 0.5},
		{UserId: "u1", ProductId: "1", Rank: 1, Score: 0.9},
		{UserId: "u2", ProductId: "3", Rank: 1, Score: 0.7},
	})
	suite.NoError(err)
	err = suite.Database.ReplaceUserRecommendations(ctx, 2, []UserRecommendation{
		{UserId: "u1", ProductId: "9", Rank: 1, Score: 0.1},
	})
	suite.NoError(err)
	rows, err := suite.Database.GetUserRecommendations(ctx, "u1", 0)
	suite.NoError(err)
	if suite.Len(rows, 3) {
		suite.Equal("1", rows[0].ProductId)
		suite.Equal(1, rows[0].Type)
		suite.Equal(0.9, rows[0].Score)
		suite.Equal("2", rows[1].ProductId)
		suite.Equal("9", rows[2].ProductId)
		suite.Equal(2, rows[2].Type)
	}
	rows, err = suite.Database.GetUserRecommendations(ctx, "u1", 1)
	suite.NoError(err)
	suite.Len(rows, 1)

	// replace one type
	err = suite.Database.ReplaceUserRecommendations(ctx, 1, []UserRecommendation{
		{UserId: "u3", ProductId: "4", Rank: 1, Score: 0.3},
	})
	suite.NoError(err)
	rows, err = suite.Database.GetUserRecommendations(ctx, "u1", 0)
	suite.NoError(err)
	if suite.Len(rows, 1) {
		suite.Equal("9", rows[0].ProductId)
	}

	// scan
	var scanned []string
	err = suite.Database.ScanUserRecommendations(ctx, func(row UserRecommendation) error {
		scanned = append(scanned, row.UserId+"-"+row.ProductId)
		return nil
	})
	suite.NoError(err)
	suite.ElementsMatch([]string{"u1-9", "u3-4"}, scanned)
}

func (suite *baseTestSuite) TestSimilarItems() {
	ctx := context.Background()
	err := suite.Database.ReplaceSimilarItems(ctx, []SimilarItem{
		{ItemId: "1", NeighborId: "3", Rank: 2, Score: 0.4},
		{ItemId: "1", NeighborId: "2", Rank: 1, Score: 0.6},
		{ItemId: "2", NeighborId: "1", Rank: 1, Score: 0.6},
	})
	suite.NoError(err)
	rows, err := suite.Database.GetSimilarItems(ctx, "1", 0)
	suite.NoError(err)
	if suite.Len(rows, 2) {
		suite.Equal("2", rows[0].NeighborId)
		suite.Equal(0.6, rows[0].Score)
		suite.Equal("3", rows[1].NeighborId)
	}
	rows, err = suite.Database.GetSimilarItems(ctx, "1", 1)
	suite.NoError(err)
	suite.Len(rows, 1)

	err = suite.Database.ReplaceSimilarItems(ctx, []SimilarItem{
		{ItemId: "3", NeighborId: "1", Rank: 1, Score: 0.4},
	})
	suite.NoError(err)
	rows, err = suite.Database.GetSimilarItems(ctx, "1", 0)
	suite.NoError(err)
	suite.Empty(rows)
}
