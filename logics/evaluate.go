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

package logics

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/samber/lo"
)

// Evaluation is the hit rate of user recommendations on later purchases.
type Evaluation struct {
	RecommendedUsers int     `json:"recommended_users"`
	OverlappingUsers int     `json:"overlapping_users"`
	OverlapRatio     float64 `json:"overlap_ratio"`
	TestRows         int     `json:"test_rows"`
	Hits             int     `json:"hits"`
	HitRate          float64 `json:"hit_rate"`
}

// HitRate counts the purchases of recommended users that were recommended to them. Purchases
// of other users are ignored.
func HitRate(recommendations []cache.UserRecommendation, testRows []data.OrderItem) Evaluation {
	users := mapset.NewThreadUnsafeSet[string]()
	pairs := mapset.NewThreadUnsafeSet[lo.Tuple2[string, string]]()
	for _, recommendation := range recommendations {
		users.Add(recommendation.UserId)
		pairs.Add(lo.Tuple2[string, string]{A: recommendation.UserId, B: recommendation.ProductId})
	}
	var evaluation Evaluation
	evaluation.RecommendedUsers = users.Cardinality()
	overlapping := mapset.NewThreadUnsafeSet[string]()
	for _, row := range testRows {
		if !users.Contains(row.UserId) {
			continue
		}
		overlapping.Add(row.UserId)
		evaluation.TestRows++
		if pairs.Contains(lo.Tuple2[string, string]{A: row.UserId, B: row.ItemId}) {
			evaluation.Hits++
		}
	}
	evaluation.OverlappingUsers = overlapping.Cardinality()
	if evaluation.RecommendedUsers > 0 {
		evaluation.OverlapRatio = float64(evaluation.OverlappingUsers) / float64(evaluation.RecommendedUsers)
	}
	if evaluation.TestRows > 0 {
		evaluation.HitRate = float64(evaluation.Hits) / float64(evaluation.TestRows)
	}
	return evaluation
}
