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
	"context"
	"math"
	"sort"

	"github.com/gorse-io/basket/common/parallel"
	"github.com/gorse-io/basket/dataset"
	"github.com/juju/errors"
)

var ErrEmptyDataset = errors.NotValidf("empty dataset")

// Recommendation is an item recommended to a user.
type Recommendation struct {
	Item  int32
	Score float64
}

type UserRecommendations struct {
	User  int32
	Items []Recommendation
}

func round(x float64) float64 {
	return math.Round(x*1e5) / 1e5
}

// RecommendForUser takes the n items the user bought most and recommends the most similar
// item of each. A recommended item appears once with the score of its first occurrence.
// Purchased items are dropped if excludePurchased is set.
func RecommendForUser(matrix *dataset.Matrix, sim *ItemSimilarity, user int32, n int, excludePurchased bool) []Recommendation {
	items := matrix.UserItems(user)
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	seen := make(map[int32]struct{}, len(items))
	var recommendations []Recommendation
	for _, cell := range items {
		neighbor, ok := sim.MostSimilar(cell.Index)
		if !ok {
			continue
		}
		if _, exist := seen[neighbor.Item]; exist {
			continue
		}
		seen[neighbor.Item] = struct{}{}
		if excludePurchased && matrix.HasPurchased(user, neighbor.Item) {
			continue
		}
		recommendations = append(recommendations, Recommendation{Item: neighbor.Item, Score: round(neighbor.Score)})
	}
	return recommendations
}

// RecommendForAll recommends items to every user. Users without recommendations are left
// out. Results are ordered by user id.
func RecommendForAll(ctx context.Context, matrix *dataset.Matrix, sim *ItemSimilarity, n int, excludePurchased bool, jobs int) ([]UserRecommendations, error) {
	if matrix.CountUsers() == 0 || matrix.CountItems() == 0 {
		return nil, ErrEmptyDataset
	}
	results := make([][]Recommendation, matrix.CountUsers())
	if err := parallel.For(ctx, matrix.CountUsers(), jobs, func(u int) {
		results[u] = RecommendForUser(matrix, sim, int32(u), n, excludePurchased)
	}); err != nil {
		return nil, errors.Trace(err)
	}
	var recommendations []UserRecommendations
	for u, items := range results {
		if len(items) > 0 {
			recommendations = append(recommendations, UserRecommendations{User: int32(u), Items: items})
		}
	}
	sort.Slice(recommendations, func(i, j int) bool {
		a, _ := matrix.Users.String(recommendations[i].User)
		b, _ := matrix.Users.String(recommendations[j].User)
		return a < b
	})
	return recommendations, nil
}
