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
	"testing"

	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestHitRate(t *testing.T) {
	recommendations := []cache.UserRecommendation{
		{UserId: "u1", ProductId: "a"},
		{UserId: "u1", ProductId: "b"},
		{UserId: "u2", ProductId: "c"},
		{UserId: "u3", ProductId: "d"},
		{UserId: "u4", ProductId: "e"},
	}
	testRows := []data.OrderItem{
		{UserId: "u1", ItemId: "a"},
		{UserId: "u1", ItemId: "x"},
		{UserId: "u2", ItemId: "c"},
		{UserId: "u2", ItemId: "a"},
		{UserId: "u9", ItemId: "a"},
	}
	evaluation := HitRate(recommendations, testRows)
	assert.Equal(t, 4, evaluation.RecommendedUsers)
	assert.Equal(t, 2, evaluation.OverlappingUsers)
	assert.Equal(t, 0.5, evaluation.OverlapRatio)
	assert.Equal(t, 4, evaluation.TestRows)
	assert.Equal(t, 2, evaluation.Hits)
	assert.Equal(t, 0.5, evaluation.HitRate)
}

func TestHitRateEmpty(t *testing.T) {
	assert.Equal(t, Evaluation{}, HitRate(nil, nil))
	evaluation := HitRate([]cache.UserRecommendation{{UserId: "u1", ProductId: "a"}}, nil)
	assert.Equal(t, 1, evaluation.RecommendedUsers)
	assert.Zero(t, evaluation.HitRate)
}
