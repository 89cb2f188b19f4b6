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

	"github.com/stretchr/testify/assert"
)

func TestAssociationRules(t *testing.T) {
	itemsets := FPGrowth(testBaskets, 3, 0.4, 0)
	rules := AssociationRules(itemsets, 0, 0)
	if assert.Len(t, rules, 9) {
		assert.Equal(t, []int32{0}, rules[0].Antecedent)
		assert.Equal(t, int32(1), rules[0].Consequent)
		assert.InDelta(t, 0.6, rules[0].Support, 1e-9)
		assert.InDelta(t, 0.75, rules[0].Confidence, 1e-9)
		assert.InDelta(t, 0.9375, rules[0].Lift, 1e-9)
		assert.Equal(t, []int32{0}, rules[1].Antecedent)
		assert.Equal(t, int32(2), rules[1].Consequent)
		assert.Equal(t, []int32{2}, rules[5].Antecedent)
		assert.Equal(t, int32(1), rules[5].Consequent)
		assert.Equal(t, []int32{0, 1}, rules[6].Antecedent)
		assert.Equal(t, int32(2), rules[6].Consequent)
		assert.InDelta(t, 2.0/3.0, rules[6].Confidence, 1e-9)
		assert.InDelta(t, 2.0/3.0/0.8, rules[6].Lift, 1e-9)
	}
	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, rules[i-1].Lift, rules[i].Lift)
	}

	// thresholds
	assert.Len(t, AssociationRules(itemsets, 0.7, 0), 6)
	assert.Len(t, AssociationRules(itemsets, 0, 0.9), 6)
	assert.Empty(t, AssociationRules(itemsets, 0, 1))
}

func TestAssociationRulesUnknownSupport(t *testing.T) {
	rules := AssociationRules([]Itemset{{Items: []int32{0, 1}, Support: 0.5}}, 0, 0)
	assert.Empty(t, rules)
}
