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
	"cmp"
	"encoding/binary"
	"slices"
)

// Rule is an association rule "Antecedent => Consequent".
type Rule struct {
	Antecedent []int32
	Consequent int32
	Support    float64
	Confidence float64
	Lift       float64
}

func itemsetKey(items []int32) string {
	buf := make([]byte, 4*len(items))
	for i, item := range items {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(item))
	}
	return string(buf)
}

// AssociationRules generates rules with a single consequent from itemsets. A rule is
// skipped if the support of its antecedent or consequent is unknown. Rules are sorted by
// lift, confidence and support descending.
func AssociationRules(itemsets []Itemset, minConfidence, minLift float64) []Rule {
	supports := make(map[string]float64, len(itemsets))
	for _, itemset := range itemsets {
		supports[itemsetKey(itemset.Items)] = itemset.Support
	}
	var rules []Rule
	for _, itemset := range itemsets {
		if len(itemset.Items) < 2 {
			continue
		}
		for i, consequent := range itemset.Items {
			antecedent := make([]int32, 0, len(itemset.Items)-1)
			antecedent = append(antecedent, itemset.Items[:i]...)
			antecedent = append(antecedent, itemset.Items[i+1:]...)
			antecedentSupport, ok := supports[itemsetKey(antecedent)]
			if !ok || antecedentSupport == 0 {
				continue
			}
			consequentSupport, ok := supports[itemsetKey([]int32{consequent})]
			if !ok || consequentSupport == 0 {
				continue
			}
			confidence := itemset.Support / antecedentSupport
			lift := confidence / consequentSupport
			if confidence < minConfidence || lift < minLift {
				continue
			}
			rules = append(rules, Rule{
				Antecedent: antecedent,
				Consequent: consequent,
				Support:    itemset.Support,
				Confidence: confidence,
				Lift:       lift,
			})
		}
	}
	slices.SortFunc(rules, func(a, b Rule) int {
		if c := cmp.Compare(b.Lift, a.Lift); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Support, a.Support); c != 0 {
			return c
		}
		if c := slices.Compare(a.Antecedent, b.Antecedent); c != 0 {
			return c
		}
		return cmp.Compare(a.Consequent, b.Consequent)
	})
	return rules
}
