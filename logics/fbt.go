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
	"slices"
)

// FilterItemsets keeps itemsets with at least minLength items.
func FilterItemsets(itemsets []Itemset, minLength int) []Itemset {
	var filtered []Itemset
	for _, itemset := range itemsets {
		if len(itemset.Items) >= minLength {
			filtered = append(filtered, itemset)
		}
	}
	return filtered
}

// BoughtTogether is an item bought together with another item.
type BoughtTogether struct {
	Item    int32
	Support float64
}

type ItemBoughtTogether struct {
	Item  int32
	Items []BoughtTogether
}

// FrequentlyBoughtTogether unions the topN best itemsets of every item. Itemsets rank by
// support, then by length, then by items. Recommended items keep the order in which they
// first appear and the support of that itemset. Results are ordered by item.
func FrequentlyBoughtTogether(itemsets []Itemset, topN int) []ItemBoughtTogether {
	ranked := slices.Clone(itemsets)
	slices.SortStableFunc(ranked, func(a, b Itemset) int {
		if c := cmp.Compare(b.Support, a.Support); c != 0 {
			return c
		}
		if c := cmp.Compare(len(b.Items), len(a.Items)); c != 0 {
			return c
		}
		return slices.Compare(a.Items, b.Items)
	})
	// itemsets of each item in rank order
	byItem := make(map[int32][]int)
	for i, itemset := range ranked {
		for _, item := range itemset.Items {
			byItem[item] = append(byItem[item], i)
		}
	}
	results := make([]ItemBoughtTogether, 0, len(byItem))
	for item, indices := range byItem {
		if topN > 0 && len(indices) > topN {
			indices = indices[:topN]
		}
		seen := map[int32]struct{}{item: {}}
		var together []BoughtTogether
		for _, index := range indices {
			for _, other := range ranked[index].Items {
				if _, exist := seen[other]; exist {
					continue
				}
				seen[other] = struct{}{}
				together = append(together, BoughtTogether{Item: other, Support: ranked[index].Support})
			}
		}
		if len(together) > 0 {
			results = append(results, ItemBoughtTogether{Item: item, Items: together})
		}
	}
	slices.SortFunc(results, func(a, b ItemBoughtTogether) int {
		return cmp.Compare(a.Item, b.Item)
	})
	return results
}
