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
	"math"
	"slices"
)

// Itemset is a set of items bought together in at least Count baskets.
type Itemset struct {
	Items   []int32
	Count   int
	Support float64
}

// MinCount returns the number of baskets an itemset must appear in to reach minSupport.
func MinCount(minSupport float64, nBaskets int) int {
	return max(1, int(math.Ceil(minSupport*float64(nBaskets)-1e-9)))
}

type fpNode struct {
	item     int32
	count    int
	parent   *fpNode
	children map[int32]*fpNode
}

type fpTree struct {
	root   *fpNode
	header map[int32][]*fpNode
	// items ordered by descending global frequency
	items []int32
}

func newFPTree() *fpTree {
	return &fpTree{
		root:   &fpNode{item: -1, children: make(map[int32]*fpNode)},
		header: make(map[int32][]*fpNode),
	}
}

func (t *fpTree) insert(path []int32, count int) {
	node := t.root
	for _, item := range path {
		child, ok := node.children[item]
		if !ok {
			child = &fpNode{item: item, parent: node, children: make(map[int32]*fpNode)}
			node.children[item] = child
			t.header[item] = append(t.header[item], child)
		}
		child.count += count
		node = child
	}
}

type fpGrowth struct {
	rank      []int
	minCount  int
	maxLength int
	nBaskets  int
	itemsets  []Itemset
}

// buildTree inserts weighted paths keeping only items with at least minCount occurrences.
func (g *fpGrowth) buildTree(paths [][]int32, counts []int) *fpTree {
	freq := make(map[int32]int)
	for i, path := range paths {
		for _, item := range path {
			freq[item] += counts[i]
		}
	}
	tree := newFPTree()
	for item, count := range freq {
		if count >= g.minCount {
			tree.items = append(tree.items, item)
		}
	}
	slices.SortFunc(tree.items, func(a, b int32) int {
		return cmp.Compare(g.rank[a], g.rank[b])
	})
	buf := make([]int32, 0)
	for i, path := range paths {
		buf = buf[:0]
		for _, item := range path {
			if freq[item] >= g.minCount {
				buf = append(buf, item)
			}
		}
		slices.SortFunc(buf, func(a, b int32) int {
			return cmp.Compare(g.rank[a], g.rank[b])
		})
		tree.insert(buf, counts[i])
	}
	return tree
}

func (g *fpGrowth) mine(tree *fpTree, suffix []int32) {
	// least frequent items first
	for i := len(tree.items) - 1; i >= 0; i-- {
		item := tree.items[i]
		count := 0
		for _, node := range tree.header[item] {
			count += node.count
		}
		if count < g.minCount {
			continue
		}
		itemset := append(slices.Clone(suffix), item)
		sorted := slices.Clone(itemset)
		slices.Sort(sorted)
		g.itemsets = append(g.itemsets, Itemset{
			Items:   sorted,
			Count:   count,
			Support: float64(count) / float64(g.nBaskets),
		})
		if g.maxLength > 0 && len(itemset) >= g.maxLength {
			continue
		}
		// conditional pattern base
		var (
			paths  [][]int32
			counts []int
		)
		for _, node := range tree.header[item] {
			var path []int32
			for p := node.parent; p != nil && p.parent != nil; p = p.parent {
				path = append(path, p.item)
			}
			if len(path) > 0 {
				paths = append(paths, path)
				counts = append(counts, node.count)
			}
		}
		if len(paths) == 0 {
			continue
		}
		conditional := g.buildTree(paths, counts)
		if len(conditional.items) > 0 {
			g.mine(conditional, itemset)
		}
	}
}

// FPGrowth mines all itemsets contained in at least MinCount(minSupport, len(baskets))
// baskets. Itemsets longer than maxLength are not generated unless maxLength <= 0.
// Baskets must hold distinct item indices in [0, nItems). Itemsets are sorted by length
// and then by items.
func FPGrowth(baskets [][]int32, nItems int, minSupport float64, maxLength int) []Itemset {
	if len(baskets) == 0 || nItems == 0 {
		return nil
	}
	g := &fpGrowth{
		rank:      make([]int, nItems),
		minCount:  MinCount(minSupport, len(baskets)),
		maxLength: maxLength,
		nBaskets:  len(baskets),
	}
	// rank items by frequency
	freq := make([]int, nItems)
	for _, basket := range baskets {
		for _, item := range basket {
			freq[item]++
		}
	}
	order := make([]int32, nItems)
	for i := range order {
		order[i] = int32(i)
	}
	slices.SortFunc(order, func(a, b int32) int {
		if c := cmp.Compare(freq[b], freq[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	for r, item := range order {
		g.rank[item] = r
	}
	counts := make([]int, len(baskets))
	for i := range counts {
		counts[i] = 1
	}
	tree := g.buildTree(baskets, counts)
	g.mine(tree, nil)
	slices.SortFunc(g.itemsets, compareItemsets)
	return g.itemsets
}

func compareItemsets(a, b Itemset) int {
	if c := cmp.Compare(len(a.Items), len(b.Items)); c != 0 {
		return c
	}
	return slices.Compare(a.Items, b.Items)
}
