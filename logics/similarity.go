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

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/basket/common/heap"
	"github.com/gorse-io/basket/common/parallel"
	"github.com/gorse-io/basket/config"
	"github.com/gorse-io/basket/dataset"
	"github.com/juju/errors"
	"go.uber.org/atomic"
)

var ErrUnknownSimilarity = errors.NotSupportedf("similarity")

// Neighbor is a similar item and its similarity score.
type Neighbor struct {
	Item  int32
	Score float64
}

// ItemSimilarity holds the k most similar items of every item.
type ItemSimilarity struct {
	neighbors [][]Neighbor
	pairs     int
}

type similarityFunc func(i, j int32, dot float64) float64

// NewItemSimilarity computes the top k neighbors of every item. Only items sharing at least
// one user are compared, so every kept score is positive. Ties are broken by item id.
func NewItemSimilarity(ctx context.Context, matrix *dataset.Matrix, metric string, k, jobs int) (*ItemSimilarity, error) {
	var similarity similarityFunc
	switch metric {
	case config.SimilarityJaccard:
		sets := matrix.ItemSets()
		similarity = jaccard(sets)
	case config.SimilarityCosine:
		similarity = cosine(matrix)
	default:
		return nil, errors.Annotate(ErrUnknownSimilarity, metric)
	}

	nItems := matrix.CountItems()
	jobs = max(jobs, 1)
	dots := make([][]float64, jobs)
	for i := range dots {
		dots[i] = make([]float64, nItems)
	}
	before := func(a, b int32) bool {
		sa, _ := matrix.Items.String(a)
		sb, _ := matrix.Items.String(b)
		return sa < sb
	}
	s := &ItemSimilarity{neighbors: make([][]Neighbor, nItems)}
	var pairs atomic.Int64
	err := parallel.Parallel(ctx, nItems, jobs, func(workerId, jobId int) error {
		i := int32(jobId)
		dot := dots[workerId]
		var candidates []int32
		for _, u := range matrix.ItemVector(i) {
			for _, j := range matrix.UserVector(u.Index) {
				if j.Index == i {
					continue
				}
				if dot[j.Index] == 0 {
					candidates = append(candidates, j.Index)
				}
				dot[j.Index] += float64(u.Count) * float64(j.Count)
			}
		}
		pairs.Add(int64(len(candidates)))
		filter := heap.NewTopKFilterFunc[int32, float64](k, before)
		for _, j := range candidates {
			if score := similarity(i, j, dot[j]); score > 0 {
				filter.Push(j, score)
			}
			dot[j] = 0
		}
		elems := filter.PopAll()
		neighbors := make([]Neighbor, len(elems))
		for n, elem := range elems {
			neighbors[n] = Neighbor{Item: elem.Value, Score: elem.Weight}
		}
		s.neighbors[i] = neighbors
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.pairs = int(pairs.Load())
	return s, nil
}

func jaccard(sets []*bitset.BitSet) similarityFunc {
	return func(i, j int32, _ float64) float64 {
		union := sets[i].UnionCardinality(sets[j])
		if union == 0 {
			return 0
		}
		return float64(sets[i].IntersectionCardinality(sets[j])) / float64(union)
	}
}

func cosine(matrix *dataset.Matrix) similarityFunc {
	norms := make([]float64, matrix.CountItems())
	for i := range norms {
		for _, cell := range matrix.ItemVector(int32(i)) {
			norms[i] += float64(cell.Count) * float64(cell.Count)
		}
		norms[i] = math.Sqrt(norms[i])
	}
	return func(i, j int32, dot float64) float64 {
		if norms[i] == 0 || norms[j] == 0 {
			return 0
		}
		return dot / (norms[i] * norms[j])
	}
}

// Pairs is the number of ordered item pairs bought by at least one common user.
func (s *ItemSimilarity) Pairs() int {
	return s.pairs
}

// Neighbors returns the neighbors of an item, most similar first.
func (s *ItemSimilarity) Neighbors(i int32) []Neighbor {
	if i < 0 || int(i) >= len(s.neighbors) {
		return nil
	}
	return s.neighbors[i]
}

// MostSimilar returns the most similar item other than i.
func (s *ItemSimilarity) MostSimilar(i int32) (Neighbor, bool) {
	neighbors := s.Neighbors(i)
	if len(neighbors) == 0 {
		return Neighbor{}, false
	}
	return neighbors[0], true
}
