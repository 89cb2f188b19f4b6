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

package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	a := NewTopKFilter[int32, float64](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	assert.Equal(t, []int32{20, 10, 30}, a.PopAllValues())

	a = NewTopKFilter[int32, float64](3)
	for _, e := range []Elem[int32, float64]{
		{10, 2}, {20, 8}, {30, 1}, {40, 2}, {50, 5}, {12, 10}, {67, 7}, {32, 9},
	} {
		a.Push(e.Value, e.Weight)
	}
	assert.Equal(t, []Elem[int32, float64]{
		{Value: 12, Weight: 10},
		{Value: 32, Weight: 9},
		{Value: 20, Weight: 8},
	}, a.PopAll())
	assert.Zero(t, a.Len())
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilterFunc[string, float64](2, func(a, b string) bool { return a < b })
	a.Push("c", 0.5)
	a.Push("a", 0.5)
	a.Push("d", 0.9)
	a.Push("b", 0.5)
	assert.Equal(t, []Elem[string, float64]{
		{Value: "d", Weight: 0.9},
		{Value: "a", Weight: 0.5},
	}, a.PopAll())

	a = NewTopKFilterFunc[string, float64](5, func(a, b string) bool { return a < b })
	a.Push("z", 1)
	a.Push("y", 1)
	a.Push("x", 1)
	assert.Equal(t, []string{"x", "y", "z"}, a.PopAllValues())
}

func TestTopKFilterZero(t *testing.T) {
	a := NewTopKFilter[string, float64](0)
	a.Push("a", 1)
	assert.Empty(t, a.PopAll())
}
