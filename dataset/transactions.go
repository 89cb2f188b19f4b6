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

package dataset

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/basket/storage/data"
)

// Transactions are the baskets of orders. Each basket holds the sorted, distinct
// indices of the items bought in one order.
type Transactions struct {
	Orders  *Dict
	Items   *Dict
	Baskets [][]int32
}

// NewTransactions groups order items by order. Orders with fewer than minBasketSize
// rows are dropped. Rows missing an order id or an item id are ignored. The count of
// an item in Items is the number of baskets containing it.
func NewTransactions(rows []data.OrderItem, minBasketSize int) *Transactions {
	var (
		orderIndex = make(map[string]int)
		orderIds   []string
		orderRows  []int
		orderItems [][]string
	)
	for _, row := range rows {
		if row.OrderId == "" || row.ItemId == "" {
			continue
		}
		i, ok := orderIndex[row.OrderId]
		if !ok {
			i = len(orderIds)
			orderIndex[row.OrderId] = i
			orderIds = append(orderIds, row.OrderId)
			orderRows = append(orderRows, 0)
			orderItems = append(orderItems, nil)
		}
		orderRows[i]++
		orderItems[i] = append(orderItems[i], row.ItemId)
	}

	t := &Transactions{
		Orders: NewDict(),
		Items:  NewDict(),
	}
	for i, orderId := range orderIds {
		if orderRows[i] < minBasketSize {
			continue
		}
		basket := make([]int32, 0, len(orderItems[i]))
		seen := make(map[string]struct{}, len(orderItems[i]))
		for _, itemId := range orderItems[i] {
			if _, exist := seen[itemId]; exist {
				continue
			}
			seen[itemId] = struct{}{}
			basket = append(basket, t.Items.Add(itemId))
		}
		slices.Sort(basket)
		t.Orders.Add(orderId)
		t.Baskets = append(t.Baskets, basket)
	}
	return t
}

func (t *Transactions) Count() int {
	return len(t.Baskets)
}

// Encode returns the one-hot encoding of baskets: bit i of the n-th bitset is set
// if basket i contains item n.
func (t *Transactions) Encode() []*bitset.BitSet {
	columns := make([]*bitset.BitSet, t.Items.Count())
	for i := range columns {
		columns[i] = bitset.New(uint(len(t.Baskets)))
	}
	for i, basket := range t.Baskets {
		for _, item := range basket {
			columns[item].Set(uint(i))
		}
	}
	return columns
}
