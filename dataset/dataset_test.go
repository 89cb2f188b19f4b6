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
	"testing"

	"github.com/gorse-io/basket/storage/data"
	"github.com/stretchr/testify/assert"
)

func orderItems(pairs ...string) []data.OrderItem {
	rows := make([]data.OrderItem, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		rows = append(rows, data.OrderItem{OrderId: pairs[i], UserId: "u" + pairs[i], ItemId: pairs[i+1]})
	}
	return rows
}

func TestNewTransactions(t *testing.T) {
	rows := orderItems(
		"1", "a", "1", "b", "1", "c", "1", "d",
		"2", "b", "2", "a", "2", "a", "2", "e",
		"3", "a", "3", "b",
		"4", "", "4", "c", "4", "d", "4", "e",
	)
	rows = append(rows, data.OrderItem{ItemId: "x"})

	// basket size is measured in rows
	transactions := NewTransactions(rows, 4)
	assert.Equal(t, 2, transactions.Count())
	assert.Equal(t, []string{"1", "2"}, transactions.Orders.Strings())
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, transactions.Items.Strings())
	assert.Equal(t, [][]int32{{0, 1, 2, 3}, {0, 1, 4}}, transactions.Baskets)
	assert.Equal(t, 2, transactions.Items.Freq(0))
	assert.Equal(t, 1, transactions.Items.Freq(4))

	// keep every basket
	transactions = NewTransactions(rows, 0)
	assert.Equal(t, 4, transactions.Count())
	assert.Equal(t, []int32{2, 3, 4}, transactions.Baskets[3])

	// empty input
	transactions = NewTransactions(nil, 4)
	assert.Zero(t, transactions.Count())
	assert.Empty(t, transactions.Encode())
}

func TestTransactionsEncode(t *testing.T) {
	transactions := NewTransactions(orderItems("1", "a", "1", "b", "2", "b", "2", "c", "3", "a"), 0)
	columns := transactions.Encode()
	assert.Len(t, columns, 3)
	assert.Equal(t, []uint{0, 2}, indices(columns[0]))
	assert.Equal(t, []uint{0, 1}, indices(columns[1]))
	assert.Equal(t, []uint{1}, indices(columns[2]))
}

func TestMatrix(t *testing.T) {
	rows := []data.OrderItem{
		{UserId: "u1", ItemId: "a"}, {UserId: "u1", ItemId: "a"}, {UserId: "u1", ItemId: "b"},
		{UserId: "u1", ItemId: "c"}, {UserId: "u2", ItemId: "b"}, {UserId: "u2", ItemId: "c"},
		{UserId: "u3", ItemId: "c"}, {UserId: "u3", ItemId: "b"}, {UserId: "u4", ItemId: "d"},
		{UserId: "", ItemId: "e"},
	}
	matrix := NewMatrix(rows)
	assert.Equal(t, 4, matrix.CountUsers())
	assert.Equal(t, 4, matrix.CountItems())
	assert.Equal(t, []Cell{{0, 2}, {1, 1}, {2, 1}}, matrix.UserVector(0))
	assert.Equal(t, []Cell{{0, 1}, {1, 1}, {2, 1}}, matrix.ItemVector(1))
	assert.True(t, matrix.HasPurchased(0, 0))
	assert.False(t, matrix.HasPurchased(1, 0))

	// sorted by count then item id
	u3, _ := matrix.Users.Id("u3")
	assert.Equal(t, []Cell{{1, 1}, {2, 1}}, matrix.UserItems(u3))
	assert.Equal(t, []Cell{{0, 2}, {1, 1}, {2, 1}}, matrix.UserItems(0))

	sets := matrix.ItemSets()
	assert.Equal(t, []uint{0, 1, 2}, indices(sets[2]))

	// items a and d have at most one user, so u4 is left empty
	pruned, droppedItems, droppedUsers := matrix.Prune(1)
	assert.Equal(t, 2, droppedItems)
	assert.Equal(t, 1, droppedUsers)
	assert.Equal(t, []string{"b", "c"}, pruned.Items.Strings())
	assert.Equal(t, []string{"u1", "u2", "u3"}, pruned.Users.Strings())
	assert.Equal(t, []Cell{{0, 1}, {1, 1}}, pruned.UserVector(0))
	assert.Equal(t, []Cell{{0, 1}, {1, 1}, {2, 1}}, pruned.ItemVector(0))

	// empty input
	empty := NewMatrix(nil)
	pruned, droppedItems, droppedUsers = empty.Prune(2)
	assert.Zero(t, pruned.CountItems())
	assert.Zero(t, droppedItems+droppedUsers)
}

func TestMatrixPruneRepeatedPurchases(t *testing.T) {
	var rows []data.OrderItem
	add := func(user, item string, count int) {
		for i := 0; i < count; i++ {
			rows = append(rows, data.OrderItem{UserId: user, ItemId: item})
		}
	}
	add("u1", "heavy", 2)
	add("u2", "heavy", 2)
	add("u3", "heavy", 2)
	add("u1", "mixed", 1)
	add("u2", "mixed", 1)
	add("u3", "mixed", 5)
	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		add(user, "light", 1)
	}
	matrix := NewMatrix(rows)
	assert.Equal(t, 3, matrix.CountItems())

	// only light has more than two users who bought it once
	pruned, droppedItems, droppedUsers := matrix.Prune(2)
	assert.Equal(t, []string{"light"}, pruned.Items.Strings())
	assert.Equal(t, 2, droppedItems)
	assert.Zero(t, droppedUsers)
	assert.Equal(t, 4, pruned.CountUsers())
	u3, _ := pruned.Users.Id("u3")
	assert.Equal(t, []Cell{{0, 1}}, pruned.UserVector(u3))
}

func indices(b interface {
	NextSet(uint) (uint, bool)
}) []uint {
	var result []uint
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		result = append(result, i)
	}
	return result
}
