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
	"cmp"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/basket/storage/data"
)

// Cell is a non-zero entry of a matrix row.
type Cell struct {
	Index int32
	Count int
}

// Matrix is the user-item purchase count matrix. A cell holds the number of order
// items of a user for an item.
type Matrix struct {
	Users *Dict
	Items *Dict
	items [][]Cell
	users [][]Cell
}

// NewMatrix builds the matrix from order items. Rows missing a user id or an item id
// are ignored.
func NewMatrix(rows []data.OrderItem) *Matrix {
	users, items := NewDict(), NewDict()
	counts := make(map[[2]int32]int)
	for _, row := range rows {
		if row.UserId == "" || row.ItemId == "" {
			continue
		}
		u := users.Add(row.UserId)
		i := items.Add(row.ItemId)
		counts[[2]int32{u, i}]++
	}
	m := &Matrix{
		Users: users,
		Items: items,
		items: make([][]Cell, items.Count()),
		users: make([][]Cell, users.Count()),
	}
	for key, count := range counts {
		m.users[key[0]] = append(m.users[key[0]], Cell{Index: key[1], Count: count})
		m.items[key[1]] = append(m.items[key[1]], Cell{Index: key[0], Count: count})
	}
	m.sortCells()
	return m
}

func (m *Matrix) sortCells() {
	byIndex := func(a, b Cell) int { return cmp.Compare(a.Index, b.Index) }
	for _, cells := range m.items {
		slices.SortFunc(cells, byIndex)
	}
	for _, cells := range m.users {
		slices.SortFunc(cells, byIndex)
	}
}

func (m *Matrix) CountUsers() int {
	return m.Users.Count()
}

func (m *Matrix) CountItems() int {
	return m.Items.Count()
}

// ItemVector returns the users of an item ordered by user index.
func (m *Matrix) ItemVector(item int32) []Cell {
	return m.items[item]
}

// UserVector returns the items of a user ordered by item index.
func (m *Matrix) UserVector(user int32) []Cell {
	return m.users[user]
}

// HasPurchased reports whether a user has bought an item.
func (m *Matrix) HasPurchased(user, item int32) bool {
	_, found := slices.BinarySearchFunc(m.users[user], item, func(c Cell, target int32) int {
		return cmp.Compare(c.Index, target)
	})
	return found
}

// UserItems returns the items of a user ordered by count descending. Ties are
// ordered by item id.
func (m *Matrix) UserItems(user int32) []Cell {
	cells := slices.Clone(m.users[user])
	slices.SortFunc(cells, func(a, b Cell) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		sa, _ := m.Items.String(a.Index)
		sb, _ := m.Items.String(b.Index)
		return cmp.Compare(sa, sb)
	})
	return cells
}

// ItemSets returns for every item the set of users who bought it.
func (m *Matrix) ItemSets() []*bitset.BitSet {
	sets := make([]*bitset.BitSet, len(m.items))
	for i, cells := range m.items {
		sets[i] = bitset.New(uint(len(m.users)))
		for _, cell := range cells {
			sets[i].Set(uint(cell.Index))
		}
	}
	return sets
}

// Prune removes items with at most minItemUsers single-purchase users and then users
// left without items. Users who bought an item more than once do not count toward
// keeping it. It returns the pruned matrix and the number of removed items and users.
func (m *Matrix) Prune(minItemUsers int) (*Matrix, int, int) {
	items := NewDict()
	itemMap := make([]int32, len(m.items))
	for i, cells := range m.items {
		itemMap[i] = -1
		singles := 0
		for _, cell := range cells {
			if cell.Count <= 1 {
				singles++
			}
		}
		if singles > minItemUsers {
			name, _ := m.Items.String(int32(i))
			itemMap[i] = items.AddCount(name, m.Items.Freq(int32(i)))
		}
	}

	users := NewDict()
	pruned := &Matrix{Users: users, Items: items, items: make([][]Cell, items.Count())}
	for u, cells := range m.users {
		var kept []Cell
		for _, cell := range cells {
			if itemMap[cell.Index] >= 0 {
				kept = append(kept, Cell{Index: itemMap[cell.Index], Count: cell.Count})
			}
		}
		if len(kept) == 0 {
			continue
		}
		name, _ := m.Users.String(int32(u))
		total := 0
		for _, cell := range kept {
			total += cell.Count
		}
		newUser := users.AddCount(name, total)
		pruned.users = append(pruned.users, kept)
		for _, cell := range kept {
			pruned.items[cell.Index] = append(pruned.items[cell.Index], Cell{Index: newUser, Count: cell.Count})
		}
	}
	pruned.sortCells()
	return pruned, m.Items.Count() - items.Count(), m.Users.Count() - users.Count()
}
