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

// Dict maps strings to dense int32 indices and counts additions per index.
type Dict struct {
	si  map[string]int32
	is  []string
	cnt []int
}

func NewDict() *Dict {
	return &Dict{si: make(map[string]int32)}
}

// Add returns the index of s, creating it if necessary, and increases its count by one.
func (d *Dict) Add(s string) int32 {
	return d.AddCount(s, 1)
}

// AddCount returns the index of s, creating it if necessary, and increases its count by n.
func (d *Dict) AddCount(s string, n int) int32 {
	if y, ok := d.si[s]; ok {
		d.cnt[y] += n
		return y
	}
	y := int32(len(d.is))
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, n)
	return y
}

// Id returns the index of s without changing counts.
func (d *Dict) Id(s string) (int32, bool) {
	y, ok := d.si[s]
	return y, ok
}

func (d *Dict) String(id int32) (string, bool) {
	if id < 0 || int(id) >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

func (d *Dict) Count() int {
	return len(d.is)
}

func (d *Dict) Freq(id int32) int {
	if id < 0 || int(id) >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

// Strings returns all strings ordered by index.
func (d *Dict) Strings() []string {
	return d.is
}
