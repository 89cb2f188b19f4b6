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

package data

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	columnOrderId = iota
	columnUserId
	columnItemId
	columnTimestamp
	numColumns
)

var columnAliases = [numColumns][]string{
	columnOrderId:   {"order_id", "orderid", "order"},
	columnUserId:    {"user_id", "userid", "user", "customer_id"},
	columnItemId:    {"item_id", "itemid", "product_id", "productid", "item", "product"},
	columnTimestamp: {"timestamp", "time_stamp", "created_at", "date", "time"},
}

// CSVOptions controls how order items are read from CSV.
type CSVOptions struct {
	// Separator defaults to comma.
	Separator rune
	// DefaultTimestamp is used for rows without timestamp.
	DefaultTimestamp time.Time
}

// ReadCSV reads order items from CSV. If the first record names the columns, it is
// used as the header. Otherwise, columns are order_id, user_id, item_id and timestamp.
// Timestamps in any common layout are accepted and interpreted in UTC if no zone is given.
func ReadCSV(r io.Reader, opts CSVOptions) ([]OrderItem, error) {
	reader := csv.NewReader(r)
	if opts.Separator != 0 {
		reader.Comma = opts.Separator
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	columns := [numColumns]int{0, 1, 2, 3}
	var items []OrderItem
	for lineNumber := 1; ; lineNumber++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if lineNumber == 1 {
			if header, ok := parseHeader(record); ok {
				columns = header
				continue
			}
		}
		item, err := parseRecord(record, columns, opts)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineNumber)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseHeader(record []string) ([numColumns]int, bool) {
	var columns [numColumns]int
	found := false
	for c := range columns {
		columns[c] = -1
		for i, name := range record {
			if lo.Contains(columnAliases[c], strings.ToLower(strings.TrimSpace(name))) {
				columns[c] = i
				found = true
				break
			}
		}
	}
	return columns, found
}

func parseRecord(record []string, columns [numColumns]int, opts CSVOptions) (OrderItem, error) {
	field := func(c int) string {
		if columns[c] < 0 || columns[c] >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[columns[c]])
	}
	item := OrderItem{
		OrderId:   field(columnOrderId),
		UserId:    field(columnUserId),
		ItemId:    field(columnItemId),
		Timestamp: opts.DefaultTimestamp,
	}
	if item.ItemId == "" {
		return OrderItem{}, errors.NotValidf("empty item id")
	}
	if s := field(columnTimestamp); s != "" {
		timestamp, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return OrderItem{}, errors.Trace(err)
		}
		item.Timestamp = timestamp.UTC()
	}
	return item, nil
}

// WriteCSV writes order items with a header row. Timestamps are written in RFC 3339.
func WriteCSV(w io.Writer, items []OrderItem) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"order_id", "user_id", "item_id", "timestamp"}); err != nil {
		return errors.Trace(err)
	}
	for _, item := range items {
		if err := writer.Write([]string{
			item.OrderId,
			item.UserId,
			item.ItemId,
			item.Timestamp.UTC().Format(time.RFC3339),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	writer.Flush()
	return errors.Trace(writer.Error())
}
