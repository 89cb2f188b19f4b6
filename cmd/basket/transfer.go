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

package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/common/parallel"
	"github.com/gorse-io/basket/storage/blob"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exportOrders = "orders"
	exportFBT    = "fbt"
	exportIBCF   = "ibcf"
)

var importCommand = &cobra.Command{
	Use:   "import <blob-name>",
	Short: "Import order items from a CSV file in object storage",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		store, err := blob.Open(cfg.Blob)
		if err != nil {
			log.Logger().Fatal("failed to open blob store", zap.Error(err))
		}
		dataClient, err := openDataStore(cfg)
		if err != nil {
			log.Logger().Fatal("failed to connect data store", zap.Error(err))
		}
		defer func() {
			if err := dataClient.Close(); err != nil {
				log.Logger().Error("failed to close data store", zap.Error(err))
			}
		}()

		separator, _ := cmd.Flags().GetString("sep")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		rate, _ := cmd.Flags().GetInt("rate")
		opts := data.CSVOptions{DefaultTimestamp: time.Now().UTC()}
		if separator != "" {
			opts.Separator = []rune(separator)[0]
		}
		start := time.Now()
		n, err := importOrderItems(context.Background(), store, dataClient, args[0], opts, batchSize,
			parallel.NewRateLimiter(rate), os.Stderr)
		if err != nil {
			log.Logger().Fatal("failed to import order items", zap.Error(err))
		}
		log.Logger().Info("import order items",
			zap.String("name", args[0]),
			zap.Int("n_order_items", n),
			zap.Duration("elapsed", time.Since(start)))
	},
}

var exportCommand = &cobra.Command{
	Use:       "export <orders|fbt|ibcf> <blob-name>",
	Short:     "Export order items or stored results as a CSV file to object storage",
	Args:      cobra.MatchAll(cobra.ExactArgs(2), validTable),
	ValidArgs: []string{exportOrders, exportFBT, exportIBCF},
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		store, err := blob.Open(cfg.Blob)
		if err != nil {
			log.Logger().Fatal("failed to open blob store", zap.Error(err))
		}
		dataClient, cacheClient := openStores(cfg)
		defer closeStores(dataClient, cacheClient)

		start := time.Now()
		n, err := export(context.Background(), store, dataClient, cacheClient, args[0], args[1])
		if err != nil {
			log.Logger().Fatal("failed to export", zap.String("table", args[0]), zap.Error(err))
		}
		log.Logger().Info("export",
			zap.String("table", args[0]),
			zap.String("name", args[1]),
			zap.Int("n_rows", n),
			zap.Duration("elapsed", time.Since(start)))
	},
}

func validTable(_ *cobra.Command, args []string) error {
	if !lo.Contains([]string{exportOrders, exportFBT, exportIBCF}, args[0]) {
		return errors.NotValidf("table %q", args[0])
	}
	return nil
}

func init() {
	importCommand.Flags().String("sep", ",", "field separator of the CSV file")
	importCommand.Flags().Int("batch-size", 1000, "number of rows per insert")
	importCommand.Flags().Int("rate", 0, "maximum rows inserted per second (0 means unlimited)")
	rootCommand.AddCommand(importCommand, exportCommand)
}

// importOrderItems reads a CSV file from store and inserts its rows in batches.
func importOrderItems(ctx context.Context, store blob.Store, dataClient data.Database, name string,
	opts data.CSVOptions, batchSize int, limiter parallel.RateLimiter, progress io.Writer) (int, error) {
	r, err := store.Open(name)
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer r.Close()
	rows, err := data.ReadCSV(r, opts)
	if err != nil {
		return 0, errors.Annotatef(err, "read %s", name)
	}
	bar := progressbar.NewOptions(len(rows),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("import order items"),
		progressbar.OptionShowCount())
	for _, chunk := range lo.Chunk(rows, max(batchSize, 1)) {
		limiter.Wait(int64(len(chunk)))
		if err = dataClient.BatchInsertOrderItems(ctx, chunk); err != nil {
			return 0, errors.Trace(err)
		}
		_ = bar.Add(len(chunk))
	}
	_ = bar.Finish()
	return len(rows), nil
}

// export writes a table as a CSV file to store and returns the number of rows.
func export(ctx context.Context, store blob.Store, dataClient data.Database, cacheClient cache.Database, table, name string) (int, error) {
	w, done, err := store.Create(name)
	if err != nil {
		return 0, errors.Trace(err)
	}
	var n int
	switch table {
	case exportOrders:
		n, err = exportOrderItems(ctx, w, dataClient)
	case exportFBT:
		n, err = exportFrequentlyBoughtTogether(ctx, w, cacheClient)
	case exportIBCF:
		n, err = exportUserRecommendations(ctx, w, cacheClient)
	default:
		err = errors.NotValidf("table %q", table)
	}
	if err != nil {
		_ = w.Close()
		return 0, errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return 0, errors.Trace(err)
	}
	<-done
	return n, nil
}

func exportOrderItems(ctx context.Context, w io.Writer, dataClient data.Database) (int, error) {
	itemChan, errChan := dataClient.GetOrderItemStream(ctx, 10000, nil, nil, 0)
	var rows []data.OrderItem
	for batch := range itemChan {
		rows = append(rows, batch...)
	}
	if err := <-errChan; err != nil {
		return 0, errors.Trace(err)
	}
	return len(rows), errors.Trace(data.WriteCSV(w, rows))
}

func exportFrequentlyBoughtTogether(ctx context.Context, w io.Writer, cacheClient cache.Database) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"product_id", "recommended_product_id", "rank", "support", "updated_at", "is_current"}); err != nil {
		return 0, errors.Trace(err)
	}
	var n int
	if err := cacheClient.ScanFrequentlyBoughtTogether(ctx, func(row cache.FrequentlyBoughtTogether) error {
		n++
		return writer.Write([]string{
			row.ProductId,
			row.RecommendedProductId,
			strconv.Itoa(row.Rank),
			strconv.FormatFloat(row.Support, 'f', -1, 64),
			row.UpdatedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(row.IsCurrent),
		})
	}); err != nil {
		return 0, errors.Trace(err)
	}
	writer.Flush()
	return n, errors.Trace(writer.Error())
}

func exportUserRecommendations(ctx context.Context, w io.Writer, cacheClient cache.Database) (int, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"user_id", "type", "product_id", "rank", "score", "updated_at", "is_current"}); err != nil {
		return 0, errors.Trace(err)
	}
	var n int
	if err := cacheClient.ScanUserRecommendations(ctx, func(row cache.UserRecommendation) error {
		n++
		return writer.Write([]string{
			row.UserId,
			strconv.Itoa(row.Type),
			row.ProductId,
			strconv.Itoa(row.Rank),
			strconv.FormatFloat(row.Score, 'f', -1, 64),
			row.UpdatedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(row.IsCurrent),
		})
	}); err != nil {
		return 0, errors.Trace(err)
	}
	writer.Flush()
	return n, errors.Trace(writer.Error())
}
