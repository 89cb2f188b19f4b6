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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/logics"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/worker"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fbtCommand = &cobra.Command{
	Use:   "fbt",
	Short: "Mine frequently bought together products and association rules",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		dataClient, cacheClient := openStores(cfg)
		defer closeStores(dataClient, cacheClient)

		pipeline := worker.NewPipeline(cfg, dataClient, cacheClient)
		result, err := pipeline.FrequentlyBoughtTogether(context.Background())
		if err != nil {
			log.Logger().Fatal("failed to run frequently bought together", zap.Error(err))
		}
		fmt.Printf("%d baskets, %d frequent itemsets, %d products, %d rules\n",
			result.Baskets, result.Itemsets, result.Products, len(result.AssociationRules))
		top, _ := cmd.Flags().GetInt("top")
		if err = printRules(os.Stdout, result.AssociationRules, top); err != nil {
			log.Logger().Fatal("failed to print rules", zap.Error(err))
		}
	},
}

var ibcfCommand = &cobra.Command{
	Use:   "ibcf",
	Short: "Recommend items to users by item-based collaborative filtering",
	Run: func(cmd *cobra.Command, args []string) {
		evaluate, _ := cmd.Flags().GetBool("evaluate")
		runItemBasedCF(cmd, evaluate)
	},
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Train on all but the test window and report the hit rate (same as ibcf --evaluate)",
	Run: func(cmd *cobra.Command, args []string) {
		runItemBasedCF(cmd, true)
	},
}

func runItemBasedCF(cmd *cobra.Command, evaluate bool) {
	cfg := loadConfig(cmd)
	dataClient, cacheClient := openStores(cfg)
	defer closeStores(dataClient, cacheClient)

	pipeline := worker.NewPipeline(cfg, dataClient, cacheClient)
	ctx := context.Background()
	var (
		result *worker.IBCFResult
		err    error
	)
	if evaluate {
		// hold out the latest purchases and keep live results
		pipeline.End = time.Now().Add(-cfg.Evaluate.TestWindow)
		result, err = pipeline.TrainItemBasedCF(ctx)
	} else {
		result, err = pipeline.ItemBasedCF(ctx)
	}
	if err != nil {
		log.Logger().Fatal("failed to run item-based collaborative filtering", zap.Error(err))
	}
	fmt.Printf("%d users, %d items (%d dropped), %d recommendations\n",
		result.Users, result.Items, result.DroppedItems, len(result.Recommendations))
	if !evaluate {
		return
	}
	evaluation, err := pipeline.Evaluate(ctx, result.Recommendations)
	if err != nil {
		log.Logger().Fatal("failed to evaluate", zap.Error(err))
	}
	if err = printEvaluation(os.Stdout, evaluation); err != nil {
		log.Logger().Fatal("failed to print evaluation", zap.Error(err))
	}
}

func init() {
	fbtCommand.Flags().Int("top", 10, "number of printed rules")
	ibcfCommand.Flags().Bool("evaluate", false, "hold out the test window and report the hit rate")
	rootCommand.AddCommand(fbtCommand, ibcfCommand, evaluateCommand)
}

func printRules(w io.Writer, rules []cache.AssociationRule, top int) error {
	if top > 0 && len(rules) > top {
		rules = rules[:top]
	}
	table := tablewriter.NewWriter(w)
	table.Header("Antecedent", "Consequent", "Support", "Confidence", "Lift")
	for _, rule := range rules {
		if err := table.Append([]string{
			strings.Join(rule.Antecedent, ", "),
			rule.Consequent,
			fmt.Sprintf("%.4f", rule.Support),
			fmt.Sprintf("%.4f", rule.Confidence),
			fmt.Sprintf("%.4f", rule.Lift),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printEvaluation(w io.Writer, evaluation logics.Evaluation) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	for _, row := range [][]string{
		{"Recommended users", fmt.Sprint(evaluation.RecommendedUsers)},
		{"Overlapping users", fmt.Sprint(evaluation.OverlappingUsers)},
		{"Overlap ratio", fmt.Sprintf("%.4f", evaluation.OverlapRatio)},
		{"Test rows", fmt.Sprint(evaluation.TestRows)},
		{"Hits", fmt.Sprint(evaluation.Hits)},
		{"Hit rate", fmt.Sprintf("%.4f", evaluation.HitRate)},
	} {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
