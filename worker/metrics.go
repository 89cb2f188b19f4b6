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

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelJob  = "job"
	LabelStep = "step"

	JobFBT  = "fbt"
	JobIBCF = "ibcf"
)

var (
	StepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "step_seconds",
	}, []string{LabelJob, LabelStep})
	TotalSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "total_seconds",
	}, []string{LabelJob})
	LastSuccessVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "last_success_timestamp_seconds",
	}, []string{LabelJob})
	FailuresVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "failures_total",
	}, []string{LabelJob})
	LoadedOrderItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "loaded_order_items",
	}, []string{LabelJob})
	Baskets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "baskets",
	})
	FrequentItemsets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "frequent_itemsets",
	})
	AssociationRules = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "association_rules",
	})
	BoughtTogetherProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "bought_together_products",
	})
	PrunedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "pruned_items",
	})
	RecommendedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "recommended_users",
	})
	HitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "hit_rate",
	})
	OverlapRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basket",
		Subsystem: "worker",
		Name:      "overlap_ratio",
	})
)
