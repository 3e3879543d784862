// Copyright 2025 gorse Project Authors
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

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GetRecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "get_recommend_seconds",
	})
	GetNeighborsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "get_neighbors_seconds",
	})
	HydrateSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "hydrate_seconds",
	})
	RankMemosSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "rank_memos_seconds",
	})
	RefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "refresh_total",
	})
	RefreshFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "refresh_failures_total",
	})
	EngineTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gongspot",
		Subsystem: "server",
		Name:      "engine_timestamp_seconds",
		Help:      "Unix time of the engine currently being served.",
	})
)
