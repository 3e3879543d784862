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

package logics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gongspot",
		Subsystem: "engine",
		Name:      "build_seconds",
	})
	BuildStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gongspot",
		Subsystem: "engine",
		Name:      "build_step_seconds",
	}, []string{"step"})
	NumUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gongspot",
		Subsystem: "engine",
		Name:      "num_users",
	})
	NumFeatures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gongspot",
		Subsystem: "engine",
		Name:      "num_features",
	})
	MalformedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gongspot",
		Subsystem: "engine",
		Name:      "malformed_rows_total",
	}, []string{"table"})
	RecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gongspot",
		Subsystem: "engine",
		Name:      "recommend_seconds",
	})
)
