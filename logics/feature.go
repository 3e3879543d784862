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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// FeatureMatrix is the dense user-by-feature matrix. Columns are sorted
// labels and rows follow the roster.
type FeatureMatrix struct {
	Labels  []string
	Columns map[string]int
	Rows    [][]float64
}

// NewFeatureMatrix collects the labels of all profiles and lays out one row
// per profile.
func NewFeatureMatrix(profiles []Profile) *FeatureMatrix {
	labelSet := mapset.NewThreadUnsafeSet[string]()
	for _, profile := range profiles {
		for label := range profile {
			labelSet.Add(label)
		}
	}
	labels := labelSet.ToSlice()
	sort.Strings(labels)
	columns := make(map[string]int, len(labels))
	for i, label := range labels {
		columns[label] = i
	}
	rows := make([][]float64, len(profiles))
	for i, profile := range profiles {
		rows[i] = make([]float64, len(labels))
		for label, count := range profile {
			rows[i][columns[label]] = float64(count)
		}
	}
	return &FeatureMatrix{
		Labels:  labels,
		Columns: columns,
		Rows:    rows,
	}
}
