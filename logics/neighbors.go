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

	"github.com/samber/lo"
)

// SimilarUsers returns up to n users most similar to userId, excluding
// userId itself. Ties keep roster order. An unknown user gets nothing.
func (e *Engine) SimilarUsers(userId int64, n int) []int64 {
	rows := e.neighborRows(userId, n)
	return lo.Map(rows, func(row int, _ int) int64 {
		return e.users[row]
	})
}

// Neighbor is a similar user with its similarity.
type Neighbor struct {
	UserId     int64   `json:"user_id"`
	Similarity float64 `json:"similarity"`
}

// Neighbors is SimilarUsers with similarity scores.
func (e *Engine) Neighbors(userId int64, n int) []Neighbor {
	target, exist := e.rowIndex[userId]
	if !exist {
		return []Neighbor{}
	}
	rows := e.neighborRows(userId, n)
	return lo.Map(rows, func(row int, _ int) Neighbor {
		return Neighbor{
			UserId:     e.users[row],
			Similarity: e.similarity[target][row],
		}
	})
}

func (e *Engine) neighborRows(userId int64, n int) []int {
	target, exist := e.rowIndex[userId]
	if !exist || n <= 0 {
		return []int{}
	}
	scores := e.similarity[target]
	rows := make([]int, 0, len(e.users)-1)
	for row := range e.users {
		if row != target {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return scores[rows[i]] > scores[rows[j]]
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
