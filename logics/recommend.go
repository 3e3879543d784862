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
	"time"
)

// Candidate is a recommended place and the number of neighbors who liked
// it.
type Candidate struct {
	PlaceId int64 `json:"place_id"`
	Votes   int   `json:"votes"`
}

// Recommend ranks the likes of the nearest neighbors by how many of them
// liked each place. Places the user already liked are excluded. Users
// without any signal get nothing.
func (e *Engine) Recommend(userId int64, n int) []Candidate {
	start := time.Now()
	defer func() {
		RecommendSeconds.Observe(time.Since(start).Seconds())
	}()
	target, exist := e.rowIndex[userId]
	if !exist || n <= 0 {
		return []Candidate{}
	}
	liked := e.likes[target]
	if len(e.profiles[target]) == 0 && liked.Cardinality() == 0 {
		return []Candidate{}
	}
	votes := make(map[int64]int)
	for _, row := range e.neighborRows(userId, e.numNeighbors) {
		e.likes[row].Each(func(placeId int64) bool {
			if !liked.Contains(placeId) {
				votes[placeId]++
			}
			return false
		})
	}
	candidates := make([]Candidate, 0, len(votes))
	for placeId, count := range votes {
		candidates = append(candidates, Candidate{PlaceId: placeId, Votes: count})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Votes != candidates[j].Votes {
			return candidates[i].Votes > candidates[j].Votes
		}
		return candidates[i].PlaceId < candidates[j].PlaceId
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
