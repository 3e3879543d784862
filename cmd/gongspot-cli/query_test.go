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

package main

import (
	"bytes"
	"testing"

	"github.com/gongspot/recommender/logics"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestParseUserId(t *testing.T) {
	userId, err := parseUserId("42")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), userId)
	_, err = parseUserId("alice")
	assert.Error(t, err)
}

func TestWriteRecommendations(t *testing.T) {
	var buf bytes.Buffer
	err := writeRecommendations(&buf, []logics.Recommendation{
		{PlaceId: 10, Votes: 2, Name: "Quiet Library", Address: "Seoul", Rating: lo.ToPtr(4.5),
			Types: []string{"library"}, Moods: []string{"quiet"}},
		{PlaceId: 11, Votes: 1},
	})
	assert.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Quiet Library")
	assert.Contains(t, out, "4.5")
	assert.Contains(t, out, "library,quiet")
	assert.Contains(t, out, "11")
}

func TestWriteNeighbors(t *testing.T) {
	var buf bytes.Buffer
	err := writeNeighbors(&buf, []logics.Neighbor{{UserId: 7, Similarity: 2.0 / 3.0}})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "0.6667")
}

func TestWriteMemoScores(t *testing.T) {
	var buf bytes.Buffer
	err := writeMemoScores(&buf, []logics.MemoScore{{PlaceId: "memo-1", Score: 0.8944}})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "memo-1")
	assert.Contains(t, buf.String(), "0.8944")
}

func TestFormatRating(t *testing.T) {
	assert.Empty(t, formatRating(nil))
	assert.Equal(t, "3.0", formatRating(lo.ToPtr(3.0)))
}
