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
	"context"
	"math"
	"sort"

	"github.com/gongspot/recommender/config"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/sashabaranov/go-openai"
	"gonum.org/v1/gonum/floats"
)

type Memo struct {
	Id      string `json:"id"`
	Content string `json:"content"`
}

type MemoScore struct {
	PlaceId string  `json:"place_id"`
	Score   float64 `json:"score"`
}

// MemoRanker scores memos by how close each one is to the average of all
// memos in embedding space.
type MemoRanker struct {
	client         *openai.Client
	embeddingModel string
}

func NewMemoRanker(cfg config.OpenAIConfig) *MemoRanker {
	clientConfig := openai.DefaultConfig(cfg.AuthToken)
	clientConfig.BaseURL = cfg.BaseURL
	return &MemoRanker{
		client:         openai.NewClientWithConfig(clientConfig),
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Rank embeds all memos in one request. Scores are rounded to 4 decimals
// and sorted in descending order; ties keep the input order.
func (r *MemoRanker) Rank(ctx context.Context, memos []Memo) ([]MemoScore, error) {
	if len(memos) == 0 {
		return []MemoScore{}, nil
	}
	resp, err := r.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: lo.Map(memos, func(m Memo, _ int) string { return m.Content }),
		Model: openai.EmbeddingModel(r.embeddingModel),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(resp.Data) != len(memos) {
		return nil, errors.Errorf("expect %d embeddings, got %d", len(memos), len(resp.Data))
	}
	vectors := make([][]float64, len(memos))
	for _, embedding := range resp.Data {
		if embedding.Index < 0 || embedding.Index >= len(memos) {
			return nil, errors.Errorf("embedding index %d out of range", embedding.Index)
		}
		vectors[embedding.Index] = lo.Map(embedding.Embedding, func(v float32, _ int) float64 {
			return float64(v)
		})
	}
	// mean vector
	dim := len(vectors[0])
	mean := make([]float64, dim)
	for i, vector := range vectors {
		if len(vector) != dim {
			return nil, errors.Errorf("embedding of memo %s has dimension %d, expect %d", memos[i].Id, len(vector), dim)
		}
		floats.Add(mean, vector)
	}
	floats.Scale(1/float64(len(vectors)), mean)
	// score
	scores := make([]MemoScore, len(memos))
	for i, memo := range memos {
		scores[i] = MemoScore{
			PlaceId: memo.Id,
			Score:   math.Round(Cosine(vectors[i], mean)*1e4) / 1e4,
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores, nil
}
