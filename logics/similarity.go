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

	"github.com/gongspot/recommender/common/parallel"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

// Cosine returns the cosine similarity of two vectors. A zero vector has
// similarity 0 to everything.
func Cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// NewSimilarityMatrix computes pairwise cosine similarity between rows.
// Row i is owned by job i, which writes cells (i, j) for j > i and their
// mirrors. The diagonal is 1 for non-zero rows and 0 otherwise.
func NewSimilarityMatrix(ctx context.Context, rows [][]float64, numJobs int) ([][]float64, error) {
	n := len(rows)
	norms := make([]float64, n)
	for i, row := range rows {
		norms[i] = floats.Norm(row, 2)
	}
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	err := parallel.Parallel(ctx, n, numJobs, func(_, i int) error {
		if norms[i] == 0 {
			return nil
		}
		sim[i][i] = 1
		for j := i + 1; j < n; j++ {
			if norms[j] == 0 {
				continue
			}
			s := floats.Dot(rows[i], rows[j]) / (norms[i] * norms[j])
			sim[i][j] = s
			sim[j][i] = s
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return sim, nil
}
