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
	"maps"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const DefaultNumNeighbors = 5

// DataSource provides the bulk reads of a build.
type DataSource interface {
	GetUsers(ctx context.Context) ([]data.User, error)
	GetUserPreferences(ctx context.Context, kind data.PreferenceKind) ([]data.Association, error)
	GetPlaceAttributes(ctx context.Context, kind data.AttributeKind) ([]data.Association, error)
	GetLikes(ctx context.Context) ([]data.Like, error)
}

type options struct {
	numNeighbors int
	numJobs      int
}

type Option func(*options)

// WithNumNeighbors sets the neighborhood size of Recommend.
func WithNumNeighbors(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.numNeighbors = n
		}
	}
}

// WithNumJobs sets the number of workers computing similarity.
func WithNumJobs(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.numJobs = n
		}
	}
}

// Engine is an immutable snapshot of profiles, similarity and likes. It is
// safe for concurrent queries.
type Engine struct {
	users        []int64
	rowIndex     map[int64]int
	profiles     []Profile
	features     *FeatureMatrix
	similarity   [][]float64
	likes        []mapset.Set[int64]
	numNeighbors int
	timestamp    time.Time
}

// Build reads the data source once and computes a new engine. A failed
// read aborts the build.
func Build(ctx context.Context, source DataSource, opts ...Option) (*Engine, error) {
	o := options{numNeighbors: DefaultNumNeighbors, numJobs: 1}
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()

	// load data
	step := time.Now()
	users, err := source.GetUsers(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load users")
	}
	builder := newProfileBuilder(users)
	for _, kind := range data.PreferenceKinds {
		rows, err := source.GetUserPreferences(ctx, kind)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to load %s", kind.Table())
		}
		builder.addPreferences(kind, rows)
	}
	for _, kind := range []data.AttributeKind{data.AttributePurpose, data.AttributeMood} {
		rows, err := source.GetPlaceAttributes(ctx, kind)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to load %s", kind.Table())
		}
		builder.addPlaceAttributes(kind, rows)
	}
	likes, err := source.GetLikes(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load likes")
	}
	builder.addLikes(likes)
	builder.enrich()
	BuildStepSecondsVec.WithLabelValues("load").Set(time.Since(step).Seconds())

	// feature matrix
	step = time.Now()
	features := NewFeatureMatrix(builder.profiles)
	BuildStepSecondsVec.WithLabelValues("features").Set(time.Since(step).Seconds())

	// similarity
	step = time.Now()
	similarity, err := NewSimilarityMatrix(ctx, features.Rows, o.numJobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	BuildStepSecondsVec.WithLabelValues("similarity").Set(time.Since(step).Seconds())

	e := &Engine{
		users:        builder.users,
		rowIndex:     builder.rowIndex,
		profiles:     builder.profiles,
		features:     features,
		similarity:   similarity,
		likes:        builder.likes,
		numNeighbors: o.numNeighbors,
		timestamp:    time.Now(),
	}
	BuildSeconds.Observe(time.Since(start).Seconds())
	NumUsers.Set(float64(e.NumUsers()))
	NumFeatures.Set(float64(e.NumFeatures()))
	log.Logger().Info("engine built",
		zap.Int("n_users", e.NumUsers()),
		zap.Int("n_features", e.NumFeatures()),
		zap.Int("n_neighbors", e.numNeighbors),
		zap.Duration("used_time", time.Since(start)))
	return e, nil
}

// NewEmptyEngine returns an engine without users. Every query on it
// returns an empty result.
func NewEmptyEngine() *Engine {
	return &Engine{
		rowIndex:     map[int64]int{},
		features:     NewFeatureMatrix(nil),
		numNeighbors: DefaultNumNeighbors,
		timestamp:    time.Now(),
	}
}

// HasUser reports whether the user is in the roster.
func (e *Engine) HasUser(userId int64) bool {
	_, exist := e.rowIndex[userId]
	return exist
}

// Users returns the roster in row order.
func (e *Engine) Users() []int64 {
	return append([]int64(nil), e.users...)
}

func (e *Engine) NumUsers() int {
	return len(e.users)
}

func (e *Engine) NumFeatures() int {
	return len(e.features.Labels)
}

// Features returns the feature labels in column order.
func (e *Engine) Features() []string {
	return append([]string(nil), e.features.Labels...)
}

// Profile returns a copy of the profile of a user.
func (e *Engine) Profile(userId int64) (Profile, bool) {
	row, exist := e.rowIndex[userId]
	if !exist {
		return nil, false
	}
	return maps.Clone(e.profiles[row]), true
}

// Vector returns a copy of the feature row of a user.
func (e *Engine) Vector(userId int64) ([]float64, bool) {
	row, exist := e.rowIndex[userId]
	if !exist {
		return nil, false
	}
	return append([]float64(nil), e.features.Rows[row]...), true
}

// Similarity returns the similarity of two users of the roster.
func (e *Engine) Similarity(u, v int64) (float64, bool) {
	i, ok := e.rowIndex[u]
	if !ok {
		return 0, false
	}
	j, ok := e.rowIndex[v]
	if !ok {
		return 0, false
	}
	return e.similarity[i][j], true
}

// Likes returns the places liked by a user.
func (e *Engine) Likes(userId int64) []int64 {
	row, exist := e.rowIndex[userId]
	if !exist {
		return []int64{}
	}
	places := e.likes[row].ToSlice()
	slices.Sort(places)
	return places
}

func (e *Engine) NumNeighbors() int {
	return e.numNeighbors
}

// Timestamp is the time the engine was built.
func (e *Engine) Timestamp() time.Time {
	return e.timestamp
}
