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
	"testing"

	"github.com/gongspot/recommender/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

type mockHydrator struct {
	places   map[string]data.Place
	requests [][]string
	err      error
}

func (m *mockHydrator) GetPlaces(_ context.Context, placeIds []string) ([]data.Place, error) {
	m.requests = append(m.requests, placeIds)
	if m.err != nil {
		return nil, m.err
	}
	// reversed to make sure the order of candidates is kept
	var places []data.Place
	for i := len(placeIds) - 1; i >= 0; i-- {
		if place, ok := m.places[placeIds[i]]; ok {
			places = append(places, place)
		}
	}
	return places, nil
}

func TestHydrate(t *testing.T) {
	hydrator := &mockHydrator{places: map[string]data.Place{
		"10": {PlaceId: "10", Name: "Quiet Library", Address: "Seoul", IsFree: true, Rating: 4.5,
			Types: []string{"library"}, Purposes: []string{"study"}, Moods: []string{"quiet"}, Locations: []string{"gangnam"}},
		"30": {PlaceId: "30", Name: "Study Cafe", PhotoUrl: "http://example.com/30.jpg"},
	}}
	recommendations, err := Hydrate(context.Background(), hydrator, []Candidate{
		{PlaceId: 30, Votes: 3},
		{PlaceId: 20, Votes: 2},
		{PlaceId: 10, Votes: 1},
	})
	assert.NoError(t, err)
	assert.Equal(t, [][]string{{"30", "20", "10"}}, hydrator.requests)
	assert.Equal(t, []Recommendation{
		{PlaceId: 30, Votes: 3, Name: "Study Cafe", PhotoUrl: "http://example.com/30.jpg",
			IsFree: lo.ToPtr(false), Rating: lo.ToPtr(0.0)},
		{PlaceId: 20, Votes: 2},
		{PlaceId: 10, Votes: 1, Name: "Quiet Library", Address: "Seoul", IsFree: lo.ToPtr(true), Rating: lo.ToPtr(4.5),
			Types: []string{"library"}, Purposes: []string{"study"}, Moods: []string{"quiet"}, Locations: []string{"gangnam"}},
	}, recommendations)
}

func TestHydrateEmpty(t *testing.T) {
	hydrator := &mockHydrator{err: errors.New("unexpected call")}
	recommendations, err := Hydrate(context.Background(), hydrator, nil)
	assert.NoError(t, err)
	assert.NotNil(t, recommendations)
	assert.Empty(t, recommendations)
	assert.Empty(t, hydrator.requests)
}

func TestHydrateError(t *testing.T) {
	hydrator := &mockHydrator{err: errors.New("connection refused")}
	_, err := Hydrate(context.Background(), hydrator, []Candidate{{PlaceId: 1, Votes: 1}})
	assert.Error(t, err)
}
