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
	"strconv"

	"github.com/gongspot/recommender/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// PlaceHydrator looks up descriptive fields of places.
type PlaceHydrator interface {
	GetPlaces(ctx context.Context, placeIds []string) ([]data.Place, error)
}

// Recommendation is a candidate with the fields of its place.
type Recommendation struct {
	PlaceId   int64    `json:"place_id"`
	Votes     int      `json:"votes"`
	Name      string   `json:"name,omitempty"`
	Address   string   `json:"address,omitempty"`
	IsFree    *bool    `json:"is_free,omitempty"`
	PhotoUrl  string   `json:"photo_url,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
	Types     []string `json:"types,omitempty"`
	Purposes  []string `json:"purposes,omitempty"`
	Moods     []string `json:"moods,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

// Hydrate fetches places of candidates in one lookup and keeps the order of
// candidates. A candidate without a place record keeps only id and votes.
func Hydrate(ctx context.Context, hydrator PlaceHydrator, candidates []Candidate) ([]Recommendation, error) {
	if len(candidates) == 0 {
		return []Recommendation{}, nil
	}
	placeIds := lo.Map(candidates, func(c Candidate, _ int) string {
		return strconv.FormatInt(c.PlaceId, 10)
	})
	places, err := hydrator.GetPlaces(ctx, placeIds)
	if err != nil {
		return nil, errors.Trace(err)
	}
	placeMap := lo.SliceToMap(places, func(place data.Place) (string, data.Place) {
		return place.PlaceId, place
	})
	recommendations := make([]Recommendation, len(candidates))
	for i, c := range candidates {
		recommendations[i] = Recommendation{PlaceId: c.PlaceId, Votes: c.Votes}
		place, ok := placeMap[placeIds[i]]
		if !ok {
			continue
		}
		recommendations[i].Name = place.Name
		recommendations[i].Address = place.Address
		recommendations[i].IsFree = lo.ToPtr(place.IsFree)
		recommendations[i].PhotoUrl = place.PhotoUrl
		recommendations[i].Rating = lo.ToPtr(place.Rating)
		recommendations[i].Types = place.Types
		recommendations[i].Purposes = place.Purposes
		recommendations[i].Moods = place.Moods
		recommendations[i].Locations = place.Locations
	}
	return recommendations, nil
}
