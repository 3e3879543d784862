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
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/storage/data"
	"go.uber.org/zap"
)

// Profile counts the feature labels of a user.
type Profile map[string]int

// parseId parses an integer identifier. Malformed identifiers are logged
// and counted, and the row is skipped by the caller.
func parseId(table, column, id string) (int64, bool) {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		log.Logger().Warn("skip row with malformed identifier",
			zap.String("table", table),
			zap.String("column", column),
			zap.String("value", id))
		MalformedRowsTotal.WithLabelValues(table).Inc()
		return 0, false
	}
	return v, true
}

// profileBuilder merges explicit preferences and the tags of liked places
// into one profile per user of the roster.
type profileBuilder struct {
	users     []int64
	rowIndex  map[int64]int
	profiles  []Profile
	likes     []mapset.Set[int64]
	placeTags map[int64][]string
}

// newProfileBuilder creates the roster. Row order follows the order of
// users; duplicated users keep their first row.
func newProfileBuilder(users []data.User) *profileBuilder {
	b := &profileBuilder{
		rowIndex:  make(map[int64]int, len(users)),
		placeTags: make(map[int64][]string),
	}
	for _, user := range users {
		userId, ok := parseId("users", "user_id", user.UserId)
		if !ok {
			continue
		}
		if _, exist := b.rowIndex[userId]; exist {
			continue
		}
		b.rowIndex[userId] = len(b.users)
		b.users = append(b.users, userId)
		b.profiles = append(b.profiles, make(Profile))
		b.likes = append(b.likes, mapset.NewThreadUnsafeSet[int64]())
	}
	return b
}

// addPreferences seeds profiles with explicit preference labels. Repeated
// labels are additive.
func (b *profileBuilder) addPreferences(kind data.PreferenceKind, rows []data.Association) {
	for _, row := range rows {
		userId, ok := parseId(kind.Table(), "user_id", row.Id)
		if !ok {
			continue
		}
		if i, exist := b.rowIndex[userId]; exist {
			b.profiles[i][row.Value]++
		}
	}
}

// addPlaceAttributes records tags that a like contributes to a profile.
func (b *profileBuilder) addPlaceAttributes(kind data.AttributeKind, rows []data.Association) {
	for _, row := range rows {
		placeId, ok := parseId(kind.Table(), "place_id", row.Id)
		if !ok {
			continue
		}
		b.placeTags[placeId] = append(b.placeTags[placeId], row.Value)
	}
}

// addLikes fills like sets. Likes of users outside the roster are dropped.
func (b *profileBuilder) addLikes(rows []data.Like) {
	for _, row := range rows {
		userId, ok := parseId("likes", "user_id", row.UserId)
		if !ok {
			continue
		}
		placeId, ok := parseId("likes", "place_id", row.PlaceId)
		if !ok {
			continue
		}
		if i, exist := b.rowIndex[userId]; exist {
			b.likes[i].Add(placeId)
		}
	}
}

// enrich adds one count per tag of every liked place. Places without tags
// contribute nothing.
func (b *profileBuilder) enrich() {
	for i, likes := range b.likes {
		likes.Each(func(placeId int64) bool {
			for _, tag := range b.placeTags[placeId] {
				b.profiles[i][tag]++
			}
			return false
		})
	}
}
