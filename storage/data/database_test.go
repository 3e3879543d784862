// Copyright 2021 gorse Project Authors
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

package data

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database Database
}

func (suite *baseTestSuite) SetupTest() {
	suite.NoError(suite.Database.Purge())
}

func (suite *baseTestSuite) TestUsers() {
	ctx := context.Background()
	deletedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	err := suite.Database.BatchInsertUsers(ctx, []User{
		{UserId: "2", Nickname: "bob", Email: "bob@example.com", CreatedAt: time.Now()},
		{UserId: "1", Nickname: "alice", Email: "alice@example.com", CreatedAt: time.Now()},
		{UserId: "3", Nickname: "carol", Email: "carol@example.com", CreatedAt: time.Now(), DeletedAt: &deletedAt},
	})
	suite.NoError(err)
	// soft-deleted users are hidden
	users, err := suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Equal([]string{"1", "2"}, lo.Map(users, func(u User, _ int) string { return u.UserId }))
	user, err := suite.Database.GetUser(ctx, "1")
	suite.NoError(err)
	suite.Equal("alice", user.Nickname)
	suite.Equal("alice@example.com", user.Email)
	_, err = suite.Database.GetUser(ctx, "3")
	suite.ErrorIs(err, ErrUserNotExist)
	_, err = suite.Database.GetUser(ctx, "4")
	suite.ErrorIs(err, ErrUserNotExist)
	// overwrite
	err = suite.Database.BatchInsertUsers(ctx, []User{{UserId: "1", Nickname: "alicia", CreatedAt: time.Now()}})
	suite.NoError(err)
	user, err = suite.Database.GetUser(ctx, "1")
	suite.NoError(err)
	suite.Equal("alicia", user.Nickname)
	// restore
	err = suite.Database.BatchInsertUsers(ctx, []User{{UserId: "3", Nickname: "carol", CreatedAt: time.Now()}})
	suite.NoError(err)
	users, err = suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Len(users, 3)
	// empty batch
	suite.NoError(suite.Database.BatchInsertUsers(ctx, nil))
}

func (suite *baseTestSuite) TestUserPreferences() {
	ctx := context.Background()
	err := suite.Database.BatchInsertUserPreferences(ctx, PreferPurpose, []Association{
		{Id: "2", Value: "rest"},
		{Id: "1", Value: "study"},
		{Id: "1", Value: "group"},
		{Id: "1", Value: "study"},
	})
	suite.NoError(err)
	err = suite.Database.BatchInsertUserPreferences(ctx, PreferPlace, []Association{{Id: "1", Value: "cafe"}})
	suite.NoError(err)
	purposes, err := suite.Database.GetUserPreferences(ctx, PreferPurpose)
	suite.NoError(err)
	suite.Equal([]Association{
		{Id: "1", Value: "group"},
		{Id: "1", Value: "study"},
		{Id: "2", Value: "rest"},
	}, purposes)
	places, err := suite.Database.GetUserPreferences(ctx, PreferPlace)
	suite.NoError(err)
	suite.Equal([]Association{{Id: "1", Value: "cafe"}}, places)
	locations, err := suite.Database.GetUserPreferences(ctx, PreferLocation)
	suite.NoError(err)
	suite.Empty(locations)
	// unknown kind
	_, err = suite.Database.GetUserPreferences(ctx, "hobby")
	suite.Error(err)
	err = suite.Database.BatchInsertUserPreferences(ctx, "hobby", []Association{{Id: "1", Value: "x"}})
	suite.Error(err)
}

func (suite *baseTestSuite) TestPlaceAttributes() {
	ctx := context.Background()
	err := suite.Database.BatchInsertPlaceAttributes(ctx, AttributeMood, []Association{
		{Id: "10", Value: "quiet"},
		{Id: "10", Value: "bright"},
		{Id: "11", Value: "quiet"},
	})
	suite.NoError(err)
	moods, err := suite.Database.GetPlaceAttributes(ctx, AttributeMood)
	suite.NoError(err)
	suite.Equal([]Association{
		{Id: "10", Value: "bright"},
		{Id: "10", Value: "quiet"},
		{Id: "11", Value: "quiet"},
	}, moods)
	purposes, err := suite.Database.GetPlaceAttributes(ctx, AttributePurpose)
	suite.NoError(err)
	suite.Empty(purposes)
	_, err = suite.Database.GetPlaceAttributes(ctx, "color")
	suite.Error(err)
}

func (suite *baseTestSuite) TestLikes() {
	ctx := context.Background()
	deletedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	err := suite.Database.BatchInsertLikes(ctx, []Like{
		{UserId: "1", PlaceId: "10", CreatedAt: time.Now()},
		{UserId: "1", PlaceId: "11", CreatedAt: time.Now(), DeletedAt: &deletedAt},
		{UserId: "2", PlaceId: "10", CreatedAt: time.Now()},
	})
	suite.NoError(err)
	likes, err := suite.Database.GetLikes(ctx)
	suite.NoError(err)
	suite.Equal([][2]string{{"1", "10"}, {"2", "10"}}, lo.Map(likes, func(l Like, _ int) [2]string {
		return [2]string{l.UserId, l.PlaceId}
	}))
	// like again
	err = suite.Database.BatchInsertLikes(ctx, []Like{{UserId: "1", PlaceId: "11", CreatedAt: time.Now()}})
	suite.NoError(err)
	likes, err = suite.Database.GetLikes(ctx)
	suite.NoError(err)
	suite.Len(likes, 3)
}

func (suite *baseTestSuite) TestPlaces() {
	ctx := context.Background()
	err := suite.Database.BatchInsertPlaces(ctx, []Place{
		{PlaceId: "10", Name: "Central Library", Address: "1 Main St", IsFree: true, PhotoUrl: "https://img/10.jpg"},
		{PlaceId: "11", Name: "Bean Cafe", Address: "2 Side St"},
	})
	suite.NoError(err)
	err = suite.Database.BatchInsertPlaceAttributes(ctx, AttributeType, []Association{{Id: "10", Value: "library"}, {Id: "11", Value: "cafe"}})
	suite.NoError(err)
	err = suite.Database.BatchInsertPlaceAttributes(ctx, AttributePurpose, []Association{{Id: "10", Value: "study"}, {Id: "10", Value: "group"}})
	suite.NoError(err)
	err = suite.Database.BatchInsertPlaceAttributes(ctx, AttributeMood, []Association{{Id: "10", Value: "quiet"}})
	suite.NoError(err)
	err = suite.Database.BatchInsertPlaceAttributes(ctx, AttributeLocation, []Association{{Id: "11", Value: "gangnam"}})
	suite.NoError(err)
	deletedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	err = suite.Database.BatchInsertReviews(ctx, []Review{
		{ReviewId: "100", UserId: "1", PlaceId: "10", Rating: 4, CreatedAt: time.Now()},
		{ReviewId: "101", UserId: "2", PlaceId: "10", Rating: 5, CreatedAt: time.Now()},
		{ReviewId: "102", UserId: "3", PlaceId: "10", Rating: 1, CreatedAt: time.Now(), DeletedAt: &deletedAt},
	})
	suite.NoError(err)

	places, err := suite.Database.GetPlaces(ctx, []string{"11", "99", "10"})
	suite.NoError(err)
	if suite.Len(places, 2) {
		suite.Equal("11", places[0].PlaceId)
		suite.Equal("Bean Cafe", places[0].Name)
		suite.False(places[0].IsFree)
		suite.Equal([]string{"cafe"}, places[0].Types)
		suite.Equal([]string{"gangnam"}, places[0].Locations)
		suite.Zero(places[0].Rating)

		suite.Equal("10", places[1].PlaceId)
		suite.Equal("Central Library", places[1].Name)
		suite.Equal("1 Main St", places[1].Address)
		suite.True(places[1].IsFree)
		suite.Equal("https://img/10.jpg", places[1].PhotoUrl)
		suite.Equal([]string{"library"}, places[1].Types)
		suite.Equal([]string{"group", "study"}, places[1].Purposes)
		suite.Equal([]string{"quiet"}, places[1].Moods)
		suite.InDelta(4.5, places[1].Rating, 1e-9)
	}
	places, err = suite.Database.GetPlaces(ctx, nil)
	suite.NoError(err)
	suite.Empty(places)
}

func (suite *baseTestSuite) TestPurge() {
	ctx := context.Background()
	suite.NoError(suite.Database.BatchInsertUsers(ctx, []User{{UserId: "1", CreatedAt: time.Now()}}))
	suite.NoError(suite.Database.BatchInsertLikes(ctx, []Like{{UserId: "1", PlaceId: "10", CreatedAt: time.Now()}}))
	suite.NoError(suite.Database.BatchInsertUserPreferences(ctx, PreferLocation, []Association{{Id: "1", Value: "gangnam"}}))
	suite.NoError(suite.Database.Purge())
	users, err := suite.Database.GetUsers(ctx)
	suite.NoError(err)
	suite.Empty(users)
	likes, err := suite.Database.GetLikes(ctx)
	suite.NoError(err)
	suite.Empty(likes)
	locations, err := suite.Database.GetUserPreferences(ctx, PreferLocation)
	suite.NoError(err)
	suite.Empty(locations)
}

func (suite *baseTestSuite) TestPing() {
	suite.NoError(suite.Database.Ping())
}
