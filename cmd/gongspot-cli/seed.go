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
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"slices"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gongspot/recommender/common/parallel"
	"github.com/gongspot/recommender/storage/data"
	"github.com/jaswdr/faker"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	placeTypes = []string{"cafe", "library", "study_cafe", "park", "museum", "bookstore"}
	purposes   = []string{"study", "meeting", "rest", "date", "reading", "work"}
	moods      = []string{"quiet", "bright", "cozy", "lively", "spacious"}
	locations  = []string{"gangnam", "hongdae", "jamsil", "sinchon", "jongno", "seongsu"}
)

type seedOptions struct {
	NumUsers   int
	NumPlaces  int
	MaxLikes   int
	MaxReviews int
	Seed       int64
	Now        time.Time
}

// dataset holds generated rows ready to be inserted.
type dataset struct {
	Users       []data.User
	Places      []data.Place
	Likes       []data.Like
	Reviews     []data.Review
	Preferences map[data.PreferenceKind][]data.Association
	Attributes  map[data.AttributeKind][]data.Association
}

// pick returns between low and high distinct elements of values.
func pick(f faker.Faker, values []string, low, high int) []string {
	n := f.IntBetween(low, min(high, len(values)))
	chosen := mapset.NewThreadUnsafeSet[string]()
	for chosen.Cardinality() < n {
		chosen.Add(f.RandomStringElement(values))
	}
	return sortedSlice(chosen, values)
}

// sortedSlice keeps the vocabulary order so that generation is deterministic.
func sortedSlice(set mapset.Set[string], order []string) []string {
	var result []string
	for _, v := range order {
		if set.Contains(v) {
			result = append(result, v)
		}
	}
	return result
}

func generate(opts seedOptions) *dataset {
	f := faker.NewWithSeed(rand.NewSource(opts.Seed))
	ds := &dataset{
		Preferences: make(map[data.PreferenceKind][]data.Association),
		Attributes:  make(map[data.AttributeKind][]data.Association),
	}
	randomTime := func() time.Time {
		return opts.Now.Add(-time.Duration(f.IntBetween(1, 365*24)) * time.Hour)
	}

	// places
	for i := 1; i <= opts.NumPlaces; i++ {
		placeId := strconv.Itoa(i)
		ds.Places = append(ds.Places, data.Place{
			PlaceId:  placeId,
			Name:     f.Company().Name(),
			Address:  f.Address().Address(),
			IsFree:   f.Boolean().Bool(),
			PhotoUrl: f.Internet().URL(),
		})
		tags := map[data.AttributeKind][]string{
			data.AttributeType:     pick(f, placeTypes, 1, 1),
			data.AttributePurpose:  pick(f, purposes, 1, 2),
			data.AttributeMood:     pick(f, moods, 1, 2),
			data.AttributeLocation: pick(f, locations, 1, 1),
		}
		for _, kind := range data.AttributeKinds {
			for _, value := range tags[kind] {
				ds.Attributes[kind] = append(ds.Attributes[kind], data.Association{Id: placeId, Value: value})
			}
		}
	}

	// users and their rows
	for i := 1; i <= opts.NumUsers; i++ {
		userId := strconv.Itoa(i)
		ds.Users = append(ds.Users, data.User{
			UserId:    userId,
			Nickname:  f.Person().Name(),
			Email:     f.Internet().Email(),
			CreatedAt: randomTime(),
		})
		preferences := map[data.PreferenceKind][]string{
			data.PreferPlace:    pick(f, placeTypes, 0, 2),
			data.PreferPurpose:  pick(f, purposes, 0, 2),
			data.PreferLocation: pick(f, locations, 0, 1),
		}
		for _, kind := range data.PreferenceKinds {
			for _, value := range preferences[kind] {
				ds.Preferences[kind] = append(ds.Preferences[kind], data.Association{Id: userId, Value: value})
			}
		}
		if opts.NumPlaces == 0 {
			continue
		}
		liked := mapset.NewThreadUnsafeSet[int]()
		numLikes := f.IntBetween(0, min(opts.MaxLikes, opts.NumPlaces))
		for liked.Cardinality() < numLikes {
			liked.Add(f.IntBetween(1, opts.NumPlaces))
		}
		likedPlaces := liked.ToSlice()
		slices.Sort(likedPlaces)
		for _, placeId := range likedPlaces {
			ds.Likes = append(ds.Likes, data.Like{
				UserId:    userId,
				PlaceId:   strconv.Itoa(placeId),
				CreatedAt: randomTime(),
			})
		}
		numReviews := f.IntBetween(0, opts.MaxReviews)
		for j := 0; j < numReviews; j++ {
			ds.Reviews = append(ds.Reviews, data.Review{
				ReviewId:  fmt.Sprintf("%s-%d", userId, j),
				UserId:    userId,
				PlaceId:   strconv.Itoa(f.IntBetween(1, opts.NumPlaces)),
				Rating:    f.IntBetween(1, 5),
				Content:   f.Lorem().Sentence(8),
				CreatedAt: randomTime(),
			})
		}
	}
	return ds
}

// insertChunks inserts rows in batches and advances the progress bar.
func insertChunks[T any](rows []T, batchSize int, bar *progressbar.ProgressBar, insert func([]T) error) error {
	for _, chunk := range parallel.Chunk(rows, batchSize) {
		if err := insert(chunk); err != nil {
			return errors.Trace(err)
		}
		if err := bar.Add(len(chunk)); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (ds *dataset) numRows() int {
	n := len(ds.Users) + len(ds.Places) + len(ds.Likes) + len(ds.Reviews)
	for _, rows := range ds.Preferences {
		n += len(rows)
	}
	for _, rows := range ds.Attributes {
		n += len(rows)
	}
	return n
}

// insert writes the dataset into the data store.
func (ds *dataset) insert(ctx context.Context, db data.Database, batchSize int, w io.Writer) error {
	bar := progressbar.NewOptions(ds.numRows(),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Seeding"),
		progressbar.OptionShowCount())
	if err := insertChunks(ds.Users, batchSize, bar, func(users []data.User) error {
		return db.BatchInsertUsers(ctx, users)
	}); err != nil {
		return errors.Annotate(err, "failed to insert users")
	}
	if err := insertChunks(ds.Places, batchSize, bar, func(places []data.Place) error {
		return db.BatchInsertPlaces(ctx, places)
	}); err != nil {
		return errors.Annotate(err, "failed to insert places")
	}
	for _, kind := range data.PreferenceKinds {
		if err := insertChunks(ds.Preferences[kind], batchSize, bar, func(rows []data.Association) error {
			return db.BatchInsertUserPreferences(ctx, kind, rows)
		}); err != nil {
			return errors.Annotatef(err, "failed to insert %s", kind.Table())
		}
	}
	for _, kind := range data.AttributeKinds {
		if err := insertChunks(ds.Attributes[kind], batchSize, bar, func(rows []data.Association) error {
			return db.BatchInsertPlaceAttributes(ctx, kind, rows)
		}); err != nil {
			return errors.Annotatef(err, "failed to insert %s", kind.Table())
		}
	}
	if err := insertChunks(ds.Likes, batchSize, bar, func(likes []data.Like) error {
		return db.BatchInsertLikes(ctx, likes)
	}); err != nil {
		return errors.Annotate(err, "failed to insert likes")
	}
	if err := insertChunks(ds.Reviews, batchSize, bar, func(reviews []data.Review) error {
		return db.BatchInsertReviews(ctx, reviews)
	}); err != nil {
		return errors.Annotate(err, "failed to insert reviews")
	}
	return errors.Trace(bar.Finish())
}

var seedCommand = &cobra.Command{
	Use:   "seed",
	Short: "Fill the data store with fake users, places and likes",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		dataClient, err := data.OpenConfig(conf.Database)
		if err != nil {
			return errors.Trace(err)
		}
		defer closeDataClient(dataClient)
		if err = dataClient.Init(); err != nil {
			return errors.Trace(err)
		}
		var opts seedOptions
		opts.NumUsers, _ = cmd.Flags().GetInt("users")
		opts.NumPlaces, _ = cmd.Flags().GetInt("places")
		opts.MaxLikes, _ = cmd.Flags().GetInt("max-likes")
		opts.MaxReviews, _ = cmd.Flags().GetInt("max-reviews")
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
		opts.Now = time.Now()
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		ds := generate(opts)
		if err = ds.insert(cmd.Context(), dataClient, batchSize, os.Stderr); err != nil {
			return errors.Trace(err)
		}
		fmt.Printf("\nSeeded %d users, %d places, %d likes and %d reviews\n",
			len(ds.Users), len(ds.Places), len(ds.Likes), len(ds.Reviews))
		return nil
	},
}

func init() {
	seedCommand.Flags().Int("users", 100, "number of users")
	seedCommand.Flags().Int("places", 200, "number of places")
	seedCommand.Flags().Int("max-likes", 10, "maximum number of likes per user")
	seedCommand.Flags().Int("max-reviews", 3, "maximum number of reviews per user")
	seedCommand.Flags().Int64("seed", 0, "random seed")
	seedCommand.Flags().Int("batch-size", 500, "number of rows per insert")
	cliCommand.AddCommand(seedCommand)
}
