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
	"strings"
	"time"

	"github.com/gongspot/recommender/config"
	"github.com/gongspot/recommender/storage"
	"github.com/juju/errors"
)

var (
	ErrUserNotExist = errors.NotFoundf("user")
	ErrNoDatabase   = errors.NotAssignedf("database")
)

// User is a member of the population. Soft-deleted users are not returned
// by reads.
type User struct {
	UserId    string     `bson:"_id"`
	Nickname  string     `bson:"nickname"`
	Email     string     `bson:"email"`
	CreatedAt time.Time  `bson:"created_at"`
	DeletedAt *time.Time `bson:"deleted_at"`
}

// Place stores meta data about a study place. Rating is the average of
// the live reviews and is filled on reads only.
type Place struct {
	PlaceId   string   `bson:"_id"`
	Name      string   `bson:"name"`
	Address   string   `bson:"address"`
	IsFree    bool     `bson:"is_free"`
	PhotoUrl  string   `bson:"photo_url"`
	Rating    float64  `bson:"-"`
	Types     []string `bson:"-"`
	Purposes  []string `bson:"-"`
	Moods     []string `bson:"-"`
	Locations []string `bson:"-"`
}

// Like is a positive signal from a user to a place.
type Like struct {
	UserId    string     `bson:"user_id"`
	PlaceId   string     `bson:"place_id"`
	CreatedAt time.Time  `bson:"created_at"`
	DeletedAt *time.Time `bson:"deleted_at"`
}

// Association is a row of a many-to-many table: a user or place id and one
// label.
type Association struct {
	Id    string `bson:"id"`
	Value string `bson:"value"`
}

// Review of a place.
type Review struct {
	ReviewId  string     `bson:"_id"`
	UserId    string     `bson:"user_id"`
	PlaceId   string     `bson:"place_id"`
	Rating    int        `bson:"rating"`
	Content   string     `bson:"content"`
	CreatedAt time.Time  `bson:"created_at"`
	DeletedAt *time.Time `bson:"deleted_at"`
}

// PreferenceKind is a kind of explicit user preference.
type PreferenceKind string

const (
	PreferPlace    PreferenceKind = "prefer_place"
	PreferPurpose  PreferenceKind = "purpose"
	PreferLocation PreferenceKind = "location"
)

var PreferenceKinds = []PreferenceKind{PreferPlace, PreferPurpose, PreferLocation}

func (k PreferenceKind) Table() string {
	return "user_" + string(k)
}

// AttributeKind is a kind of place tag.
type AttributeKind string

const (
	AttributePurpose  AttributeKind = "purpose"
	AttributeMood     AttributeKind = "mood"
	AttributeLocation AttributeKind = "location"
	AttributeType     AttributeKind = "type"
)

var AttributeKinds = []AttributeKind{AttributePurpose, AttributeMood, AttributeLocation, AttributeType}

func (k AttributeKind) Table() string {
	return "place_" + string(k)
}

func (k PreferenceKind) valid() bool {
	switch k {
	case PreferPlace, PreferPurpose, PreferLocation:
		return true
	}
	return false
}

func (k AttributeKind) valid() bool {
	switch k {
	case AttributePurpose, AttributeMood, AttributeLocation, AttributeType:
		return true
	}
	return false
}

// associationTables lists every association table of the schema.
func associationTables() []string {
	var tables []string
	for _, kind := range PreferenceKinds {
		tables = append(tables, kind.Table())
	}
	for _, kind := range AttributeKinds {
		tables = append(tables, kind.Table())
	}
	return tables
}

// setAttribute appends a label to the tag list of a place selected by kind.
func (p *Place) setAttribute(kind AttributeKind, value string) {
	switch kind {
	case AttributePurpose:
		p.Purposes = append(p.Purposes, value)
	case AttributeMood:
		p.Moods = append(p.Moods, value)
	case AttributeLocation:
		p.Locations = append(p.Locations, value)
	case AttributeType:
		p.Types = append(p.Types, value)
	}
}

type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertUsers(ctx context.Context, users []User) error
	BatchInsertPlaces(ctx context.Context, places []Place) error
	BatchInsertLikes(ctx context.Context, likes []Like) error
	BatchInsertUserPreferences(ctx context.Context, kind PreferenceKind, rows []Association) error
	BatchInsertPlaceAttributes(ctx context.Context, kind AttributeKind, rows []Association) error
	BatchInsertReviews(ctx context.Context, reviews []Review) error
	GetUser(ctx context.Context, userId string) (User, error)
	GetUsers(ctx context.Context) ([]User, error)
	GetUserPreferences(ctx context.Context, kind PreferenceKind) ([]Association, error)
	GetPlaceAttributes(ctx context.Context, kind AttributeKind) ([]Association, error)
	GetLikes(ctx context.Context) ([]Like, error)
	GetPlaces(ctx context.Context, placeIds []string) ([]Place, error)
}

// Creator creates a database instance.
type Creator func(path, tablePrefix string, opts ...storage.Option) (Database, error)

var creators = make(map[string]Creator)

// Register a database creator.
func Register(prefixes []string, creator Creator) {
	for _, p := range prefixes {
		creators[p] = creator
	}
}

// Open a connection to a database.
func Open(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	for prefix, creator := range creators {
		if strings.HasPrefix(path, prefix) {
			return creator(path, tablePrefix, opts...)
		}
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

// OpenConfig opens the data store described by the database section of the
// configuration.
func OpenConfig(cfg config.DatabaseConfig) (Database, error) {
	return Open(cfg.DataStore, cfg.TablePrefix,
		storage.WithIsolationLevel(cfg.IsolationLevel),
		storage.WithPool(storage.Pool{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}))
}
