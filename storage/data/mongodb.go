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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gongspot/recommender/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

func init() {
	Register([]string{storage.MongoPrefix, storage.MongoSrvPrefix}, openMongo)
}

func openMongo(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	option := storage.NewOptions(opts...)
	database := new(MongoDB)
	clientOpts := options.Client().ApplyURI(path)
	if option.Pool.MaxOpenConns > 0 {
		clientOpts.SetMaxPoolSize(uint64(option.Pool.MaxOpenConns))
	}
	if option.Pool.ConnMaxLifetime > 0 {
		clientOpts.SetMaxConnIdleTime(option.Pool.ConnMaxLifetime)
	}
	var err error
	if database.client, err = mongo.Connect(context.Background(), clientOpts); err != nil {
		return nil, errors.Trace(err)
	}
	// parse DSN and extract database name
	if cs, err := connstring.ParseAndValidate(path); err != nil {
		return nil, errors.Trace(err)
	} else {
		database.dbName = cs.Database
		database.TablePrefix = storage.TablePrefix(tablePrefix)
	}
	return database, nil
}

// MongoDB is the data storage based on MongoDB. Association rows live in
// one collection per table with a unique (id, value) index.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

func (m MongoDB) collections() []string {
	names := []string{m.UsersTable(), m.PlacesTable(), m.LikesTable(), m.ReviewsTable()}
	for _, name := range associationTables() {
		names = append(names, m.AssociationTable(name))
	}
	return names
}

// Init collections and indices in MongoDB.
func (m MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	exists := mapset.NewSet(collections...)
	// create collections
	for _, name := range m.collections() {
		if !exists.Contains(name) {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	// create indices
	_, err = d.Collection(m.LikesTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "place_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(m.ReviewsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"place_id": 1},
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, name := range associationTables() {
		_, err = d.Collection(m.AssociationTable(name)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}, {Key: "value", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m MongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

// Close connection to MongoDB.
func (m MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m MongoDB) Purge() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	for _, name := range m.collections() {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m MongoDB) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.UsersTable())
	var models []mongo.WriteModel
	for _, user := range users {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": user.UserId}).
			SetUpdate(bson.M{"$set": bson.M{
				"nickname":   user.Nickname,
				"email":      user.Email,
				"deleted_at": user.DeletedAt,
			}, "$setOnInsert": bson.M{"created_at": user.CreatedAt}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) BatchInsertPlaces(ctx context.Context, places []Place) error {
	if len(places) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.PlacesTable())
	var models []mongo.WriteModel
	for _, place := range places {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": place.PlaceId}).
			SetUpdate(bson.M{"$set": bson.M{
				"name":      place.Name,
				"address":   place.Address,
				"is_free":   place.IsFree,
				"photo_url": place.PhotoUrl,
			}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) BatchInsertLikes(ctx context.Context, likes []Like) error {
	if len(likes) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.LikesTable())
	var models []mongo.WriteModel
	for _, like := range likes {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"user_id": like.UserId, "place_id": like.PlaceId}).
			SetUpdate(bson.M{
				"$set":         bson.M{"deleted_at": like.DeletedAt},
				"$setOnInsert": bson.M{"created_at": like.CreatedAt},
			}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) insertAssociations(ctx context.Context, table string, associations []Association) error {
	if len(associations) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.AssociationTable(table))
	var models []mongo.WriteModel
	for _, a := range associations {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"id": a.Id, "value": a.Value}).
			SetUpdate(bson.M{"$set": a}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) BatchInsertUserPreferences(ctx context.Context, kind PreferenceKind, associations []Association) error {
	if !kind.valid() {
		return errors.NotValidf("preference kind %q", kind)
	}
	return m.insertAssociations(ctx, kind.Table(), associations)
}

func (m MongoDB) BatchInsertPlaceAttributes(ctx context.Context, kind AttributeKind, associations []Association) error {
	if !kind.valid() {
		return errors.NotValidf("attribute kind %q", kind)
	}
	return m.insertAssociations(ctx, kind.Table(), associations)
}

func (m MongoDB) BatchInsertReviews(ctx context.Context, reviews []Review) error {
	if len(reviews) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.ReviewsTable())
	var models []mongo.WriteModel
	for _, review := range reviews {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": review.ReviewId}).
			SetUpdate(bson.M{"$set": bson.M{
				"user_id":    review.UserId,
				"place_id":   review.PlaceId,
				"rating":     review.Rating,
				"content":    review.Content,
				"created_at": review.CreatedAt,
				"deleted_at": review.DeletedAt,
			}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) GetUser(ctx context.Context, userId string) (User, error) {
	c := m.client.Database(m.dbName).Collection(m.UsersTable())
	r := c.FindOne(ctx, bson.M{"_id": userId, "deleted_at": nil})
	if errors.Is(r.Err(), mongo.ErrNoDocuments) {
		return User{}, errors.Annotate(ErrUserNotExist, userId)
	} else if r.Err() != nil {
		return User{}, errors.Trace(r.Err())
	}
	var user User
	err := r.Decode(&user)
	return user, errors.Trace(err)
}

func (m MongoDB) GetUsers(ctx context.Context) ([]User, error) {
	c := m.client.Database(m.dbName).Collection(m.UsersTable())
	r, err := c.Find(ctx, bson.M{"deleted_at": nil}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var users []User
	if err = r.All(ctx, &users); err != nil {
		return nil, errors.Trace(err)
	}
	return users, nil
}

func (m MongoDB) getAssociations(ctx context.Context, table string, filter bson.M) ([]Association, error) {
	c := m.client.Database(m.dbName).Collection(m.AssociationTable(table))
	r, err := c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "id", Value: 1}, {Key: "value", Value: 1}}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var associations []Association
	if err = r.All(ctx, &associations); err != nil {
		return nil, errors.Trace(err)
	}
	return associations, nil
}

func (m MongoDB) GetUserPreferences(ctx context.Context, kind PreferenceKind) ([]Association, error) {
	if !kind.valid() {
		return nil, errors.NotValidf("preference kind %q", kind)
	}
	return m.getAssociations(ctx, kind.Table(), bson.M{})
}

func (m MongoDB) GetPlaceAttributes(ctx context.Context, kind AttributeKind) ([]Association, error) {
	if !kind.valid() {
		return nil, errors.NotValidf("attribute kind %q", kind)
	}
	return m.getAssociations(ctx, kind.Table(), bson.M{})
}

func (m MongoDB) GetLikes(ctx context.Context) ([]Like, error) {
	c := m.client.Database(m.dbName).Collection(m.LikesTable())
	r, err := c.Find(ctx, bson.M{"deleted_at": nil}, options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}, {Key: "place_id", Value: 1}}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var likes []Like
	if err = r.All(ctx, &likes); err != nil {
		return nil, errors.Trace(err)
	}
	return likes, nil
}

func (m MongoDB) GetPlaces(ctx context.Context, placeIds []string) ([]Place, error) {
	if len(placeIds) == 0 {
		return nil, nil
	}
	d := m.client.Database(m.dbName)
	r, err := d.Collection(m.PlacesTable()).Find(ctx, bson.M{"_id": bson.M{"$in": placeIds}})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var found []Place
	if err = r.All(ctx, &found); err != nil {
		return nil, errors.Trace(err)
	}
	places := lo.SliceToMap(found, func(place Place) (string, *Place) {
		p := place
		return place.PlaceId, &p
	})
	// tags
	for _, kind := range AttributeKinds {
		associations, err := m.getAssociations(ctx, kind.Table(), bson.M{"id": bson.M{"$in": placeIds}})
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, a := range associations {
			if place, ok := places[a.Id]; ok {
				place.setAttribute(kind, a.Value)
			}
		}
	}
	// ratings
	cursor, err := d.Collection(m.ReviewsTable()).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"place_id": bson.M{"$in": placeIds}, "deleted_at": nil}}},
		{{Key: "$group", Value: bson.M{"_id": "$place_id", "rating": bson.M{"$avg": "$rating"}}}},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	var ratings []struct {
		PlaceId string  `bson:"_id"`
		Rating  float64 `bson:"rating"`
	}
	if err = cursor.All(ctx, &ratings); err != nil {
		return nil, errors.Trace(err)
	}
	for _, rating := range ratings {
		if place, ok := places[rating.PlaceId]; ok {
			place.Rating = rating.Rating
		}
	}
	return collectPlaces(placeIds, places), nil
}
