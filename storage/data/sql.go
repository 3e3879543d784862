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
	"database/sql"
	"time"

	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
	"moul.io/zapgorm2"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

func init() {
	Register([]string{storage.MySQLPrefix}, openMySQL)
	Register([]string{storage.PostgresPrefix, storage.PostgreSQLPrefix}, openPostgres)
	Register([]string{storage.SQLitePrefix}, openSQLite)
}

// mysqlDSN converts a mysql:// URL into a driver DSN carrying the session
// settings.
func mysqlDSN(path string, option storage.Options) (string, error) {
	name := path[len(storage.MySQLPrefix):]
	name, err := storage.AppendMySQLParams(name, map[string]string{
		"sql_mode":              "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
		"transaction_isolation": "'" + option.IsolationLevel + "'",
		"parseTime":             "true",
	})
	return name, errors.Trace(err)
}

func openMySQL(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	option := storage.NewOptions(opts...)
	name, err := mysqlDSN(path, option)
	if err != nil {
		return nil, errors.Trace(err)
	}
	database := new(SQLDatabase)
	database.driver = MySQL
	database.TablePrefix = storage.TablePrefix(tablePrefix)
	if database.client, err = sql.Open("mysql", name); err != nil {
		return nil, errors.Trace(err)
	}
	option.Pool.Apply(database.client)
	database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return database, nil
}

func openPostgres(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	option := storage.NewOptions(opts...)
	database := new(SQLDatabase)
	database.driver = Postgres
	database.TablePrefix = storage.TablePrefix(tablePrefix)
	var err error
	database.gormDB, err = gorm.Open(postgres.New(postgres.Config{DSN: path}), storage.NewGORMConfig(tablePrefix))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if database.client, err = database.gormDB.DB(); err != nil {
		return nil, errors.Trace(err)
	}
	option.Pool.Apply(database.client)
	return database, nil
}

func openSQLite(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	option := storage.NewOptions(opts...)
	path, err := storage.AppendURLParams(path, []lo.Tuple2[string, string]{
		{A: "_pragma", B: "busy_timeout(10000)"},
		{A: "_pragma", B: "journal_mode(wal)"},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	name := path[len(storage.SQLitePrefix):]
	database := new(SQLDatabase)
	database.driver = SQLite
	database.TablePrefix = storage.TablePrefix(tablePrefix)
	if database.client, err = sql.Open("sqlite", name); err != nil {
		return nil, errors.Trace(err)
	}
	option.Pool.Apply(database.client)
	gormConfig := storage.NewGORMConfig(tablePrefix)
	gormConfig.Logger = &zapgorm2.Logger{
		ZapLogger:                 log.Logger(),
		LogLevel:                  logger.Warn,
		SlowThreshold:             10 * time.Second,
		SkipCallerLookup:          false,
		IgnoreRecordNotFoundError: false,
	}
	database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, gormConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return database, nil
}

type sqlUser struct {
	UserId    string     `gorm:"column:user_id;type:varchar(256);primaryKey"`
	Nickname  string     `gorm:"column:nickname;type:varchar(256)"`
	Email     string     `gorm:"column:email;type:varchar(256)"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

type sqlPlace struct {
	PlaceId  string `gorm:"column:place_id;type:varchar(256);primaryKey"`
	Name     string `gorm:"column:name;type:varchar(256)"`
	Address  string `gorm:"column:address;type:varchar(512)"`
	IsFree   bool   `gorm:"column:is_free"`
	PhotoUrl string `gorm:"column:photo_url;type:varchar(1024)"`
}

type sqlLike struct {
	UserId    string     `gorm:"column:user_id;type:varchar(256);primaryKey"`
	PlaceId   string     `gorm:"column:place_id;type:varchar(256);primaryKey"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

type sqlUserAssociation struct {
	UserId string `gorm:"column:user_id;type:varchar(256);primaryKey"`
	Value  string `gorm:"column:value;type:varchar(256);primaryKey"`
}

type sqlPlaceAssociation struct {
	PlaceId string `gorm:"column:place_id;type:varchar(256);primaryKey"`
	Value   string `gorm:"column:value;type:varchar(256);primaryKey"`
}

type sqlReview struct {
	ReviewId  string     `gorm:"column:review_id;type:varchar(256);primaryKey"`
	UserId    string     `gorm:"column:user_id;type:varchar(256)"`
	PlaceId   string     `gorm:"column:place_id;type:varchar(256);index"`
	Rating    int        `gorm:"column:rating"`
	Content   string     `gorm:"column:content;type:varchar(500)"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

// SQLDatabase stores users, places and their associations in MySQL,
// PostgreSQL or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates tables. Table names follow the naming strategy, so each
// model type is named after its table.
func (d *SQLDatabase) Init() error {
	type Users sqlUser
	type Places sqlPlace
	type Likes sqlLike
	type Reviews sqlReview
	type UserPreferPlace sqlUserAssociation
	type UserPurpose sqlUserAssociation
	type UserLocation sqlUserAssociation
	type PlacePurpose sqlPlaceAssociation
	type PlaceMood sqlPlaceAssociation
	type PlaceLocation sqlPlaceAssociation
	type PlaceType sqlPlaceAssociation
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	err := db.AutoMigrate(
		Users{}, Places{}, Likes{}, Reviews{},
		UserPreferPlace{}, UserPurpose{}, UserLocation{},
		PlacePurpose{}, PlaceMood{}, PlaceLocation{}, PlaceType{},
	)
	return errors.Trace(err)
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes all rows.
func (d *SQLDatabase) Purge() error {
	tables := []string{d.UsersTable(), d.PlacesTable(), d.LikesTable(), d.ReviewsTable()}
	for _, name := range associationTables() {
		tables = append(tables, d.AssociationTable(name))
	}
	for _, table := range tables {
		if err := d.gormDB.Exec("DELETE FROM " + table).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers inserts users. Existing users are overwritten.
func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	rows := lo.Map(users, func(user User, _ int) sqlUser {
		return sqlUser{
			UserId:    user.UserId,
			Nickname:  user.Nickname,
			Email:     user.Email,
			CreatedAt: user.CreatedAt,
			DeletedAt: user.DeletedAt,
		}
	})
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "email", "deleted_at"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

// BatchInsertPlaces inserts places. Tags are written by
// BatchInsertPlaceAttributes.
func (d *SQLDatabase) BatchInsertPlaces(ctx context.Context, places []Place) error {
	if len(places) == 0 {
		return nil
	}
	rows := lo.Map(places, func(place Place, _ int) sqlPlace {
		return sqlPlace{
			PlaceId:  place.PlaceId,
			Name:     place.Name,
			Address:  place.Address,
			IsFree:   place.IsFree,
			PhotoUrl: place.PhotoUrl,
		}
	})
	err := d.gormDB.WithContext(ctx).Table(d.PlacesTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "place_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "address", "is_free", "photo_url"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertLikes(ctx context.Context, likes []Like) error {
	if len(likes) == 0 {
		return nil
	}
	rows := lo.Map(likes, func(like Like, _ int) sqlLike {
		return sqlLike{
			UserId:    like.UserId,
			PlaceId:   like.PlaceId,
			CreatedAt: like.CreatedAt,
			DeletedAt: like.DeletedAt,
		}
	})
	err := d.gormDB.WithContext(ctx).Table(d.LikesTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "place_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"deleted_at"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

// BatchInsertUserPreferences inserts preference labels. Duplicates are
// ignored.
func (d *SQLDatabase) BatchInsertUserPreferences(ctx context.Context, kind PreferenceKind, associations []Association) error {
	if !kind.valid() {
		return errors.NotValidf("preference kind %q", kind)
	}
	if len(associations) == 0 {
		return nil
	}
	rows := lo.Map(associations, func(a Association, _ int) sqlUserAssociation {
		return sqlUserAssociation{UserId: a.Id, Value: a.Value}
	})
	err := d.gormDB.WithContext(ctx).Table(d.AssociationTable(kind.Table())).
		Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	return errors.Trace(err)
}

// BatchInsertPlaceAttributes inserts place tags. Duplicates are ignored.
func (d *SQLDatabase) BatchInsertPlaceAttributes(ctx context.Context, kind AttributeKind, associations []Association) error {
	if !kind.valid() {
		return errors.NotValidf("attribute kind %q", kind)
	}
	if len(associations) == 0 {
		return nil
	}
	rows := lo.Map(associations, func(a Association, _ int) sqlPlaceAssociation {
		return sqlPlaceAssociation{PlaceId: a.Id, Value: a.Value}
	})
	err := d.gormDB.WithContext(ctx).Table(d.AssociationTable(kind.Table())).
		Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertReviews(ctx context.Context, reviews []Review) error {
	if len(reviews) == 0 {
		return nil
	}
	rows := lo.Map(reviews, func(review Review, _ int) sqlReview {
		return sqlReview{
			ReviewId:  review.ReviewId,
			UserId:    review.UserId,
			PlaceId:   review.PlaceId,
			Rating:    review.Rating,
			Content:   review.Content,
			CreatedAt: review.CreatedAt,
			DeletedAt: review.DeletedAt,
		}
	})
	err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "review_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "content", "deleted_at"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

// GetUser returns a live user or ErrUserNotExist.
func (d *SQLDatabase) GetUser(ctx context.Context, userId string) (User, error) {
	result, err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Select("user_id, COALESCE(nickname, ''), COALESCE(email, '')").
		Where("user_id = ? AND deleted_at IS NULL", userId).Rows()
	if err != nil {
		return User{}, errors.Trace(err)
	}
	defer result.Close()
	if result.Next() {
		var user User
		if err = result.Scan(&user.UserId, &user.Nickname, &user.Email); err != nil {
			return User{}, errors.Trace(err)
		}
		return user, nil
	}
	return User{}, errors.Annotate(ErrUserNotExist, userId)
}

// GetUsers returns all live users ordered by id.
func (d *SQLDatabase) GetUsers(ctx context.Context) ([]User, error) {
	result, err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Select("user_id, COALESCE(nickname, ''), COALESCE(email, '')").
		Where("deleted_at IS NULL").Order("user_id").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer result.Close()
	var users []User
	for result.Next() {
		var user User
		if err = result.Scan(&user.UserId, &user.Nickname, &user.Email); err != nil {
			return nil, errors.Trace(err)
		}
		users = append(users, user)
	}
	return users, errors.Trace(result.Err())
}

func (d *SQLDatabase) GetUserPreferences(ctx context.Context, kind PreferenceKind) ([]Association, error) {
	if !kind.valid() {
		return nil, errors.NotValidf("preference kind %q", kind)
	}
	return d.getAssociations(ctx, d.AssociationTable(kind.Table()), "user_id", nil)
}

func (d *SQLDatabase) GetPlaceAttributes(ctx context.Context, kind AttributeKind) ([]Association, error) {
	if !kind.valid() {
		return nil, errors.NotValidf("attribute kind %q", kind)
	}
	return d.getAssociations(ctx, d.AssociationTable(kind.Table()), "place_id", nil)
}

// getAssociations reads an association table, optionally restricted to ids.
func (d *SQLDatabase) getAssociations(ctx context.Context, table, column string, ids []string) ([]Association, error) {
	tx := d.gormDB.WithContext(ctx).Table(table).Select(column + ", value")
	if ids != nil {
		tx = tx.Where(column+" IN ?", ids)
	}
	result, err := tx.Order(column).Order("value").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer result.Close()
	var associations []Association
	for result.Next() {
		var a Association
		if err = result.Scan(&a.Id, &a.Value); err != nil {
			return nil, errors.Trace(err)
		}
		associations = append(associations, a)
	}
	return associations, errors.Trace(result.Err())
}

// GetLikes returns all live likes.
func (d *SQLDatabase) GetLikes(ctx context.Context) ([]Like, error) {
	result, err := d.gormDB.WithContext(ctx).Table(d.LikesTable()).
		Select("user_id, place_id").
		Where("deleted_at IS NULL").Order("user_id").Order("place_id").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer result.Close()
	var likes []Like
	for result.Next() {
		var like Like
		if err = result.Scan(&like.UserId, &like.PlaceId); err != nil {
			return nil, errors.Trace(err)
		}
		likes = append(likes, like)
	}
	return likes, errors.Trace(result.Err())
}

// GetPlaces returns places with tags and average rating, in the order of
// placeIds. Unknown ids are skipped.
func (d *SQLDatabase) GetPlaces(ctx context.Context, placeIds []string) ([]Place, error) {
	if len(placeIds) == 0 {
		return nil, nil
	}
	result, err := d.gormDB.WithContext(ctx).Table(d.PlacesTable()).
		Select("place_id, COALESCE(name, ''), COALESCE(address, ''), COALESCE(is_free, false), COALESCE(photo_url, '')").
		Where("place_id IN ?", placeIds).Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer result.Close()
	places := make(map[string]*Place)
	for result.Next() {
		var place Place
		if err = result.Scan(&place.PlaceId, &place.Name, &place.Address, &place.IsFree, &place.PhotoUrl); err != nil {
			return nil, errors.Trace(err)
		}
		places[place.PlaceId] = &place
	}
	if err = result.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	// tags
	for _, kind := range AttributeKinds {
		associations, err := d.getAssociations(ctx, d.AssociationTable(kind.Table()), "place_id", placeIds)
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
	ratings, err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
		Select("place_id, AVG(rating)").
		Where("place_id IN ? AND deleted_at IS NULL", placeIds).
		Group("place_id").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer ratings.Close()
	for ratings.Next() {
		var placeId string
		var rating sql.NullFloat64
		if err = ratings.Scan(&placeId, &rating); err != nil {
			return nil, errors.Trace(err)
		}
		if place, ok := places[placeId]; ok && rating.Valid {
			place.Rating = rating.Float64
		}
	}
	if err = ratings.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return collectPlaces(placeIds, places), nil
}

// collectPlaces orders found places by the requested ids.
func collectPlaces(placeIds []string, places map[string]*Place) []Place {
	found := make([]Place, 0, len(places))
	for _, placeId := range lo.Uniq(placeIds) {
		if place, ok := places[placeId]; ok {
			found = append(found, *place)
		} else {
			log.Logger().Debug("place not found", zap.String("place_id", placeId))
		}
	}
	return found
}
