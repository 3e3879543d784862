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

import "context"

// NoDatabase means that no database used.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertUsers(_ context.Context, _ []User) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertPlaces(_ context.Context, _ []Place) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertLikes(_ context.Context, _ []Like) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertUserPreferences(_ context.Context, _ PreferenceKind, _ []Association) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertPlaceAttributes(_ context.Context, _ AttributeKind, _ []Association) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertReviews(_ context.Context, _ []Review) error {
	return ErrNoDatabase
}

func (NoDatabase) GetUser(_ context.Context, _ string) (User, error) {
	return User{}, ErrNoDatabase
}

func (NoDatabase) GetUsers(_ context.Context) ([]User, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetUserPreferences(_ context.Context, _ PreferenceKind) ([]Association, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetPlaceAttributes(_ context.Context, _ AttributeKind) ([]Association, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetLikes(_ context.Context) ([]Like, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetPlaces(_ context.Context, _ []string) ([]Place, error) {
	return nil, ErrNoDatabase
}
