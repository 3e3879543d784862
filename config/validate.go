// Copyright 2020 gorse Project Authors
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

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gongspot/recommender/storage"
	"github.com/samber/lo"
)

var dataStorePrefixes = []string{
	storage.MySQLPrefix,
	storage.PostgresPrefix,
	storage.PostgreSQLPrefix,
	storage.SQLitePrefix,
	storage.MongoPrefix,
	storage.MongoSrvPrefix,
}

// validateDataStore accepts URLs of supported data stores.
func validateDataStore(fl validator.FieldLevel) bool {
	return lo.ContainsBy(dataStorePrefixes, func(prefix string) bool {
		return strings.HasPrefix(fl.Field().String(), prefix)
	})
}

func validateIsolationLevel(fl validator.FieldLevel) bool {
	return lo.Contains(storage.IsolationLevels, fl.Field().String())
}
