// Copyright 2022 gorse Project Authors
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

package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	_ "modernc.org/sqlite"
)

func TestAppendURLParams(t *testing.T) {
	// test windows path
	url, err := AppendURLParams(`c:\\sqlite.db`, []lo.Tuple2[string, string]{{A: "a", B: "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `c:\\sqlite.db?a=b`, url)
	// test no scheme
	url, err = AppendURLParams(`sqlite.db`, []lo.Tuple2[string, string]{{A: "a", B: "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `sqlite.db?a=b`, url)
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := AppendMySQLParams("root:pass@tcp(localhost:3306)/gongspot", map[string]string{"sql_mode": "'ANSI'"})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "sql_mode=%27ANSI%27")
	// existed parameters are kept
	dsn, err = AppendMySQLParams("root:pass@tcp(localhost:3306)/gongspot?sql_mode=%27TRADITIONAL%27", map[string]string{"sql_mode": "'ANSI'"})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "sql_mode=%27TRADITIONAL%27")
	assert.NotContains(t, dsn, "ANSI")
}

func TestTablePrefix(t *testing.T) {
	prefix := TablePrefix("gongspot_")
	assert.Equal(t, "gongspot_users", prefix.UsersTable())
	assert.Equal(t, "gongspot_places", prefix.PlacesTable())
	assert.Equal(t, "gongspot_likes", prefix.LikesTable())
	assert.Equal(t, "gongspot_reviews", prefix.ReviewsTable())
	assert.Equal(t, "gongspot_user_purpose", prefix.AssociationTable("user_purpose"))
	assert.Equal(t, "users", TablePrefix("").UsersTable())
}

func TestNewOptions(t *testing.T) {
	opt := NewOptions()
	assert.Equal(t, DefaultIsolationLevel, opt.IsolationLevel)
	assert.Zero(t, opt.Pool)

	pool := Pool{MaxOpenConns: 8, MaxIdleConns: 2, ConnMaxLifetime: time.Minute}
	opt = NewOptions(WithIsolationLevel("READ-COMMITTED"), WithPool(pool))
	assert.Equal(t, "READ-COMMITTED", opt.IsolationLevel)
	assert.Equal(t, pool, opt.Pool)

	// empty level keeps the default
	opt = NewOptions(WithIsolationLevel(""))
	assert.Equal(t, DefaultIsolationLevel, opt.IsolationLevel)
}

func TestPoolApply(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "pool.db"))
	assert.NoError(t, err)
	defer db.Close()
	Pool{MaxOpenConns: 3}.Apply(db)
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)
	// zero values keep the previous limits
	Pool{}.Apply(db)
	assert.Equal(t, 3, db.Stats().MaxOpenConnections)
}
