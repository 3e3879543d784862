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

package storage

import (
	"database/sql"
	"time"
)

// IsolationLevels accepted by MySQL sessions. Bulk reads of the engine
// tolerate dirty reads, so READ-UNCOMMITTED is the default.
var IsolationLevels = []string{
	"READ-UNCOMMITTED",
	"READ-COMMITTED",
	"REPEATABLE-READ",
	"SERIALIZABLE",
}

const DefaultIsolationLevel = "READ-UNCOMMITTED"

// Pool limits of a connection pool. Zero values keep the driver defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Apply the limits to a SQL connection pool.
func (p Pool) Apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
}

// Options of a data store connection.
type Options struct {
	IsolationLevel string
	Pool           Pool
}

type Option func(*Options)

// WithIsolationLevel sets the MySQL session isolation level. An empty level
// keeps the default.
func WithIsolationLevel(level string) Option {
	return func(o *Options) {
		if level != "" {
			o.IsolationLevel = level
		}
	}
}

func WithPool(pool Pool) Option {
	return func(o *Options) {
		o.Pool = pool
	}
}

func NewOptions(opts ...Option) Options {
	opt := Options{IsolationLevel: DefaultIsolationLevel}
	for _, o := range opts {
		o(&opt)
	}
	return opt
}
