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
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gongspot/recommender/storage"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration of the recommender.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Server   ServerConfig   `mapstructure:"server"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
}

// DatabaseConfig is the configuration for the data store.
type DatabaseConfig struct {
	DataStore       string        `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	IsolationLevel  string        `mapstructure:"isolation_level" validate:"omitempty,isolation_level"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// EngineConfig is the configuration for engine builds.
type EngineConfig struct {
	NumNeighbors  int           `mapstructure:"num_neighbors" validate:"gt=0"`
	NumJobs       int           `mapstructure:"num_jobs" validate:"gt=0"`
	DefaultN      int           `mapstructure:"default_n" validate:"gt=0"`
	RefreshPeriod time.Duration `mapstructure:"refresh_period" validate:"gte=0"`
}

// ServerConfig is the configuration for the HTTP server.
type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey string `mapstructure:"api_key"`
}

// OpenAIConfig is the configuration for the embeddings endpoint.
type OpenAIConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"omitempty,url"`
	AuthToken      string `mapstructure:"auth_token"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore:      "sqlite://gongspot.db",
			IsolationLevel: storage.DefaultIsolationLevel,
		},
		Engine: EngineConfig{
			NumNeighbors: 5,
			NumJobs:      1,
			DefaultN:     10,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8087,
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			EmbeddingModel: "text-embedding-3-small",
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	viper.SetDefault("database.isolation_level", defaultConfig.Database.IsolationLevel)
	viper.SetDefault("database.max_open_conns", defaultConfig.Database.MaxOpenConns)
	viper.SetDefault("database.max_idle_conns", defaultConfig.Database.MaxIdleConns)
	viper.SetDefault("database.conn_max_lifetime", defaultConfig.Database.ConnMaxLifetime)
	// [engine]
	viper.SetDefault("engine.num_neighbors", defaultConfig.Engine.NumNeighbors)
	viper.SetDefault("engine.num_jobs", defaultConfig.Engine.NumJobs)
	viper.SetDefault("engine.default_n", defaultConfig.Engine.DefaultN)
	viper.SetDefault("engine.refresh_period", defaultConfig.Engine.RefreshPeriod)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.api_key", defaultConfig.Server.APIKey)
	// [openai]
	viper.SetDefault("openai.base_url", defaultConfig.OpenAI.BaseURL)
	viper.SetDefault("openai.auth_token", defaultConfig.OpenAI.AuthToken)
	viper.SetDefault("openai.embedding_model", defaultConfig.OpenAI.EmbeddingModel)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads configuration from a TOML file. Environment variables
// override the file.
func LoadConfig(path string) (*Config, error) {
	setDefault()

	// bind environment bindings
	bindings := []configBinding{
		{"database.data_store", "GONGSPOT_DATA_STORE"},
		{"database.table_prefix", "GONGSPOT_TABLE_PREFIX"},
		{"engine.num_jobs", "GONGSPOT_ENGINE_JOBS"},
		{"server.host", "GONGSPOT_SERVER_HOST"},
		{"server.port", "GONGSPOT_SERVER_PORT"},
		{"server.api_key", "GONGSPOT_SERVER_API_KEY"},
		{"openai.base_url", "GONGSPOT_OPENAI_BASE_URL"},
		{"openai.auth_token", "GONGSPOT_OPENAI_AUTH_TOKEN"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// unmarshal config file
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the configuration by struct tags.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", validateDataStore); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterValidation("isolation_level", validateIsolationLevel); err != nil {
		return errors.Trace(err)
	}
	return validate.Struct(config)
}
