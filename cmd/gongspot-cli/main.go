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

	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/cmd/version"
	"github.com/gongspot/recommender/config"
	"github.com/gongspot/recommender/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cliCommand = &cobra.Command{
	Use:   "gongspot-cli",
	Short: "CLI for the GongSpot recommender.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of GongSpot",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

var initCommand = &cobra.Command{
	Use:   "init",
	Short: "Create tables in the data store",
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
		fmt.Printf("Tables created in %s\n", log.RedactDBURL(conf.Database.DataStore))
		return nil
	},
}

var purgeCommand = &cobra.Command{
	Use:   "purge",
	Short: "Delete all rows in the data store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refuse to purge without --yes")
		}
		conf, err := loadConfig(cmd)
		if err != nil {
			return errors.Trace(err)
		}
		dataClient, err := data.OpenConfig(conf.Database)
		if err != nil {
			return errors.Trace(err)
		}
		defer closeDataClient(dataClient)
		return errors.Trace(dataClient.Purge())
	},
}

func init() {
	log.AddFlags(cliCommand.PersistentFlags())
	cliCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	cliCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	purgeCommand.Flags().Bool("yes", false, "confirm deleting all rows")
	cliCommand.AddCommand(versionCommand, initCommand, purgeCommand)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(configPath)
}

func closeDataClient(dataClient data.Database) {
	if err := dataClient.Close(); err != nil {
		log.Logger().Error("failed to close data store", zap.Error(err))
	}
}

func main() {
	if err := cliCommand.ExecuteContext(context.Background()); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
