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
	"os"
	"os/signal"
	"syscall"

	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/cmd/version"
	"github.com/gongspot/recommender/config"
	"github.com/gongspot/recommender/server"
	"github.com/gongspot/recommender/storage/data"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serverCommand = &cobra.Command{
	Use:   "gongspot-server",
	Short: "The recommendation server of GongSpot.",
	Run: func(cmd *cobra.Command, args []string) {
		// show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}

		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if cmd.PersistentFlags().Changed("http-host") {
			conf.Server.Host, _ = cmd.PersistentFlags().GetString("http-host")
		}
		if cmd.PersistentFlags().Changed("http-port") {
			conf.Server.Port, _ = cmd.PersistentFlags().GetInt("http-port")
		}

		// connect data store
		dataClient, err := data.OpenConfig(conf.Database)
		if err != nil {
			log.Logger().Fatal("failed to connect data store", zap.Error(err),
				zap.String("database", log.RedactDBURL(conf.Database.DataStore)))
		}
		defer func() {
			if err := dataClient.Close(); err != nil {
				log.Logger().Error("failed to close data store", zap.Error(err))
			}
		}()
		if autoInit, _ := cmd.PersistentFlags().GetBool("init"); autoInit {
			if err = dataClient.Init(); err != nil {
				log.Logger().Fatal("failed to init data store", zap.Error(err))
			}
		}

		// serve until interrupted
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		s := server.NewServer(conf, dataClient)
		if err = s.Serve(ctx); err != nil {
			log.Logger().Fatal("failed to serve", zap.Error(err))
		}
		log.Logger().Info("stop gongspot-server successfully")
	},
}

func init() {
	log.AddFlags(serverCommand.PersistentFlags())
	serverCommand.PersistentFlags().BoolP("version", "v", false, "gongspot-server version")
	serverCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	serverCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	serverCommand.PersistentFlags().String("http-host", "0.0.0.0", "host of RESTful API")
	serverCommand.PersistentFlags().Int("http-port", 8087, "port of RESTful API")
	serverCommand.PersistentFlags().Bool("init", false, "create tables before serving")
}

func main() {
	if err := serverCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
