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

package main

import (
	"fmt"

	"github.com/gorse-io/basket/cmd/version"
	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/config"
	"github.com/gorse-io/basket/storage"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "basket",
	Short: "Frequently bought together and item-based recommendations over order data.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(versionCommand)
}

// loadConfig loads the configuration and installs the tracer provider it describes.
func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	tracerProvider, err := cfg.Tracing.NewTracerProvider()
	if err != nil {
		log.Logger().Fatal("failed to create tracer provider", zap.Error(err))
	}
	otel.SetTracerProvider(tracerProvider)
	otel.SetErrorHandler(log.GetErrorHandler())
	return cfg
}

func openDataStore(cfg *config.Config) (data.Database, error) {
	dataClient, err := data.Open(cfg.Database.DataStore, cfg.Database.TablePrefix,
		storage.WithBatchSize(cfg.Write.BatchSize))
	if err != nil {
		return nil, errors.Annotatef(err, "open data store %s", log.RedactDBURL(cfg.Database.DataStore))
	}
	if err = dataClient.Init(); err != nil {
		return nil, errors.Annotate(err, "init data store")
	}
	return dataClient, nil
}

func openCacheStore(cfg *config.Config) (cache.Database, error) {
	cacheClient, err := cache.Open(cfg.Database.CacheStore, cfg.Database.TablePrefix,
		storage.WithBatchSize(cfg.Write.BatchSize))
	if err != nil {
		return nil, errors.Annotatef(err, "open cache store %s", log.RedactDBURL(cfg.Database.CacheStore))
	}
	if err = cacheClient.Init(); err != nil {
		return nil, errors.Annotate(err, "init cache store")
	}
	return cacheClient, nil
}

// openStores opens both stores or exits.
func openStores(cfg *config.Config) (data.Database, cache.Database) {
	dataClient, err := openDataStore(cfg)
	if err != nil {
		log.Logger().Fatal("failed to connect data store", zap.Error(err))
	}
	cacheClient, err := openCacheStore(cfg)
	if err != nil {
		log.Logger().Fatal("failed to connect cache store", zap.Error(err))
	}
	return dataClient, cacheClient
}

func closeStores(dataClient data.Database, cacheClient cache.Database) {
	if err := dataClient.Close(); err != nil {
		log.Logger().Error("failed to close data store", zap.Error(err))
	}
	if err := cacheClient.Close(); err != nil {
		log.Logger().Error("failed to close cache store", zap.Error(err))
	}
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
