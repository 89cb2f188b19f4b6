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
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/server"
	"github.com/gorse-io/basket/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and run jobs on schedule",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		dataClient, cacheClient := openStores(cfg)
		defer closeStores(dataClient, cacheClient)

		noWorker, _ := cmd.Flags().GetBool("no-worker")
		var w *worker.Worker
		if !noWorker {
			w = worker.NewWorker(worker.NewPipeline(cfg, dataClient, cacheClient))
			w.Serve(context.Background())
		}
		s := server.NewRestServer(cfg, dataClient, cacheClient)
		done := make(chan struct{})
		go func() {
			defer close(done)
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			<-sigint
			log.Logger().Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				log.Logger().Error("failed to shutdown http server", zap.Error(err))
			}
			if w != nil {
				w.Shutdown()
			}
		}()
		if err := s.StartHttpServer(); err != nil {
			log.Logger().Fatal("failed to start http server", zap.Error(err))
		}
		<-done
		log.Logger().Info("stop basket successfully")
	},
}

func init() {
	serveCommand.Flags().Bool("no-worker", false, "serve the REST API without running jobs")
	rootCommand.AddCommand(serveCommand)
}
