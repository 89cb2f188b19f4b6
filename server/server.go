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

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/config"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/gorse-io/basket/storage/data"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/zap"
)

const (
	apiDocsPath = "/apidocs.json"
	swaggerPath = "/apidocs/"
)

// RestServer serves recommendation results from the cache store.
type RestServer struct {
	Config      *config.Config
	DataClient  data.Database
	CacheClient cache.Database
	WebService  *restful.WebService

	responses  *ttlcache.Cache[string, any]
	httpServer *http.Server
}

func NewRestServer(cfg *config.Config, dataClient data.Database, cacheClient cache.Database) *RestServer {
	s := &RestServer{
		Config:      cfg,
		DataClient:  dataClient,
		CacheClient: cacheClient,
		WebService:  new(restful.WebService),
	}
	if cfg.Server.CacheTTL > 0 {
		s.responses = ttlcache.New[string, any](
			ttlcache.WithTTL[string, any](cfg.Server.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, any]())
	}
	return s
}

// Handler creates the container serving the REST API, the API docs and metrics.
func (s *RestServer) Handler() *restful.Container {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     apiDocsPath,
	}))
	container.Handle(swaggerPath, v5emb.New("basket", apiDocsPath, swaggerPath))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// StartHttpServer serves until Shutdown is called.
func (s *RestServer) StartHttpServer() error {
	if s.responses != nil {
		go s.responses.Start()
	}
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Logger().Info("start http server", zap.String("url", "http://"+addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

func (s *RestServer) Shutdown(ctx context.Context) error {
	if s.responses != nil {
		s.responses.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return errors.Trace(s.httpServer.Shutdown(ctx))
}

// cached returns the response stored under key, loading and storing it on a miss.
// Empty responses are not stored.
func (s *RestServer) cached(key string, load func() (any, int, error)) (any, error) {
	if s.responses != nil {
		if item := s.responses.Get(key); item != nil {
			CacheHits.Inc()
			return item.Value(), nil
		}
	}
	CacheMisses.Inc()
	value, n, err := load()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if n == 0 {
		return nil, errors.NotFoundf("%s", key)
	}
	if s.responses != nil {
		s.responses.Set(key, value, ttlcache.DefaultTTL)
	}
	return value, nil
}
