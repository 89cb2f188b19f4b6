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
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/basket/common/log"
	"github.com/gorse-io/basket/storage/cache"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const healthPrefix = "/api/health"

// Score is an item with its score.
type Score struct {
	Id    string  `json:"id"`
	Score float64 `json:"score"`
}

type Rule struct {
	Antecedent []string `json:"antecedent"`
	Consequent string   `json:"consequent"`
	Support    float64  `json:"support"`
	Confidence float64  `json:"confidence"`
	Lift       float64  `json:"lift"`
}

type Meta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type HealthStatus struct {
	Ready               bool   `json:"ready"`
	DataStoreError      string `json:"data_store_error,omitempty"`
	CacheStoreError     string `json:"cache_store_error,omitempty"`
	DataStoreConnected  bool   `json:"data_store_connected"`
	CacheStoreConnected bool   `json:"cache_store_connected"`
}

// RequestIdFilter makes sure every response carries an X-Request-ID header.
func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	RequestSecondsVec.WithLabelValues(req.SelectedRoutePath(), strconv.Itoa(resp.StatusCode())).
		Observe(time.Since(start).Seconds())
	if req.Request.URL.Path != healthPrefix && req.Request.URL.Path != healthPrefix+"/live" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// AuthFilter rejects requests without the configured API key. Health checks are always allowed.
func (s *RestServer) AuthFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	apiKey := s.Config.Server.APIKey
	if apiKey == "" || req.HeaderParameter("X-API-Key") == apiKey ||
		req.Request.URL.Path == healthPrefix || req.Request.URL.Path == healthPrefix+"/live" {
		chain.ProcessFilter(req, resp)
		return
	}
	log.ResponseLogger(resp).Warn("unauthorized", zap.String("path", req.Request.URL.Path))
	if err := resp.WriteError(http.StatusUnauthorized, errors.Unauthorizedf("api key")); err != nil {
		log.ResponseLogger(resp).Error("failed to write error", zap.Error(err))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(RequestIdFilter)
	ws.Filter(LogFilter)
	ws.Filter(otelrestful.OTelFilter("basket"))
	ws.Filter(s.AuthFilter)

	ws.Route(ws.GET("/health").To(s.checkReady).
		Doc("Probe readiness: both stores are reachable.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "OK", HealthStatus{}).
		Returns(http.StatusServiceUnavailable, "unavailable", HealthStatus{}).
		Writes(HealthStatus{}))
	ws.Route(ws.GET("/health/live").To(s.checkLive).
		Doc("Probe liveness.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))

	ws.Route(ws.GET("/item/{item-id}/bought-together").To(s.getBoughtTogether).
		Doc("Get products frequently bought together with a product.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the product").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned products").DataType("int")).
		Returns(http.StatusOK, "OK", []Score{}).
		Writes([]Score{}))
	ws.Route(ws.GET("/item/{item-id}/similar").To(s.getSimilar).
		Doc("Get similar items of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("int")).
		Returns(http.StatusOK, "OK", []Score{}).
		Writes([]Score{}))
	ws.Route(ws.GET("/user/{user-id}/recommend").To(s.getRecommend).
		Doc("Get recommendations for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("int")).
		Returns(http.StatusOK, "OK", []Score{}).
		Writes([]Score{}))
	ws.Route(ws.GET("/rules").To(s.getRules).
		Doc("Get top association rules.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("n", "number of returned rules").DataType("int")).
		Returns(http.StatusOK, "OK", []Rule{}).
		Writes([]Rule{}))
	ws.Route(ws.GET("/meta/{key}").To(s.getMeta).
		Doc("Get a meta value such as the last run time of a job.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"meta"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("key", "name of the meta value").DataType("string")).
		Returns(http.StatusOK, "OK", Meta{}).
		Writes(Meta{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		return 0, errors.NotValidf("n %q", request.QueryParameter("n"))
	}
	if n <= 0 {
		return 0, errors.NotValidf("n %d", n)
	}
	return n, nil
}

func (s *RestServer) checkHealth() HealthStatus {
	var status HealthStatus
	if err := s.DataClient.Ping(); err != nil {
		status.DataStoreError = err.Error()
	} else {
		status.DataStoreConnected = true
	}
	if err := s.CacheClient.Ping(); err != nil {
		status.CacheStoreError = err.Error()
	} else {
		status.CacheStoreConnected = true
	}
	status.Ready = status.DataStoreConnected && status.CacheStoreConnected
	return status
}

func (s *RestServer) checkLive(_ *restful.Request, response *restful.Response) {
	Ok(response, s.checkHealth())
}

func (s *RestServer) checkReady(_ *restful.Request, response *restful.Response) {
	status := s.checkHealth()
	if !status.Ready {
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteHeaderAndJson(http.StatusServiceUnavailable, status, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
		return
	}
	Ok(response, status)
}

// getList serves a list under key loaded by load. A missing list is answered with 404.
func (s *RestServer) getList(key string, request *restful.Request, response *restful.Response, load func(n int) (any, int, error)) {
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	value, err := s.cached(fmt.Sprintf("%s?n=%d", key, n), func() (any, int, error) {
		return load(n)
	})
	if errors.Is(err, errors.NotFound) {
		PageNotFound(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, value)
}

func (s *RestServer) getBoughtTogether(request *restful.Request, response *restful.Response) {
	itemId := request.PathParameter("item-id")
	s.getList(request.Request.URL.Path, request, response, func(n int) (any, int, error) {
		rows, err := s.CacheClient.GetFrequentlyBoughtTogether(request.Request.Context(), itemId, n)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		return lo.Map(rows, func(row cache.FrequentlyBoughtTogether, _ int) Score {
			return Score{Id: row.RecommendedProductId, Score: row.Support}
		}), len(rows), nil
	})
}

func (s *RestServer) getSimilar(request *restful.Request, response *restful.Response) {
	itemId := request.PathParameter("item-id")
	s.getList(request.Request.URL.Path, request, response, func(n int) (any, int, error) {
		rows, err := s.CacheClient.GetSimilarItems(request.Request.Context(), itemId, n)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		return lo.Map(rows, func(row cache.SimilarItem, _ int) Score {
			return Score{Id: row.NeighborId, Score: row.Score}
		}), len(rows), nil
	})
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	userId := request.PathParameter("user-id")
	s.getList(request.Request.URL.Path, request, response, func(n int) (any, int, error) {
		rows, err := s.CacheClient.GetUserRecommendations(request.Request.Context(), userId, n)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		return lo.Map(rows, func(row cache.UserRecommendation, _ int) Score {
			return Score{Id: row.ProductId, Score: row.Score}
		}), len(rows), nil
	})
}

func (s *RestServer) getRules(request *restful.Request, response *restful.Response) {
	s.getList(request.Request.URL.Path, request, response, func(n int) (any, int, error) {
		rows, err := s.CacheClient.GetAssociationRules(request.Request.Context(), n)
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		return lo.Map(rows, func(row cache.AssociationRule, _ int) Rule {
			return Rule{
				Antecedent: row.Antecedent,
				Consequent: row.Consequent,
				Support:    row.Support,
				Confidence: row.Confidence,
				Lift:       row.Lift,
			}
		}), len(rows), nil
	})
}

func (s *RestServer) getMeta(request *restful.Request, response *restful.Response) {
	key := request.PathParameter("key")
	value, err := s.CacheClient.Get(request.Request.Context(), key)
	if errors.Is(err, errors.NotFound) {
		PageNotFound(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Meta{Key: key, Value: value})
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
