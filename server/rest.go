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

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/config"
	"github.com/gongspot/recommender/logics"
	"github.com/gongspot/recommender/storage/data"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const healthMessage = "GongSpot Recommendation API is running!"

// RestServer implements a REST-ful API server.
type RestServer struct {
	DataClient data.Database
	Config     *config.Config
	WebService *restful.WebService
	MemoRanker *logics.MemoRanker

	engine       atomic.Pointer[logics.Engine]
	refreshMutex sync.Mutex
}

// NewRestServer creates a REST-ful API server serving an empty engine until the first refresh.
func NewRestServer(cfg *config.Config, dataClient data.Database) *RestServer {
	s := &RestServer{
		DataClient: dataClient,
		Config:     cfg,
		WebService: new(restful.WebService),
		MemoRanker: logics.NewMemoRanker(cfg.OpenAI),
	}
	s.SetEngine(logics.NewEmptyEngine())
	return s
}

// Engine returns the engine snapshot currently being served.
func (s *RestServer) Engine() *logics.Engine {
	if e := s.engine.Load(); e != nil {
		return e
	}
	return logics.NewEmptyEngine()
}

// SetEngine swaps the served engine.
func (s *RestServer) SetEngine(e *logics.Engine) {
	s.engine.Store(e)
	EngineTimestamp.Set(float64(e.Timestamp().Unix()))
}

// Refresh rebuilds the engine from the data store and swaps it in. The
// previous engine keeps being served if the build fails.
func (s *RestServer) Refresh(ctx context.Context) error {
	s.refreshMutex.Lock()
	defer s.refreshMutex.Unlock()
	RefreshTotal.Inc()
	e, err := logics.Build(ctx, s.DataClient,
		logics.WithNumNeighbors(s.Config.Engine.NumNeighbors),
		logics.WithNumJobs(s.Config.Engine.NumJobs))
	if err != nil {
		RefreshFailuresTotal.Inc()
		return errors.Trace(err)
	}
	s.SetEngine(e)
	return nil
}

// LogFilter assigns a request id and logs every request.
func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.NewString()
	}
	resp.Header().Set("X-Request-ID", requestId)
	start := time.Now()
	chain.ProcessFilter(req, resp)
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)))
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(LogFilter)

	ws.Route(ws.GET("/health").To(s.getHealth).
		Doc("Check whether the service is running.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(Message{}))

	/* Recommendation */

	ws.Route(ws.POST("/recommendations").To(s.postRecommendations).
		Doc("Recommend places to a user in the engine roster.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads(RecommendationRequest{}).
		Writes(RecommendationResponse{}))
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommended places for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned places").DataType("integer")).
		Writes([]logics.Recommendation{}))
	ws.Route(ws.GET("/neighbors/{user-id}").To(s.getNeighbors).
		Doc("Get the most similar users of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned users").DataType("integer")).
		Writes([]logics.Neighbor{}))

	/* Engine */

	ws.Route(ws.POST("/refresh").To(s.postRefresh).
		Doc("Rebuild the engine from the data store.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"engine"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(EngineStatus{}))
	ws.Route(ws.GET("/engine").To(s.getEngine).
		Doc("Get the status of the served engine.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"engine"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(EngineStatus{}))

	/* Memos */

	ws.Route(ws.POST("/memos/rank").To(s.postRankMemos).
		Doc("Rank memos by similarity to their average embedding.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"memo"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads(RankMemosRequest{}).
		Writes(RankMemosResponse{}))
}

type Message struct {
	Message string `json:"message"`
}

type RecommendationRequest struct {
	UserId int64 `json:"user_id"`
	N      *int  `json:"n,omitempty"`
}

type RecommendationResponse struct {
	RecommendedPlaces []logics.Recommendation `json:"recommended_places"`
}

type EngineStatus struct {
	NumUsers     int       `json:"num_users"`
	NumFeatures  int       `json:"num_features"`
	NumNeighbors int       `json:"num_neighbors"`
	Timestamp    time.Time `json:"timestamp"`
}

type RankMemosRequest struct {
	Memos []logics.Memo `json:"memos"`
}

type RankMemosResponse struct {
	Scores []logics.MemoScore `json:"scores"`
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

func parseUserId(request *restful.Request) (int64, error) {
	userId, err := strconv.ParseInt(request.PathParameter("user-id"), 10, 64)
	if err != nil {
		return 0, errors.NotValidf("user id %q", request.PathParameter("user-id"))
	}
	return userId, nil
}

func (s *RestServer) getHealth(_ *restful.Request, response *restful.Response) {
	Ok(response, Message{Message: healthMessage})
}

func (s *RestServer) recommend(ctx context.Context, e *logics.Engine, userId int64, n int) ([]logics.Recommendation, error) {
	start := time.Now()
	candidates := e.Recommend(userId, n)
	GetRecommendSeconds.Observe(time.Since(start).Seconds())
	start = time.Now()
	recommendations, err := logics.Hydrate(ctx, s.DataClient, candidates)
	if err != nil {
		return nil, errors.Trace(err)
	}
	HydrateSeconds.Observe(time.Since(start).Seconds())
	return recommendations, nil
}

func (s *RestServer) postRecommendations(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	var req RecommendationRequest
	if err := request.ReadEntity(&req); err != nil {
		BadRequest(response, err)
		return
	}
	n := s.Config.Engine.DefaultN
	if req.N != nil {
		n = *req.N
	}
	ctx := request.Request.Context()
	if _, err := s.DataClient.GetUser(ctx, strconv.FormatInt(req.UserId, 10)); errors.Is(err, data.ErrUserNotExist) {
		PageNotFound(response, errors.New("User not found."))
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	// users created after the last build get an empty list until the next refresh
	recommendations, err := s.recommend(ctx, s.Engine(), req.UserId, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, RecommendationResponse{RecommendedPlaces: recommendations})
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	userId, err := parseUserId(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := ParseInt(request, "n", s.Config.Engine.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	recommendations, err := s.recommend(request.Request.Context(), s.Engine(), userId, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, recommendations)
}

func (s *RestServer) getNeighbors(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	userId, err := parseUserId(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	e := s.Engine()
	n, err := ParseInt(request, "n", e.NumNeighbors())
	if err != nil {
		BadRequest(response, err)
		return
	}
	start := time.Now()
	neighbors := e.Neighbors(userId, n)
	GetNeighborsSeconds.Observe(time.Since(start).Seconds())
	Ok(response, neighbors)
}

func (s *RestServer) engineStatus() EngineStatus {
	e := s.Engine()
	return EngineStatus{
		NumUsers:     e.NumUsers(),
		NumFeatures:  e.NumFeatures(),
		NumNeighbors: e.NumNeighbors(),
		Timestamp:    e.Timestamp(),
	}
}

func (s *RestServer) postRefresh(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	if err := s.Refresh(request.Request.Context()); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, s.engineStatus())
}

func (s *RestServer) getEngine(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	Ok(response, s.engineStatus())
}

func (s *RestServer) postRankMemos(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	var req RankMemosRequest
	if err := request.ReadEntity(&req); err != nil {
		BadRequest(response, err)
		return
	}
	start := time.Now()
	scores, err := s.MemoRanker.Rank(request.Request.Context(), req.Memos)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	RankMemosSeconds.Observe(time.Since(start).Seconds())
	Ok(response, RankMemosResponse{Scores: scores})
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
func Ok(response *restful.Response, content any) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

func (s *RestServer) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.ResponseLogger(response).Error("unauthorized", zap.String("X-API-Key", apikey))
	if err := response.WriteError(http.StatusUnauthorized, errors.Unauthorizedf("api key")); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
	return false
}
