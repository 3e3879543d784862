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
	"net"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/gongspot/recommender/base/log"
	"github.com/gongspot/recommender/config"
	"github.com/gongspot/recommender/storage/data"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/zap"
)

const (
	apiDocsPath   = "/apidocs.json"
	apiDocsUIPath = "/apidocs/"
	shutdownGrace = 10 * time.Second
)

// Server manages the engine lifecycle and the HTTP endpoints.
type Server struct {
	*RestServer
	listener net.Listener
	handler  http.Handler
}

// NewServer creates a server and registers its routes.
func NewServer(cfg *config.Config, dataClient data.Database) *Server {
	s := &Server{RestServer: NewRestServer(cfg, dataClient)}
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     apiDocsPath,
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle(apiDocsUIPath, v5emb.New("GongSpot Recommendation API", apiDocsPath, apiDocsUIPath))
	container.Handle("/metrics", promhttp.Handler())
	s.handler = container
	return s
}

// Handler returns the HTTP handler of the REST API, API docs and metrics.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve builds the first engine and serves HTTP until ctx is canceled.
// Background refreshes stop when Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return errors.Trace(err)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Refresh(ctx); err != nil {
		log.Logger().Error("failed to build engine, serving an empty engine", zap.Error(err))
	} else {
		log.Logger().Info("engine ready",
			zap.Int("num_users", s.Engine().NumUsers()),
			zap.Int("num_features", s.Engine().NumFeatures()))
	}
	if s.Config.Engine.RefreshPeriod > 0 {
		go s.refreshLoop(ctx, s.Config.Engine.RefreshPeriod)
	}

	httpServer := &http.Server{Handler: s.handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Logger().Error("failed to shutdown http server", zap.Error(err))
		}
	}()
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s", s.listener.Addr())))
	if err := httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	return nil
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen binds the listening socket ahead of Serve.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Trace(err)
	}
	s.listener = listener
	return nil
}

func (s *Server) refreshLoop(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Logger().Error("failed to refresh engine", zap.Error(err))
				continue
			}
			log.Logger().Info("engine refreshed",
				zap.Int("num_users", s.Engine().NumUsers()),
				zap.Time("timestamp", s.Engine().Timestamp()))
		}
	}
}
