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

package mock

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/emicklei/go-restful/v3"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/atomic"
)

// OpenAIServer serves the embeddings endpoint of the OpenAI API. Each input
// text gets the vector registered for it, or the default vector.
type OpenAIServer struct {
	listener   net.Listener
	httpServer *http.Server
	authToken  string
	ready      chan struct{}
	requests   atomic.Int64

	mu                sync.RWMutex
	defaultEmbeddings []float32
	embeddings        map[string][]float32
}

func NewOpenAIServer() *OpenAIServer {
	s := &OpenAIServer{embeddings: make(map[string][]float32)}
	ws := new(restful.WebService)
	ws.Path("/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	ws.Route(ws.POST("embeddings").
		Reads(openai.EmbeddingRequest{}).
		Writes(openai.EmbeddingResponse{}).
		To(s.createEmbeddings))
	container := restful.NewContainer()
	container.Add(ws)
	s.httpServer = &http.Server{Handler: container}
	s.authToken = "ollama"
	s.ready = make(chan struct{})
	return s
}

func (s *OpenAIServer) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	close(s.ready)
	return s.httpServer.Serve(s.listener)
}

func (s *OpenAIServer) BaseURL() string {
	return fmt.Sprintf("http://%s/v1", s.listener.Addr().String())
}

func (s *OpenAIServer) AuthToken() string {
	return s.authToken
}

func (s *OpenAIServer) Ready() {
	<-s.ready
}

func (s *OpenAIServer) Close() error {
	return s.httpServer.Close()
}

// Embeddings sets the default vector.
func (s *OpenAIServer) Embeddings(embeddings []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultEmbeddings = embeddings
}

// Embedding sets the vector of one text.
func (s *OpenAIServer) Embedding(text string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[text] = embedding
}

// Requests returns the number of embedding requests served.
func (s *OpenAIServer) Requests() int64 {
	return s.requests.Load()
}

func (s *OpenAIServer) createEmbeddings(req *restful.Request, resp *restful.Response) {
	if req.HeaderParameter("Authorization") != "Bearer "+s.authToken {
		_ = resp.WriteErrorString(http.StatusUnauthorized, "invalid auth token")
		return
	}
	var r openai.EmbeddingRequest
	err := req.ReadEntity(&r)
	if err != nil {
		_ = resp.WriteError(http.StatusBadRequest, err)
		return
	}
	var texts []string
	switch input := r.Input.(type) {
	case string:
		texts = []string{input}
	case []any:
		for _, v := range input {
			text, ok := v.(string)
			if !ok {
				_ = resp.WriteErrorString(http.StatusBadRequest, "input must be strings")
				return
			}
			texts = append(texts, text)
		}
	default:
		_ = resp.WriteErrorString(http.StatusBadRequest, "input must be strings")
		return
	}
	s.requests.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := make([]openai.Embedding, len(texts))
	for i, text := range texts {
		embedding, ok := s.embeddings[text]
		if !ok {
			embedding = s.defaultEmbeddings
		}
		data[i] = openai.Embedding{
			Object:    "embedding",
			Embedding: embedding,
			Index:     i,
		}
	}
	_ = resp.WriteEntity(openai.EmbeddingResponse{
		Object: "list",
		Data:   data,
		Model:  r.Model,
	})
}
