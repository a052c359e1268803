// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes the HTTP/REST surface consumed by CI and the UI.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/codequal/pkg/analysis"
	"github.com/kraklabs/codequal/pkg/gate"
	"github.com/kraklabs/codequal/pkg/scheduler"
	"github.com/kraklabs/codequal/pkg/search"
	"github.com/kraklabs/codequal/pkg/storage"
)

// Deps bundles the collaborators the HTTP surface dispatches to.
type Deps struct {
	Store     storage.Store
	Scheduler *scheduler.Scheduler
	Searcher  *search.Searcher
	CallGraph *analysis.CallGraphBuilder
	Gate      *gate.Engine
	Webhook   *gate.Webhook

	// UploadDir receives uploaded archives. Empty selects os.TempDir.
	UploadDir string
}

// Server is the HTTP front of the analysis platform.
type Server struct {
	deps   Deps
	router chi.Router
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the router and an http.Server bound to addr.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("api.server.start", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logging)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/repos", func(r chi.Router) {
		r.Post("/submit", s.handleSubmit)
		r.Get("/", s.handleListRepos)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRepo)
			r.Delete("/", s.handleDeleteRepo)
			r.Get("/files", s.handleListFiles)
			r.Get("/files/*", s.handleFileContent)
			r.Get("/symbols", s.handleListSymbols)
			r.Get("/call-graph", s.handleCallGraph)
			r.Get("/dependencies", s.handleDependencies)
			r.Get("/dead-code", s.handleDeadCode)
			r.Get("/circular-deps", s.handleCircularDeps)
		})
	})

	r.Post("/search/semantic", s.handleSemanticSearch)

	r.Route("/quality-gate/{repo}", func(r chi.Router) {
		r.Get("/", s.handleGetGateConfig)
		r.Put("/", s.handlePutGateConfig)
		r.Post("/check", s.handleGateCheck)
	})

	r.Post("/webhook/ci", s.handleWebhook)
	r.Get("/runs/{repo}", s.handleListRuns)
	r.Get("/report/{run}", s.handleReport)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logging is the slog request middleware; one line per request with
// status and latency.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		apiMetrics.init()
		apiMetrics.observe(r.Method, r.URL.Path, ww.Status(), time.Since(start))

		s.logger.Info("api.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
