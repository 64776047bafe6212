// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package httpserver wires the controller's domain packages into the four
// API routes clients and administrators speak: status, token issuance,
// site registration, and queue matching.
package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/glidein/glidein-controller/internal/apierrors"
	"github.com/glidein/glidein-controller/internal/auth"
	"github.com/glidein/glidein-controller/internal/batchadapter"
	"github.com/glidein/glidein-controller/internal/jobqueue"
	"github.com/glidein/glidein-controller/internal/logging"
	"github.com/glidein/glidein-controller/internal/match"
	"github.com/glidein/glidein-controller/internal/metrics"
	"github.com/glidein/glidein-controller/internal/middleware"
	"github.com/glidein/glidein-controller/internal/registry"
)

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	Registry *registry.Registry
	Cache    *jobqueue.SnapshotCache
	Adapter  batchadapter.Adapter
	Auth     *auth.Provider
	Logger   logging.Logger
	Metrics  metrics.Collector

	router *mux.Router
}

// New builds a Server with its routes and middleware chain wired up.
func New(s *Server) *Server {
	if s.Logger == nil {
		s.Logger = logging.NoOpLogger{}
	}
	if s.Metrics == nil {
		s.Metrics = metrics.NoOpCollector{}
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens", s.handleTokens).Methods(http.MethodPost)
	r.HandleFunc("/api/clients/{client}", s.handleClientUpsert).Methods(http.MethodPut)
	r.HandleFunc("/api/clients/{client}/actions/queue", s.handleClientQueue).Methods(http.MethodPost)

	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler, wrapped with the standard
// middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := middleware.Chain(
		middleware.WithRequestID(),
		middleware.WithRecovery(s.Logger),
		middleware.WithLogging(s.Logger),
		middleware.WithMetrics(s.Metrics),
	)(s.router)
	handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError records err against the logger and metrics collector, then
// writes it to the client as a structured JSON error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := apierrors.As(err)
	if !ok {
		apiErr = &apierrors.Error{Code: apierrors.CodeUpstreamUnavailable, Message: err.Error()}
	}

	logging.LogError(s.Logger, apiErr, "request failed", "method", r.Method, "path", r.URL.Path)
	s.Metrics.RecordError(r.Method, r.URL.Path, apiErr)

	writeJSON(w, apiErr.StatusCode(), map[string]any{
		"error":     string(apiErr.Code),
		"message":   apiErr.Message,
		"dimension": apiErr.Dimension,
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	return s.Auth.Verify(bearerToken(r))
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, roles ...auth.Role) (*auth.Claims, bool) {
	claims, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	for _, role := range roles {
		if claims.Role == role {
			return claims, true
		}
	}
	s.writeError(w, r, apierrors.Forbidden("role %q is not permitted for this operation", claims.Role))
	return nil, false
}
