// Package api serves a read-only JSON view of the hosted entities. Mutations
// only travel over the authenticated command transport.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"CredTree/internal/directory"
	"CredTree/internal/logger"
	"CredTree/internal/types"
)

const (
	// maxBodySize bounds POST bodies.
	maxBodySize = 1 << 20
)

// Backend is the engine the API reads from.
type Backend interface {
	Directory() *directory.Directory
	Sequence() uint64
	Verify(target, subject types.Identity, claimed []types.Digest, children []types.Identity) (bool, error)
}

// ConnCounter reports open transport connections.
type ConnCounter interface {
	Connections() int
}

// Config holds the optional parts of the API.
type Config struct {
	Metrics     http.Handler // Metrics serves /metrics when set
	Connections ConnCounter  // Connections feeds /status when set
	Node        types.Identity
}

// Server is the HTTP API server.
type Server struct {
	addr    string
	backend Backend
	cfg     Config
	server  *http.Server
}

// New creates an API server.
func New(addr string, backend Backend, cfg Config) *Server {
	return &Server{addr: addr, backend: backend, cfg: cfg}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /entities", s.handleEntities)
	mux.HandleFunc("GET /entities/{id}", s.handleEntity)
	mux.HandleFunc("GET /entities/{id}/credentials/{digest}", s.handleCredential)
	mux.HandleFunc("GET /entities/{id}/subjects/{subject}", s.handleSubject)
	mux.HandleFunc("GET /entities/{id}/subjects/{subject}/proof", s.handleProof)
	mux.HandleFunc("POST /entities/{id}/verify", s.handleVerify)
	mux.HandleFunc("GET /entities/{id}/students", s.handleStudents)
	mux.HandleFunc("GET /entities/{id}/semesters/{semester}", s.handleSemester)

	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"sequence": s.backend.Sequence(),
		"entities": s.backend.Directory().Len(),
	}

	if !s.cfg.Node.IsZero() {
		status["node"] = s.cfg.Node.String()
	}

	if s.cfg.Connections != nil {
		status["connections"] = s.cfg.Connections.Connections()
	}

	writeJSON(w, http.StatusOK, status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
