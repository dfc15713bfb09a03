// Package api serves the soil-risk HTTP surface: soil and risk checks,
// location page data, lead intake, the symptom quiz and admin ingestion.
package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps an http.Server with the timeouts used in production.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Admin ingestion holds the connection for the whole batch.
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	zap.L().Info("api: server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
