// Package server exposes the engine's library API over HTTP JSON plus a
// websocket event stream. The dashboard, scheduler daemon, and any RPC
// collaborator all talk to this surface.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sitewarden/sitewarden/internal/app"
)

// Server manages the HTTP listener and routes.
type Server struct {
	app    *app.App
	hub    *wsHub
	router *http.ServeMux
	server *http.Server
}

// New creates the HTTP server over the application.
func New(application *app.App) *Server {
	s := &Server{
		app: application,
		hub: newWSHub(application.Logger),
	}
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Crawl and test-run requests outlive any fixed write budget
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start subscribes the websocket hub to engine events and serves until
// shutdown.
func (s *Server) Start() error {
	unsubscribe := s.app.Events.Subscribe(s.hub.broadcast)
	defer unsubscribe()

	s.app.Logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}

// withMiddleware wraps the router with request logging.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("duration", time.Since(start).String()).
			Msg("Request handled")
	})
}
