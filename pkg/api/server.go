// Package api exposes the HTTP surface: the query endpoint, SSE and
// WebSocket progress streaming, the agent listing, and health.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/amtlich/amtlich/pkg/agents"
	"github.com/amtlich/amtlich/pkg/datastore"
	"github.com/amtlich/amtlich/pkg/service"
)

// BackendProber reports retrieval backend availability for the agent
// listing. Satisfied by *retrieval.Engine.
type BackendProber interface {
	BackendsAvailable() bool
}

// Server is the HTTP server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	svc         *service.QueryService
	registry    *agents.Registry
	facade      *datastore.Facade
	engine      BackendProber
	connManager *ConnectionManager
}

// NewServer wires routes and middleware.
func NewServer(svc *service.QueryService, registry *agents.Registry, facade *datastore.Facade, engine BackendProber) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		svc:         svc,
		registry:    registry,
		facade:      facade,
		engine:      engine,
		connManager: NewConnectionManager(svc),
	}

	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)

	v1 := e.Group("/api/v1")
	v1.POST("/query", s.queryHandler)
	v1.GET("/stream/:tree_id", s.streamHandler)
	v1.GET("/agents", s.agentsHandler)

	return s
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains HTTP connections and closes WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.connManager.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
