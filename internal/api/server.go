package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkrall/examscan/internal/config"
	"github.com/mkrall/examscan/internal/roster"
	"github.com/mkrall/examscan/internal/scan"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	store      *roster.Store
	controller *scan.Controller
	wsHub      *WebSocketHub
	router     chi.Router
	server     *http.Server
}

// NewServer creates a new API server and wires scan progress into the
// websocket hub.
func NewServer(cfg *config.Config, store *roster.Store, controller *scan.Controller) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		controller: controller,
		wsHub:      NewWebSocketHub(),
	}

	controller.OnProgress = s.wsHub.Broadcast

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(CORSMiddleware())

	r.Get("/api/v1/health", s.handleHealth)

	// Roster
	r.Get("/api/v1/students", s.handleListStudents)
	r.Post("/api/v1/students", s.handleRegisterStudent)
	r.Get("/api/v1/students/{id}", s.handleGetStudent)
	r.Post("/api/v1/students/{id}/status", s.handleSetStatus)

	// Scanning
	r.Post("/api/v1/students/{id}/scan", s.handleScan)
	r.Get("/api/v1/students/{id}/document", s.handleGetDocument)

	// WebSocket
	r.Get("/api/v1/ws", s.handleWebSocket)

	s.router = r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.wsHub.Run()

	slog.Info("API server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.server.Shutdown(ctx)
}
