// Package server provides the HTTP API for docchat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/metrics"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/search"
	"github.com/hyperjump/docchat/internal/storage"
	"github.com/hyperjump/docchat/internal/upload"
	"github.com/hyperjump/docchat/internal/vector"
	"go.uber.org/zap"
)

// QueueStats reports upload queue counts.
type QueueStats interface {
	Stats(ctx context.Context) (models.QueueStats, error)
}

// DirectoryLister reports the inbox directories being watched.
type DirectoryLister interface {
	Directories() []string
}

// Server is the HTTP server for the docchat API.
type Server struct {
	engine  *search.Engine
	uploads *upload.Service
	storage storage.Storage
	config  *config.Config
	logger  *zap.Logger

	index         vector.VectorIndex
	queue         QueueStats
	watch         DirectoryLister
	metrics       *metrics.Metrics
	embedderModel string
	chatModel     string

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithIndex reports the vector index in /api/v1/status.
func WithIndex(idx vector.VectorIndex) Option {
	return func(s *Server) { s.index = idx }
}

// WithQueue reports queue counts in /api/v1/status.
func WithQueue(q QueueStats) Option {
	return func(s *Server) { s.queue = q }
}

// WithWatcher reports watched inbox directories in /api/v1/status.
func WithWatcher(w DirectoryLister) Option {
	return func(s *Server) { s.watch = w }
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithModels names the embedding and chat models in /api/v1/status.
func WithModels(embedderModel, chatModel string) Option {
	return func(s *Server) {
		s.embedderModel = embedderModel
		s.chatModel = chatModel
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	uploads *upload.Service,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		uploads: uploads,
		storage: storage,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/upload/pdf", s.handleUpload)
	r.Get("/chat", s.handleChatQuery)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/status", s.handleStatus)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops. After Stop it returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()
	s.logger.Info("Starting server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs each request with zap and records it in the metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, elapsed)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
