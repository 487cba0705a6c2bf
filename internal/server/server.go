// Package server exposes the triage pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/pipeline"
	"github.com/ppiankov/triage/internal/worker"
)

// Service is the part of the pipeline the HTTP layer needs
type Service interface {
	Handle(ctx context.Context, sessionID string, req pipeline.Request) (pipeline.Response, error)
	Conversation(sessionID string) (model.Conversation, bool)
	Forget(sessionID string) error
}

// Server serves the chat API
type Server struct {
	svc     Service
	cfg     model.ServerConfig
	limiter *worker.Limiter
	logger  *zap.Logger
	router  chi.Router
}

// New creates a server. limiter may be nil to disable rate limiting.
func New(svc Service, cfg model.ServerConfig, limiter *worker.Limiter, logger *zap.Logger) *Server {
	s := &Server{
		svc:     svc,
		cfg:     cfg,
		limiter: limiter,
		logger:  logging.OrNop(logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.cfg.AllowOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Get("/sessions/{id}", s.handleTranscript)
	r.Delete("/sessions/{id}", s.handleDelete)
	return r
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
