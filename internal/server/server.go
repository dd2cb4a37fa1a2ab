// Package server exposes the analyst gateway over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/snowbridge-labs/analyst-gateway/internal/auth"
)

// Server hosts the question-answering API.
type Server struct {
	Router *chi.Mux
	logger *slog.Logger
	http   *http.Server
}

// New builds the router and middleware chain. authenticator may be nil to
// run without caller authentication.
func New(port int, timeout time.Duration, logger *slog.Logger, authenticator *auth.Authenticator, handler *Handler) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "analyst-gateway")
	})

	r.Get("/healthz", handler.HandleHealth)

	r.Group(func(r chi.Router) {
		if authenticator != nil {
			r.Use(AuthMiddleware(authenticator))
		}
		r.Post("/v1/ask", handler.HandleAsk)
		r.Get("/v1/interactions", handler.HandleInteractions)
	})

	return &Server{
		Router: r,
		logger: logger,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: timeout + 5*time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
