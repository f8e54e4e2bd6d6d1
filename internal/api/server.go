package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/renewhq/renewd/internal/config"
	"github.com/renewhq/renewd/internal/orders"
	"github.com/renewhq/renewd/internal/retry"
	"github.com/renewhq/renewd/internal/store"
)

type Server struct {
	cfg     config.ServerConfig
	store   store.Store
	orders  orders.Service
	manager *retry.Manager
	router  *chi.Mux
	log     zerolog.Logger
	http    *http.Server
}

func NewServer(cfg config.ServerConfig, st store.Store, ord orders.Service, manager *retry.Manager, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		orders:  ord,
		manager: manager,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	failureHandler := NewFailureHandler(s.manager)
	retryHandler := NewRetryHandler(s.store, s.manager)
	orderHandler := NewOrderHandler(s.orders)
	statsHandler := NewStatsHandler(s.store)

	// Health and metrics — no auth
	r.Get("/health", statsHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AdminToken))

		// Entry point: the platform reports a failed renewal payment here.
		r.Post("/payment-failures", failureHandler.Report)

		// Orders (seed/inspect the standalone order service)
		r.Post("/orders", orderHandler.Create)
		r.Get("/orders/{id}", orderHandler.Get)

		// Retry read surface
		r.Get("/retries/{id}", retryHandler.Get)
		r.Get("/orders/{id}/retries", retryHandler.ListForOrder)
		r.Get("/orders/{id}/retries/count", retryHandler.CountForOrder)

		// Stats
		r.Get("/stats", statsHandler.Stats)
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
