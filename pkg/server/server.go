package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/Tsahi-Elkayam/sphinx/pkg/metrics"
	"github.com/Tsahi-Elkayam/sphinx/pkg/service"
)

// ShutdownTimeout bounds graceful shutdown once the context is cancelled
const ShutdownTimeout = 30 * time.Second

// Server exposes the service over HTTP
type Server struct {
	svc      *service.Service
	gatherer prometheus.Gatherer
	cfg      config.ServerConfig
	router   *mux.Router
	logger   *logrus.Logger
}

// New creates a server. gatherer backs the /metrics endpoint.
func New(svc *service.Service, cfg config.ServerConfig, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		svc:      svc,
		gatherer: gatherer,
		cfg:      cfg,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/opportunities", s.handleOpportunities).Methods(http.MethodGet)
	api.HandleFunc("/opportunities/{id}", s.handleOpportunity).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/workspaces", s.handleListWorkspaces).Methods(http.MethodGet)
	api.HandleFunc("/workspaces", s.handleAddWorkspace).Methods(http.MethodPost)
	api.HandleFunc("/plan", s.handlePlan).Methods(http.MethodPost)
	api.HandleFunc("/apply", s.handleApply).Methods(http.MethodPost)
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)

	router.Use(s.loggingMiddleware)
	return router
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Sphinx API listening on %s", s.cfg.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(route, r.Method, rec.status, elapsed)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": elapsed.String(),
		}).Debug("Handled request")
	})
}
