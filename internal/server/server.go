package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"grocery/crawler/internal/config"
	"grocery/crawler/internal/crawler"
)

// StatusSource reports the live state of the crawl
type StatusSource interface {
	Stats() crawler.Stats
}

// Server exposes crawl status and metrics over HTTP
type Server struct {
	cfg        config.ServerConfig
	status     StatusSource
	gatherer   prometheus.Gatherer
	router     http.Handler
	httpServer *http.Server
}

func New(cfg config.ServerConfig, status StatusSource, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:      cfg,
		status:   status,
		gatherer: gatherer,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("📡 Status server listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.status.Stats().Recovery

	code := http.StatusOK
	if !health.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.respondWithJSON(w, code, map[string]any{
		"healthy":       health.Healthy,
		"success_rate":  health.SuccessRate,
		"open_breakers": health.OpenBreakers,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.status.Stats())
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("❌ Failed to encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
