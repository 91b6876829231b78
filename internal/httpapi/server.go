// Package httpapi is the read-mostly HTTP surface: search, player and club
// detail, the market view, event ingest, watchlists and the admin write
// endpoints.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/cache"
	"github.com/transferlens/transferlens/internal/config"
	"github.com/transferlens/transferlens/internal/persistence"
	"github.com/transferlens/transferlens/internal/whatchanged"
)

// Server owns the router and the HTTP listener.
type Server struct {
	repos    persistence.Repositories
	health   persistence.Health
	cache    *cache.Cache
	detector *whatchanged.Detector
	hub      *Hub
	cfg      config.ServerConfig
	srv      *http.Server
}

// New wires the server. The cache may be disabled (empty Redis addr).
func New(repos persistence.Repositories, health persistence.Health, store *cache.Cache, cfg config.ServerConfig, limits config.RateLimitConfig) *Server {
	s := &Server{
		repos:    repos,
		health:   health,
		cache:    store,
		detector: whatchanged.NewDetector(repos.Signals),
		hub:      NewHub(),
		cfg:      cfg,
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(timeoutMiddleware(cfg.RequestTimeout))
	router.Use(newRateLimiter(limits.RequestsPerMinute, limits.Burst).middleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/live", s.handleLive).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	router.HandleFunc("/players/{id}", s.handlePlayerDetail).Methods(http.MethodGet)
	router.HandleFunc("/players/{id}/signals", s.handlePlayerSignals).Methods(http.MethodGet)
	router.HandleFunc("/players/{id}/predictions", s.handlePlayerPredictions).Methods(http.MethodGet)
	router.HandleFunc("/players/{id}/transfers", s.handlePlayerTransfers).Methods(http.MethodGet)
	router.HandleFunc("/clubs/{id}", s.handleClubDetail).Methods(http.MethodGet)
	router.HandleFunc("/market/latest", s.handleMarketLatest).Methods(http.MethodGet)
	router.HandleFunc("/market/movers", s.handleMarketMovers).Methods(http.MethodGet)
	router.HandleFunc("/ws/market", s.handleMarketFeed).Methods(http.MethodGet)

	router.HandleFunc("/events/user", s.handleUserEvent).Methods(http.MethodPost)
	router.HandleFunc("/watchlist", s.handleWatchlistAdd).Methods(http.MethodPost)
	router.HandleFunc("/watchlist", s.handleWatchlistRemove).Methods(http.MethodDelete)
	router.HandleFunc("/watchlist", s.handleWatchlistList).Methods(http.MethodGet)

	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(adminMiddleware(cfg.AdminAPIKey))
	admin.HandleFunc("/transfer_events", s.handleAdminTransferEvent).Methods(http.MethodPost)
	admin.HandleFunc("/signal_events", s.handleAdminSignalEvent).Methods(http.MethodPost)
	admin.HandleFunc("/rebuild/materialized", s.handleAdminRebuildMaterialized).Methods(http.MethodPost)
	admin.HandleFunc("/refresh_cache", s.handleAdminRefreshCache).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub exposes the websocket broadcast hub so in-process scoring can publish.
func (s *Server) Hub() *Hub { return s.hub }

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until the context is cancelled, then drains with the
// configured shutdown grace.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	log.Info().Msg("HTTP server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unready", "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
