// Package api provides the fanquest HTTP server: a JSON API over the
// engagement engine, plus /health and /metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stagelight/fanquest/internal/app/engagement"
	"github.com/stagelight/fanquest/internal/domain"
	"github.com/stagelight/fanquest/internal/health"
)

// ItemSearcher is the catalog surface the item endpoints need.
type ItemSearcher interface {
	Search(query string, limit int) []domain.CollectibleItem
	Items() []domain.CollectibleItem
}

// Config tunes the HTTP layer.
type Config struct {
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second per caller
	RateBurst      int
	AllowedOrigin  string
	EnableMetrics  bool
}

// Server is the fanquest HTTP API server.
type Server struct {
	engine   *engagement.Engine
	items    ItemSearcher
	identity domain.IdentityVerifier
	health   *health.Checker
	limiter  *RateLimiter
	cfg      Config
	log      *logrus.Entry
}

// NewServer creates a server. checker may be nil.
func NewServer(engine *engagement.Engine, items ItemSearcher, identity domain.IdentityVerifier,
	checker *health.Checker, cfg Config, logger *logrus.Logger) *Server {

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "api")
	return &Server{
		engine:   engine,
		items:    items,
		identity: identity,
		health:   checker,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.RateBurst, log),
		cfg:      cfg,
		log:      log,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	if s.cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// public
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Handler)
			r.Get("/leaderboards/{board}", s.handleLeaderboard)
			r.Get("/catalog/items", s.handleCatalogItems)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Use(s.limiter.Handler)

			r.Get("/me", s.handleMe)
			r.Put("/me/profile", s.handleUpdateProfile)
			r.Get("/me/ledger", s.handleLedger)
			r.Get("/me/collection", s.handleCollection)
			r.Get("/badges", s.handleBadges)

			r.Post("/rewards/grant", s.handleGrant)

			r.Get("/quests", s.handleQuests)
			r.Post("/quests/{code}/progress", s.handleProgress)
			r.Post("/quests/{code}/claim", s.handleClaim)

			r.Post("/streams/verify", s.handleVerify)

			r.Get("/leaderboards/{board}/me", s.handleMyRank)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    typ,
		},
	})
}

// cors adds CORS headers for browser clients.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
