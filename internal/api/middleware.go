package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stagelight/fanquest/internal/infra/metrics"
)

type ctxKey int

const userKey ctxKey = iota

// UserID returns the authenticated caller, or "" on public routes.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// authenticate resolves the caller through the identity verifier.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.identity == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication is not configured")
			return
		}
		userID, err := s.identity.Identify(r)
		if err != nil {
			s.log.WithField("path", r.URL.Path).WithError(err).Debug("authentication failed")
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

// requestLogger logs each request and records it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		entry := s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"took":       time.Since(start).Round(time.Microsecond),
			"request_id": middleware.GetReqID(r.Context()),
		})
		if status >= 500 {
			entry.Warn("request failed")
		} else {
			entry.Debug("request")
		}
	})
}

// ─── Rate Limiting ──────────────────────────────────────────────────────────

// RateLimiter keeps one token bucket per caller: the user id when
// authenticated, the client address otherwise. Buckets live in an LRU so
// idle callers are forgotten.
type RateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	log      *logrus.Entry
}

// NewRateLimiter creates a limiter. A non-positive rate disables it.
func NewRateLimiter(perSecond float64, burst int, log *logrus.Entry) *RateLimiter {
	if burst <= 0 {
		burst = int(perSecond) * 2
		if burst < 1 {
			burst = 1
		}
	}
	cache, _ := lru.New[string, *rate.Limiter](10_000)
	return &RateLimiter{limiters: cache, rate: rate.Limit(perSecond), burst: burst, log: log}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	if prev, ok, _ := rl.limiters.PeekOrAdd(key, l); ok {
		return prev
	}
	return l
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rate <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := UserID(r.Context())
		if key == "" {
			key = clientAddr(r)
		}
		if !rl.getLimiter(key).Allow() {
			metrics.RateLimited.Inc()
			rl.log.WithFields(logrus.Fields{"key": key, "path": r.URL.Path}).Info("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
