// Package http exposes the ledger over a JSON API. Handlers stay thin:
// parameter parsing and response shaping here, all mutation sequencing
// in the ledger service.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/binder"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/normalizer"
)

type Server struct {
	http.Server
	svc    *ledger.Service
	norm   *normalizer.Normalizer
	binder *binder.Binder

	rateLimiter *rateLimiter

	// Month snapshots served from cache until a mutation invalidates
	// them or the TTL expires.
	monthCache *cache.LRUCache[core.LedgerRecord]
	caches     *cache.Manager

	// normalizeYears decides which calendar years the payment-method
	// migration scans; injected so the handler does not read config.
	normalizeYears func() []int

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *ledger.Service, norm *normalizer.Normalizer, b *binder.Binder, normalizeYears func() []int) *Server {
	s := &Server{
		svc:            svc,
		norm:           norm,
		binder:         b,
		rateLimiter:    newRateLimiter(),
		monthCache:     cache.NewLRUCache[core.LedgerRecord](100, 5*time.Minute),
		caches:         cache.NewManager(),
		normalizeYears: normalizeYears,
	}
	s.caches.Register(s.monthCache)
	s.caches.StartCleanup(10 * time.Minute)

	r := chi.NewRouter()
	r.Use(s.withSecurityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/transactions", s.handleCreateTransaction)

		r.Route("/months/{year}/{month}", func(r chi.Router) {
			r.Get("/", s.handleGetMonth)
			r.Get("/events", s.handleMonthEvents)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Put("/balances/{method}", s.handleUpdateBalance)
			r.Put("/categories/{category}", s.handleUpdateCategory)
			r.Put("/totals/{kind}", s.handleUpdateTotal)
			r.Put("/networth/{entry}", s.handleUpdateNetWorth)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/migrate-payment-methods", s.handleMigratePaymentMethods)
			r.Post("/setup-months", s.handleSetupMonths)
		})
	})

	s.Server.Addr = addr
	s.Server.Handler = r
	s.Server.ReadHeaderTimeout = 10 * time.Second
	return s
}

// Shutdown stops the HTTP listener and the background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to every response.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutations only; reads and event streams are free.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	})
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
// Flush is forwarded so event streams keep working behind the wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if fl, ok := rw.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) cacheKey(key core.MonthKey) string {
	return strconv.Itoa(key.Year) + "-" + strconv.Itoa(key.Month)
}

func (s *Server) invalidateMonth(key core.MonthKey) {
	s.monthCache.Delete(s.cacheKey(key))
}
