// Package server provides the HTTP interface of the applications dashboard: the HTML page,
// the JSON API and the server-sent event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/applications-dashboard/internal/dashboard"
	"github.com/jonathan/applications-dashboard/internal/db"
	"github.com/jonathan/applications-dashboard/internal/parsing"
	"github.com/jonathan/applications-dashboard/internal/rendering"
	"github.com/jonathan/applications-dashboard/internal/server/middleware"
	"github.com/jonathan/applications-dashboard/internal/server/ratelimit"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// History lists stored summary snapshots.
type History interface {
	ListSnapshots(ctx context.Context, limit int) ([]db.Snapshot, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	dashboard   *dashboard.Dashboard
	history     History
	render      rendering.Options
	parse       parsing.Options
	sourcePath  string
	rateLimiter *ratelimit.Limiter
	logger      *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// Config holds server configuration
type Config struct {
	Port      int
	Dashboard *dashboard.Dashboard
	// History is optional; without it /api/history reports an empty list.
	History History
	Render  rendering.Options
	Parse   parsing.Options
	// SourcePath is the local applications file served at /applications.txt. Empty for URL sources.
	SourcePath string
	// AuthUser and AuthPasswordHash enable HTTP basic auth when both are set.
	AuthUser         string
	AuthPasswordHash string
	// RateLimit is nil to disable limiting.
	RateLimit *ratelimit.Config
}

// New creates a new server instance
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.Dashboard == nil {
		return nil, fmt.Errorf("dashboard is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		dashboard:   cfg.Dashboard,
		history:     cfg.History,
		render:      cfg.Render,
		parse:       cfg.Parse,
		sourcePath:  cfg.SourcePath,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:      logger,
		closing:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /applications.txt", s.handleSourceFile)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/check", s.handleCheck)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/applications/delete-last", s.handleDeleteLast)
	mux.HandleFunc("POST /api/applications/clear", s.handleClear)
	mux.HandleFunc("GET /health", s.handleHealth)

	var handler http.Handler = mux
	if cfg.AuthUser != "" && cfg.AuthPasswordHash != "" {
		handler = s.withAuth(middleware.BasicAuth(cfg.AuthUser, cfg.AuthPasswordHash), handler)
	}
	handler = s.withLogging(s.withRateLimit(s.withCORS(handler)))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.signalClosing)

	return s, nil
}

// Handler returns the server's root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Serve serves on an existing listener until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("server starting", zap.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, ends open event streams and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.signalClosing()
	err := s.httpServer.Shutdown(ctx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) signalClosing() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// withAuth protects every route except /health.
func (s *Server) withAuth(auth func(http.Handler) http.Handler, next http.Handler) http.Handler {
	protected := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := middleware.GetUser(r); ok {
			if rec, ok := w.(*statusRecorder); ok {
				rec.user = user
			}
		}
		next.ServeHTTP(w, r)
	}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, clientID, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status and authenticated user for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	user   string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		}
		if rec.user != "" {
			fields = append(fields, zap.String("user", rec.user))
		}
		s.logger.Info("request", fields...)
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// Only RemoteAddr is trusted; forwarded headers are ignored.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID string, info ratelimit.Info) {
	retryAfter := int(info.RetryAfter.Round(time.Second) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	s.logger.Warn("rate limit exceeded",
		zap.String("client", clientID),
		zap.Int("limit", info.Limit),
		zap.Duration("retry_after", info.RetryAfter))

	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     "Rate limit exceeded. Please try again later.",
		"limit":       info.Limit,
		"remaining":   info.Remaining,
		"retry_after": retryAfter,
	})
}

// parseLimit reads a positive integer query parameter, returning def when it is absent.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	}
	return n, nil
}
