// Package http exposes the dashboard as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"grana/internal/assistant"
	applog "grana/internal/log"
	"grana/internal/recorder"
	"grana/internal/store"
)

type Server struct {
	http.Server
	store      *store.Store
	assistant  *assistant.Service
	recorder   *recorder.Recorder
	logger     *applog.Logger
	categories map[string]struct{}

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// NewServer wires routes and middleware, returning a ready-to-run server.
// categories is the known-categories list; transactions with a category
// outside it are accepted but annotated in the response.
func NewServer(addr string, st *store.Store, asst *assistant.Service, rec *recorder.Recorder, categories []string) *Server {
	mux := http.NewServeMux()

	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c] = struct{}{}
	}

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:       st,
		assistant:   asst,
		recorder:    rec,
		logger:      applog.New(applog.Config{Component: applog.ComponentHTTP}),
		categories:  known,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/onboard", s.secured(s.handleOnboard))
	mux.HandleFunc("GET /api/summary", s.secured(s.handleSummary))

	mux.HandleFunc("POST /api/transactions", s.secured(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.secured(s.handleListTransactions))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.secured(s.handleDeleteTransaction))

	mux.HandleFunc("POST /api/tasks", s.secured(s.handleCreateTask))
	mux.HandleFunc("GET /api/tasks", s.secured(s.handleListTasks))
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.secured(s.handleCompleteTask))

	mux.HandleFunc("POST /api/goals", s.secured(s.handleCreateGoal))
	mux.HandleFunc("GET /api/goals", s.secured(s.handleListGoals))
	mux.HandleFunc("POST /api/goals/{id}/progress", s.secured(s.handleGoalProgress))

	mux.HandleFunc("PUT /api/equity", s.secured(s.handleSetEquity))
	mux.HandleFunc("PUT /api/limit", s.secured(s.handleSetLimit))

	mux.HandleFunc("POST /api/assistant/message", s.secured(s.handleAssistantMessage))
	mux.HandleFunc("POST /api/assistant/recordings", s.secured(s.handleRecordingStart))
	mux.HandleFunc("POST /api/assistant/recordings/{id}/chunks", s.secured(s.handleRecordingChunk))
	mux.HandleFunc("POST /api/assistant/recordings/{id}/stop", s.secured(s.handleRecordingStop))

	return s
}

// secured adds security headers, rate limiting, request IDs and request
// logging.
func (s *Server) secured(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Mutations are rate limited; reads are not.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "limite de requisições excedido, tente novamente em instantes")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the rate limiter cleanup goroutine and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
