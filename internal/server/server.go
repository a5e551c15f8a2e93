package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shuren-app/shuren/internal/ratelimit"
)

// Server is the Shuren HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Billing, Relay, Limiter.
type ServerConfig struct {
	// Required dependencies.
	Store    Store
	Verifier TokenVerifier
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Billing BillingService
	Relay   ChatRelay
	Limiter ratelimit.Limiter

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:    cfg.Store,
		Verifier: cfg.Verifier,
		Billing:  cfg.Billing,
		Relay:    cfg.Relay,
		Logger:   cfg.Logger,
		Version:  cfg.Version,
	})

	// Write endpoints are limited per anonymous token when the client sends
	// one, otherwise per source IP. Chat is always per IP since a streaming
	// connection is expensive regardless of identity.
	writeRL := ratelimit.Middleware(cfg.Limiter, anonymousKeyFunc)
	chatRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc)

	mux := http.NewServeMux()

	// Session ledger.
	mux.Handle("POST /api/sessions", writeRL(http.HandlerFunc(h.HandleRecordSession)))
	mux.HandleFunc("GET /api/sessions/month", h.HandleSessionsMonth)
	mux.HandleFunc("GET /api/sessions/totals", h.HandleSessionsTotals)
	mux.Handle("POST /api/sessions/link", writeRL(http.HandlerFunc(h.HandleLinkSessions)))

	// Profile (auth required inside the handlers).
	mux.HandleFunc("GET /api/profile", h.HandleGetProfile)
	mux.Handle("POST /api/profile", writeRL(http.HandlerFunc(h.HandleUpdateProfile)))

	// Billing (webhook is signature-authenticated, never rate limited).
	mux.Handle("POST /api/subscription/checkout", writeRL(http.HandlerFunc(h.HandleCheckout)))
	mux.HandleFunc("POST /api/stripe/webhook", h.HandleStripeWebhook)

	// Chat relay (long-lived SSE response).
	mux.Handle("POST /api/chat", chatRL(http.HandlerFunc(h.HandleChat)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → body limit → handler.
	var handler http.Handler = mux
	handler = bodyLimitMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// anonymousKeyFunc keys rate limits by the client's anonymous token when
// present, falling back to the source IP.
func anonymousKeyFunc(r *http.Request) string {
	if v := r.Header.Get("X-Anonymous-Id"); v != "" {
		return "anon:" + v
	}
	return ratelimit.IPKeyFunc(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
