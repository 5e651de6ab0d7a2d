// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

// Package httpapi exposes the account service over JSON/HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/roito2356/giiku-23/internal/auth"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "giiku_session"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// RequestObserver records finished requests; observability.Metrics
// implements it.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithObserver records request metrics.
func WithObserver(o RequestObserver) Option {
	return func(h *Handler) { h.observer = o }
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(h *Handler) { h.secureCookie = secure }
}

// WithRequestTimeout bounds request handling time. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// Handler serves the account API.
type Handler struct {
	svc          *auth.Service
	logger       *slog.Logger
	observer     RequestObserver
	secureCookie bool
	timeout      time.Duration
}

// NewHandler creates a Handler for svc.
func NewHandler(svc *auth.Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, oops.Errorf("account service is required")
	}
	h := &Handler{
		svc:     svc,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes returns the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		h.logRequests,
		middleware.Recoverer,
	)
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}

	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Get("/me", h.me)
	r.Post("/me/completions", h.recordCompletion)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getUser)
			r.Patch("/", h.updateUser)
			r.Delete("/", h.deleteUser)
			r.Get("/completions", h.listCompletions)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
	})
	return r
}

// logRequests logs each request and feeds the observer with the matched
// route pattern, never the raw path.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)

		if h.observer != nil {
			h.observer.ObserveRequest(r.Method, route, status, elapsed)
		}
		h.logger.DebugContext(r.Context(), "request served",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}
