// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the auth service over HTTP: form-encoded requests,
// JSON responses and a session_id cookie.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/pkg/errutil"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session_id"

// Authenticator is the subset of *auth.Service the handlers call.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
	ValidLogin(ctx context.Context, email, password string) (bool, error)
	CreateSession(ctx context.Context, email string) (string, error)
	ResolveSession(ctx context.Context, token string) (*auth.User, error)
	DestroySession(ctx context.Context, userID ulid.ULID) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, resetToken, newPassword string) error
}

// RequestRecorder counts served requests.
type RequestRecorder interface {
	RecordRequest(route, status string)
}

// Options configures the router.
type Options struct {
	Logger       *slog.Logger
	Requests     RequestRecorder
	CookieSecure bool
	Timeout      time.Duration
}

type handlers struct {
	auth         Authenticator
	logger       *slog.Logger
	cookieSecure bool
}

// NewRouter builds the HTTP handler for the auth API.
func NewRouter(authn Authenticator, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	h := &handlers{auth: authn, logger: opts.Logger, cookieSecure: opts.CookieSecure}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Requests != nil {
		r.Use(countRequests(opts.Requests))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(middleware.StripSlashes)

	r.Get("/", h.wrap(h.index))
	r.Post("/users", h.wrap(h.register))
	r.Post("/sessions", h.wrap(h.login))
	r.Delete("/sessions", h.wrap(h.logout))
	r.Get("/profile", h.wrap(h.profile))
	r.Post("/reset_password", h.wrap(h.requestReset))
	r.Put("/reset_password", h.wrap(h.updatePassword))

	return r
}

// countRequests records each request under its route pattern, so ids in
// paths never become label values.
func countRequests(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			rec.RecordRequest(route, strconv.Itoa(status))
		})
	}
}

type appHandler func(w http.ResponseWriter, r *http.Request) error

// wrap turns a returned error into a JSON response. httpErrors carry their
// own status; anything else is logged and reported as 500.
func (h *handlers) wrap(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		var httpErr *httpError
		if errors.As(err, &httpErr) {
			respondJSON(w, httpErr.status, messageBody{Message: httpErr.message})
			return
		}

		errutil.LogError(r.Context(), h.logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path,
		)
		respondJSON(w, http.StatusInternalServerError, messageBody{Message: "internal error"})
	}
}
