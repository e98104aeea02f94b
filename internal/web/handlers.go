// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package web serves the browser-facing authentication flow: registration,
// login, logout and the session-gated dashboard.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Messages surfaced to the browser. Account-probing outcomes collapse into
// one generic credential message.
const (
	msgRegistered        = "Registration successful! Please login."
	msgDuplicate         = "Username or email already exists!"
	msgFieldsRequired    = "All fields are required!"
	msgLoggedIn          = "Login successful!"
	msgInvalidCredential = "Invalid username or password!"
	msgLoggedOut         = "You have been logged out."
	msgLoginRequired     = "Please login to access dashboard."
	msgStoreDown         = "Database connection failed. Please try again later."
	msgInternal          = "An error occurred. Please try again."
)

// AuthService is the slice of the auth service the handlers need.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*auth.User, error)
	Login(ctx context.Context, username, password string) (*auth.Session, string, error)
	Logout(ctx context.Context, token string) error
	CurrentSession(ctx context.Context, token string) (*auth.Session, error)
	Profile(ctx context.Context, userID int64) (*auth.Profile, error)
}

var _ AuthService = (*auth.Service)(nil)

// Handlers carries the dependencies of the web routes.
type Handlers struct {
	auth          AuthService
	templates     *templates
	flash         *flashCodec
	logger        *slog.Logger
	metrics       *observability.Metrics
	secureCookies bool
}

// HandlerOption adjusts optional handler dependencies.
type HandlerOption func(*Handlers)

// WithLogger sets the logger used by the handlers.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics records auth outcomes and request counts on the given metrics.
func WithMetrics(m *observability.Metrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithSecureCookies marks issued cookies Secure. Enable behind TLS.
func WithSecureCookies(secure bool) HandlerOption {
	return func(h *Handlers) {
		h.secureCookies = secure
	}
}

// NewHandlers creates the web handlers. The secret signs the flash cookie
// and must not be empty.
func NewHandlers(svc AuthService, secret []byte, opts ...HandlerOption) (*Handlers, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("auth service is required")
	}
	if len(secret) == 0 {
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("cookie secret is required")
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	h := &Handlers{
		auth:      svc,
		templates: tmpl,
		flash:     newFlashCodec(secret),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes builds the router for the full web surface.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.countRequests)

	r.Get("/", h.handleHome)
	r.Get("/register", h.handleRegisterForm)
	r.Post("/register", h.handleRegisterSubmit)
	r.Get("/login", h.handleLoginForm)
	r.Post("/login", h.handleLoginSubmit)
	r.Post("/logout", h.handleLogout)
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/health", h.handleHealth)

	return r
}

// countRequests records one observation per request, labelled by the chi
// route pattern rather than the raw path so labels stay low-cardinality.
func (h *Handlers) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.HTTPRequestsTotal.
			WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

// currentSession resolves the request's session cookie. Returns nil for
// anonymous requests, expired sessions and store faults alike; the caller
// only distinguishes logged-in from not.
func (h *Handlers) currentSession(r *http.Request) *auth.Session {
	token := sessionToken(r)
	if token == "" {
		return nil
	}
	sess, err := h.auth.CurrentSession(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			errutil.LogError(h.logger, "session lookup failed", err)
		}
		return nil
	}
	return sess
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	h.render(w, http.StatusOK, "home.html", pageData{
		Username: sess.Username,
		Flashes:  h.flash.takeFlashes(w, r),
	})
}

func (h *Handlers) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "register.html", pageData{
		Flashes: h.flash.takeFlashes(w, r),
	})
}

func (h *Handlers) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	form := formData{Username: username, Email: email}

	if username == "" || email == "" || password == "" {
		h.recordRegistration("invalid")
		h.renderWithFlash(w, r, "register.html", pageData{Form: form}, FlashDanger, msgFieldsRequired)
		return
	}

	_, err := h.auth.Register(r.Context(), username, email, password)
	switch {
	case err == nil:
		h.recordRegistration("success")
		h.flash.addFlash(w, r, FlashSuccess, msgRegistered)
		http.Redirect(w, r, "/login", http.StatusSeeOther)

	case errors.Is(err, auth.ErrDuplicate):
		h.recordRegistration("duplicate")
		h.renderWithFlash(w, r, "register.html", pageData{Form: form}, FlashDanger, msgDuplicate)

	case isValidationError(err):
		h.recordRegistration("invalid")
		h.renderWithFlash(w, r, "register.html", pageData{Form: form}, FlashDanger, err.Error())

	case errors.Is(err, store.ErrUnavailable):
		h.recordRegistration("error")
		errutil.LogError(h.logger, "registration failed", err)
		h.renderWithFlash(w, r, "register.html", pageData{Form: form}, FlashDanger, msgStoreDown)

	default:
		h.recordRegistration("error")
		errutil.LogError(h.logger, "registration failed", err)
		h.renderWithFlash(w, r, "register.html", pageData{Form: form}, FlashDanger, msgInternal)
	}
}

func (h *Handlers) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", pageData{
		Flashes: h.flash.takeFlashes(w, r),
	})
}

func (h *Handlers) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	form := formData{Username: username}

	if username == "" || password == "" {
		h.recordLogin("invalid")
		h.renderWithFlash(w, r, "login.html", pageData{Form: form}, FlashDanger, msgFieldsRequired)
		return
	}

	sess, token, err := h.auth.Login(r.Context(), username, password)
	switch {
	case err == nil:
		h.recordLogin("success")
		setSessionCookie(w, token, sess.ExpiresAt, h.secureCookies)
		h.flash.addFlash(w, r, FlashSuccess, msgLoggedIn)
		http.Redirect(w, r, "/", http.StatusSeeOther)

	case errors.Is(err, auth.ErrInvalidCredentials):
		h.recordLogin("invalid_credentials")
		h.renderWithFlash(w, r, "login.html", pageData{Form: form}, FlashDanger, msgInvalidCredential)

	case errors.Is(err, store.ErrUnavailable):
		h.recordLogin("error")
		errutil.LogError(h.logger, "login failed", err)
		h.renderWithFlash(w, r, "login.html", pageData{Form: form}, FlashDanger, msgStoreDown)

	default:
		h.recordLogin("error")
		errutil.LogError(h.logger, "login failed", err)
		h.renderWithFlash(w, r, "login.html", pageData{Form: form}, FlashDanger, msgInternal)
	}
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			// The cookie is cleared regardless; a dangling session row
			// expires on its own.
			errutil.LogError(h.logger, "logout failed", err)
		}
	}
	clearSessionCookie(w, h.secureCookies)
	h.flash.addFlash(w, r, FlashInfo, msgLoggedOut)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession(r)
	if sess == nil {
		h.flash.addFlash(w, r, FlashWarning, msgLoginRequired)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	profile, err := h.auth.Profile(r.Context(), sess.UserID)
	if err != nil {
		errutil.LogError(h.logger, "profile lookup failed", err)
		msg := msgInternal
		if errors.Is(err, store.ErrUnavailable) {
			msg = msgStoreDown
		}
		h.flash.addFlash(w, r, FlashDanger, msg)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	h.render(w, http.StatusOK, "dashboard.html", pageData{
		Username: sess.Username,
		Flashes:  h.flash.takeFlashes(w, r),
		User:     profile,
	})
}

// handleHealth reports process health as JSON. It deliberately does not
// touch the store; readiness probes live on the observability listener.
func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "gatehouse",
	})
}

// renderWithFlash renders a page with an immediate flash message, combined
// with any flashes still pending from a previous redirect.
func (h *Handlers) renderWithFlash(w http.ResponseWriter, r *http.Request, page string, data pageData, category, message string) {
	data.Flashes = append(h.flash.takeFlashes(w, r), Flash{Category: category, Message: message})
	h.render(w, http.StatusOK, page, data)
}

// isValidationError reports whether err is a field-level validation failure
// whose message is safe to show to the user.
func isValidationError(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	switch oopsErr.Code() {
	case "AUTH_INVALID_USERNAME", "AUTH_INVALID_EMAIL":
		return true
	}
	return false
}

func (h *Handlers) recordRegistration(outcome string) {
	if h.metrics != nil {
		h.metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handlers) recordLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}
