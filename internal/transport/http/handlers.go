// Copyright 2026 The Ledgergate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/business"
	"github.com/ledgergate/ledgergate/internal/gate"
	"github.com/ledgergate/ledgergate/internal/id"
	"github.com/ledgergate/ledgergate/internal/identity"
	"github.com/ledgergate/ledgergate/internal/observability/logger"
	"github.com/ledgergate/ledgergate/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const stateCookieName = "lg_oauth_state"

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	businessService *business.Service
	gate            *gate.Gate
	codec           *session.Codec
	auditLogger     audit.Logger
	cookies         CookieConfig
	pointerKey      []byte
}

// CookieConfig holds session and pointer cookie configuration
type CookieConfig struct {
	SessionName string
	PointerName string
	Domain      string
	Path        string
	Secure      bool
	SameSite    http.SameSite
	MaxAge      int
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	businessService *business.Service,
	g *gate.Gate,
	codec *session.Codec,
	auditLogger audit.Logger,
	cookies CookieConfig,
	pointerKey []byte,
) *Handler {
	return &Handler{
		identityService: identityService,
		businessService: businessService,
		gate:            g,
		codec:           codec,
		auditLogger:     auditLogger,
		cookies:         cookies,
		pointerKey:      pointerKey,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Challenge lifecycle and sign-in; no session required.
		r.Post("/auth/challenge", h.StartChallenge)
		r.Post("/auth/challenge/resend", h.ResendChallenge)
		r.Post("/auth/challenge/cancel", h.CancelChallenge)
		r.Post("/auth/verify", h.VerifyChallenge)

		// Federated sign-in
		r.Get("/auth/federated/{provider}", h.FederatedSignIn)
		r.Get("/auth/federated/{provider}/callback", h.FederatedCallback)

		// Session-bound routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/auth/me", h.Me)
			r.Post("/auth/refresh", h.RefreshSession)
			r.Post("/auth/logout", h.Logout)

			r.Route("/businesses", func(r chi.Router) {
				r.Get("/", h.ListBusinesses)
				r.Post("/", h.CreateBusiness)
				r.Get("/current", h.CurrentBusiness)
				r.Put("/current", h.SwitchBusiness)
				r.Patch("/{businessID}", h.UpdateBusiness)
				r.Delete("/{businessID}", h.DeleteBusiness)
			})
		})
	})

	// Every page request passes through the gate before rendering.
	r.With(h.GateMiddleware).Handle("/*", http.HandlerFunc(h.Page))

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledgergate",
	})
}

// ChallengeRequest starts or re-drives an OTP challenge
type ChallengeRequest struct {
	Identifier string `json:"identifier"`
	Mode       string `json:"mode"` // "login" or "signup"
}

// StartChallenge resolves the identifier and sends a one-time passcode.
// Starting again for the same identifier invalidates the earlier code.
func (h *Handler) StartChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, channel, target, err := h.identityService.CreateOrLookupAccount(r.Context(), req.Identifier, req.Mode == "signup")
	if err != nil {
		h.respondIdentityError(w, r, err)
		return
	}

	if err := h.identityService.SendOTP(r.Context(), account.ID, channel, target); err != nil {
		slog.ErrorContext(r.Context(), "failed to send otp",
			logger.Error(err),
			logger.Channel(string(channel)),
		)
		respondError(w, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"channel": string(channel),
		"target":  target,
	})
}

// ResendChallenge re-issues the active challenge with a fresh code
func (h *Handler) ResendChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, channel, target, err := h.identityService.CreateOrLookupAccount(r.Context(), req.Identifier, false)
	if err != nil {
		h.respondIdentityError(w, r, err)
		return
	}

	if err := h.identityService.SendOTP(r.Context(), account.ID, channel, target); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"channel": string(channel),
		"target":  target,
	})
}

// CancelChallenge abandons the active challenge
func (h *Handler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, channel, _, err := h.identityService.CreateOrLookupAccount(r.Context(), req.Identifier, false)
	if err != nil {
		h.respondIdentityError(w, r, err)
		return
	}

	if err := h.identityService.CancelChallenge(r.Context(), account.ID, channel); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to cancel challenge")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// VerifyRequest carries a submitted passcode
type VerifyRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

// VerifyChallenge checks the passcode and establishes a session
func (h *Handler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, channel, _, err := h.identityService.CreateOrLookupAccount(r.Context(), req.Identifier, false)
	if err != nil {
		h.respondIdentityError(w, r, err)
		return
	}

	token, sess, err := h.identityService.VerifyOTP(r.Context(), account.ID, channel, req.Code)
	if err != nil {
		h.respondIdentityError(w, r, err)
		return
	}

	h.setSessionCookie(w, token)

	respondJSON(w, http.StatusOK, sessionResponse(sess))
}

// FederatedSignIn redirects to the provider's authorization endpoint.
// The state nonce is pinned to the client in a short-lived cookie.
func (h *Handler) FederatedSignIn(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state := id.NewUUIDv7()

	authURL, err := h.identityService.SignInFederated(provider, state)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	http.Redirect(w, r, authURL, http.StatusFound)
}

// FederatedCallback completes the provider flow and establishes a session
func (h *Handler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		respondError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	// Burn the state nonce.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	token, _, err := h.identityService.CompleteFederated(r.Context(), provider, r.URL.Query().Get("code"))
	if err != nil {
		slog.ErrorContext(r.Context(), "federated sign-in failed",
			logger.Error(err),
			logger.Provider(provider),
		)
		h.respondIdentityError(w, r, err)
		return
	}

	h.setSessionCookie(w, token)

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Me returns the current session claims
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionResponse(GetSession(r.Context())))
}

// RefreshSession re-issues the credential from the account record, picking
// up profile and verification changes made since sign-in.
func (h *Handler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	token, sess, err := h.identityService.Refresh(r.Context(), GetSubject(r.Context()))
	if err != nil {
		h.respondIdentityError(w, r, err)
		return
	}

	h.setSessionCookie(w, token)

	respondJSON(w, http.StatusOK, sessionResponse(sess))
}

// Logout clears the session and pointer cookies
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		ActorID:   GetSubject(r.Context()),
		Resource:  "session",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	h.clearSessionCookie(w)
	_ = h.pointerStore(w, r).Clear(r.Context())

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out successfully",
	})
}

// Page renders edge pages. By the time this runs the gate has already
// substituted the path for denied requests.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case gate.RewriteUnauthorized:
		respondJSON(w, http.StatusUnauthorized, map[string]string{
			"page":    "unauthorized",
			"message": "sign in to continue",
		})
	case gate.RewriteAuthorized:
		respondJSON(w, http.StatusOK, map[string]string{
			"page":    "authorized",
			"message": "you are already signed in",
		})
	default:
		body := map[string]any{"page": r.URL.Path}
		if sess := GetSession(r.Context()); sess != nil {
			body["subject"] = sess.Subject
		}
		respondJSON(w, http.StatusOK, body)
	}
}

func (h *Handler) respondIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, identity.ErrInvalidIdentifier):
		respondError(w, http.StatusBadRequest, "invalid identifier")
	case errors.Is(err, identity.ErrInvalidCode):
		respondError(w, http.StatusUnauthorized, "invalid verification code")
	case errors.Is(err, identity.ErrChallengeExpired):
		respondError(w, http.StatusGone, "verification code expired")
	case errors.Is(err, identity.ErrNoActiveChallenge):
		respondError(w, http.StatusConflict, "no active challenge")
	case errors.Is(err, identity.ErrTooManyAttempts):
		respondError(w, http.StatusTooManyRequests, "too many verification attempts")
	case errors.Is(err, identity.ErrUnknownProvider):
		respondError(w, http.StatusNotFound, "unknown provider")
	case errors.Is(err, identity.ErrIdentityLookup):
		// Transient; the client may retry.
		respondError(w, http.StatusServiceUnavailable, "identity store unavailable, try again")
	default:
		slog.ErrorContext(r.Context(), "identity operation failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func sessionResponse(sess *session.Session) map[string]any {
	if sess == nil {
		return nil
	}
	return map[string]any{
		"subject":        sess.Subject,
		"name":           sess.Name,
		"picture":        sess.Picture,
		"email":          sess.Email,
		"phone":          sess.Phone,
		"email_verified": sess.EmailVerified,
		"phone_verified": sess.PhoneVerified,
		"expires_at":     sess.ExpiresAt,
	}
}

// Helper functions
func (h *Handler) pointerStore(w http.ResponseWriter, r *http.Request) *CookiePointerStore {
	return NewCookiePointerStore(h.pointerKey, h.cookies, w, r)
}

func (h *Handler) readSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.cookies.SessionName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.SessionName,
		Value:    token,
		Path:     h.cookies.Path,
		Domain:   h.cookies.Domain,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: h.cookies.SameSite,
		MaxAge:   h.cookies.MaxAge,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.SessionName,
		Value:    "",
		Path:     h.cookies.Path,
		Domain:   h.cookies.Domain,
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
