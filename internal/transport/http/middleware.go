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
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/ledgergate/ledgergate/internal/gate"
	"github.com/ledgergate/ledgergate/internal/observability/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// GateMiddleware runs the authorization gate on every page request before
// any handler logic. Denials rewrite the request path in place, so the
// client keeps its original URL while the substituted page renders. A
// rotated credential is attached to the response even on allowed requests.
func (h *Handler) GateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := h.gate.Authorize(r.Context(), r.URL.Path, h.readSessionCookie(r))

		if decision.RotatedCredential != "" {
			h.setSessionCookie(w, decision.RotatedCredential)
		}

		switch decision.Action {
		case gate.DenyRewrite:
			slog.DebugContext(r.Context(), "gate rewrite",
				logger.Path(r.URL.Path),
				logger.Decision(decision.Action.String()),
			)
			r.URL.Path = decision.RewriteTarget
		case gate.Allow:
			if decision.Session != nil {
				r = r.WithContext(withSession(r.Context(), decision.Session))
			}
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware validates the session credential on API routes and adds
// the session to the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := h.readSessionCookie(r)
		if credential == "" {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		sess, err := h.codec.Parse(credential)
		if err != nil {
			h.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		if rotated, ok, err := h.codec.Rotate(sess); err == nil && ok {
			h.setSessionCookie(w, rotated)
		} else if err != nil {
			slog.WarnContext(r.Context(), "session rotation failed", logger.Error(err))
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}
