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

package gate

import (
	"context"
	"log/slog"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/observability/logger"
	"github.com/ledgergate/ledgergate/internal/routes"
	"github.com/ledgergate/ledgergate/internal/session"
	"go.opentelemetry.io/otel/metric"
)

// Rewrite targets. These are internal re-routes: the original path stays
// in the client's address bar while the rendered content is substituted.
const (
	RewriteUnauthorized = "/unauthorized"
	RewriteAuthorized   = "/authorized"
)

// Action is the gate's verdict for a request.
type Action int

const (
	// Allow lets the request through to its original handler.
	Allow Action = iota
	// DenyRewrite internally re-routes the request to Decision.RewriteTarget.
	DenyRewrite
	// PassThrough skips session handling entirely (public paths).
	PassThrough
)

// String returns the action name for logging
func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case DenyRewrite:
		return "deny_rewrite"
	default:
		return "pass_through"
	}
}

// Decision is the outcome of authorizing one request.
type Decision struct {
	Action        Action
	RewriteTarget string
	// Session is set on Allow for protected paths.
	Session *session.Session
	// RotatedCredential, when non-empty, must be attached to the outgoing
	// response even on Allow paths.
	RotatedCredential string
}

// TokenCodec resolves a session from a raw credential and rotates it.
type TokenCodec interface {
	Parse(token string) (*session.Session, error)
	Rotate(s *session.Session) (string, bool, error)
}

// Gate intercepts every incoming request before any handler logic runs.
// It holds no per-request state and never caches sessions across calls.
type Gate struct {
	classifier  *routes.Classifier
	codec       TokenCodec
	auditLogger audit.Logger
	denials     metric.Int64Counter
}

// New creates an authorization gate
func New(classifier *routes.Classifier, codec TokenCodec, auditLogger audit.Logger, denials metric.Int64Counter) *Gate {
	return &Gate{
		classifier:  classifier,
		codec:       codec,
		auditLogger: auditLogger,
		denials:     denials,
	}
}

// Authorize decides how a request for path carrying the given credential
// proceeds. Session resolution happens only for protected and auth-only
// classifications, and any decode failure is treated as "no session";
// the gate fails closed, it never fails the request pipeline.
func (g *Gate) Authorize(ctx context.Context, path, credential string) Decision {
	class := g.classifier.Classify(path)
	if class == routes.Public {
		return Decision{Action: PassThrough}
	}

	sess := g.resolveSession(ctx, credential)

	switch class {
	case routes.Protected:
		if sess == nil {
			g.deny(ctx, path, "", "no_session")
			return Decision{Action: DenyRewrite, RewriteTarget: RewriteUnauthorized}
		}
		decision := Decision{Action: Allow, Session: sess}
		if rotated, ok, err := g.codec.Rotate(sess); err == nil && ok {
			decision.RotatedCredential = rotated
		} else if err != nil {
			// Rotation failure is not a denial; the current credential is
			// still valid.
			slog.WarnContext(ctx, "session rotation failed", logger.Error(err), logger.Subject(sess.Subject))
		}
		return decision

	case routes.AuthOnly:
		if sess != nil {
			g.deny(ctx, path, sess.Subject, "already_authenticated")
			return Decision{Action: DenyRewrite, RewriteTarget: RewriteAuthorized}
		}
		return Decision{Action: Allow}
	}

	return Decision{Action: PassThrough}
}

// resolveSession fails soft: no valid credential means no session.
func (g *Gate) resolveSession(ctx context.Context, credential string) *session.Session {
	if credential == "" {
		return nil
	}
	sess, err := g.codec.Parse(credential)
	if err != nil {
		slog.DebugContext(ctx, "credential rejected at gate", logger.Error(err))
		return nil
	}
	return sess
}

func (g *Gate) deny(ctx context.Context, path, subject, reason string) {
	if g.denials != nil {
		g.denials.Add(ctx, 1)
	}
	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAccessDenied,
		ActorID:  subject,
		Resource: path,
		Metadata: map[string]any{audit.AttrReason: reason},
	})
}
