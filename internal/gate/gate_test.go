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
	"testing"
	"time"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/routes"
	"github.com/ledgergate/ledgergate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, lifetime time.Duration) (*Gate, *session.Codec) {
	t.Helper()

	codec, err := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "ledgergate-test", lifetime)
	require.NoError(t, err)

	return New(routes.DefaultClassifier(), codec, audit.NewSlogLogger(), nil), codec
}

func issueCredential(t *testing.T, codec *session.Codec) string {
	t.Helper()
	token, err := codec.Issue(&session.Session{Subject: "user-1", EmailVerified: true})
	require.NoError(t, err)
	return token
}

func TestPublicPassesThroughWithoutSession(t *testing.T) {
	g, _ := newTestGate(t, time.Hour)

	// Even a garbage credential is never inspected on public paths.
	d := g.Authorize(context.Background(), "/about", "garbage")
	assert.Equal(t, PassThrough, d.Action)
	assert.Nil(t, d.Session)
}

func TestProtectedWithoutSessionRewrites(t *testing.T) {
	g, _ := newTestGate(t, time.Hour)

	d := g.Authorize(context.Background(), "/dashboard", "")
	assert.Equal(t, DenyRewrite, d.Action)
	assert.Equal(t, RewriteUnauthorized, d.RewriteTarget)
}

func TestProtectedWithInvalidCredentialRewrites(t *testing.T) {
	g, _ := newTestGate(t, time.Hour)

	// A malformed token is "no session", not a pipeline error.
	d := g.Authorize(context.Background(), "/dashboard", "not.a.token")
	assert.Equal(t, DenyRewrite, d.Action)
	assert.Equal(t, RewriteUnauthorized, d.RewriteTarget)
}

func TestProtectedWithSessionAllows(t *testing.T) {
	g, codec := newTestGate(t, time.Hour)
	token := issueCredential(t, codec)

	d := g.Authorize(context.Background(), "/dashboard/sales", token)
	assert.Equal(t, Allow, d.Action)
	require.NotNil(t, d.Session)
	assert.Equal(t, "user-1", d.Session.Subject)
	// Fresh credential, no rotation.
	assert.Empty(t, d.RotatedCredential)
}

func TestProtectedWithAgingSessionRotates(t *testing.T) {
	g, codec := newTestGate(t, time.Hour)

	// Issue a credential with far less than half the gate's lifetime left.
	shortLived, err := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "ledgergate-test", 10*time.Second)
	require.NoError(t, err)
	token := issueCredential(t, shortLived)

	d := g.Authorize(context.Background(), "/dashboard", token)
	assert.Equal(t, Allow, d.Action)
	assert.NotEmpty(t, d.RotatedCredential)

	sess, err := codec.Parse(d.RotatedCredential)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.Subject)
}

func TestProtectedWithExpiredSessionRewrites(t *testing.T) {
	g, codec := newTestGate(t, -time.Minute)
	token := issueCredential(t, codec)

	d := g.Authorize(context.Background(), "/dashboard", token)
	assert.Equal(t, DenyRewrite, d.Action)
	assert.Equal(t, RewriteUnauthorized, d.RewriteTarget)
}

func TestAuthOnlyWithSessionRewrites(t *testing.T) {
	g, codec := newTestGate(t, time.Hour)
	token := issueCredential(t, codec)

	d := g.Authorize(context.Background(), "/login", token)
	assert.Equal(t, DenyRewrite, d.Action)
	assert.Equal(t, RewriteAuthorized, d.RewriteTarget)
}

func TestAuthOnlyWithoutSessionAllows(t *testing.T) {
	g, _ := newTestGate(t, time.Hour)

	d := g.Authorize(context.Background(), "/login", "")
	assert.Equal(t, Allow, d.Action)
	assert.Nil(t, d.Session)
}

func TestStaticAssetBypassesGate(t *testing.T) {
	g, _ := newTestGate(t, time.Hour)

	d := g.Authorize(context.Background(), "/dashboard/logo.png", "")
	assert.Equal(t, PassThrough, d.Action)
}
