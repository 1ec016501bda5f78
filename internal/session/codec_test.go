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

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, lifetime time.Duration) *Codec {
	t.Helper()
	codec, err := NewCodec(testSecret, "ledgergate-test", lifetime)
	require.NoError(t, err)
	return codec
}

func TestIssueAndParse(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	sess := &Session{
		Subject:       "user-1",
		Name:          "Asha",
		Email:         "asha@example.com",
		EmailVerified: true,
	}

	token, err := codec.Issue(sess)
	require.NoError(t, err)

	parsed, err := codec.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.Subject)
	assert.Equal(t, "Asha", parsed.Name)
	assert.Equal(t, "asha@example.com", parsed.Email)
	assert.True(t, parsed.EmailVerified)
	assert.False(t, parsed.PhoneVerified)
	assert.False(t, parsed.IsExpired())
}

func TestParseRejectsGarbage(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Parse(token)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", token)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	other, err := NewCodec([]byte("another-secret-another-secret-32"), "ledgergate-test", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue(&Session{Subject: "user-1"})
	require.NoError(t, err)

	_, err = codec.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseRejectsExpired(t *testing.T) {
	codec := newTestCodec(t, -time.Minute)

	token, err := codec.Issue(&Session{Subject: "user-1"})
	require.NoError(t, err)

	_, err = codec.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	other, err := NewCodec(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue(&Session{Subject: "user-1"})
	require.NoError(t, err)

	_, err = codec.Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRotateSkipsFreshSession(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	sess := &Session{Subject: "user-1"}
	_, err := codec.Issue(sess)
	require.NoError(t, err)

	_, rotated, err := codec.Rotate(sess)
	require.NoError(t, err)
	assert.False(t, rotated)
}

func TestRotateReissuesAgingSession(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	// Less than half the lifetime remains.
	sess := &Session{
		Subject:   "user-1",
		IssuedAt:  time.Now().Add(-50 * time.Minute),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}

	token, rotated, err := codec.Rotate(sess)
	require.NoError(t, err)
	require.True(t, rotated)

	parsed, err := codec.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.Subject)
	assert.Greater(t, time.Until(parsed.ExpiresAt), 30*time.Minute)
}

func TestDeriveKeySeparatesPurposes(t *testing.T) {
	a, err := DeriveKey(testSecret, PurposeSessionToken)
	require.NoError(t, err)
	b, err := DeriveKey(testSecret, PurposeTenantPointer)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)

	// Derivation is deterministic.
	again, err := DeriveKey(testSecret, PurposeSessionToken)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestHasVerifiedChannel(t *testing.T) {
	sess := &Session{EmailVerified: true}

	assert.True(t, sess.HasVerifiedChannel(ChannelEmail))
	assert.False(t, sess.HasVerifiedChannel(ChannelPhone))
	assert.False(t, sess.HasVerifiedChannel("carrier-pigeon"))
	assert.Equal(t, []string{ChannelEmail}, sess.VerifiedChannels())
}
