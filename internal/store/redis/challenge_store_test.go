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

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ledgergate/ledgergate/internal/identity"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxAttempts int) (*ChallengeStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewChallengeStore(client, maxAttempts), mr
}

func newChallenge(subject, code string, ttl time.Duration) *identity.Challenge {
	now := time.Now()
	return &identity.Challenge{
		Subject:    subject,
		Channel:    identity.ChannelEmail,
		Target:     subject + "@example.com",
		CodeDigest: identity.HashCode(code),
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestConsumeCorrectCode(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	ch := newChallenge("user-1", "123456", 5*time.Minute)
	require.NoError(t, store.Save(ctx, ch, 5*time.Minute))

	got, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("123456"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
	assert.Equal(t, "user-1@example.com", got.Target)

	// Consumed challenges are gone.
	_, err = store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("123456"))
	assert.ErrorIs(t, err, identity.ErrNoActiveChallenge)
}

func TestConsumeWrongCode(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	ch := newChallenge("user-1", "123456", 5*time.Minute)
	require.NoError(t, store.Save(ctx, ch, 5*time.Minute))

	_, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("000000"))
	assert.ErrorIs(t, err, identity.ErrInvalidCode)

	// A wrong guess leaves the challenge pending for the right code.
	got, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("123456"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
}

func TestConsumeAttemptLimit(t *testing.T) {
	store, _ := newTestStore(t, 3)
	ctx := context.Background()

	ch := newChallenge("user-1", "123456", 5*time.Minute)
	require.NoError(t, store.Save(ctx, ch, 5*time.Minute))

	for i := 0; i < 2; i++ {
		_, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("000000"))
		assert.ErrorIs(t, err, identity.ErrInvalidCode)
	}

	_, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("000000"))
	assert.ErrorIs(t, err, identity.ErrTooManyAttempts)

	// The challenge is burned even for the correct code.
	_, err = store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("123456"))
	assert.ErrorIs(t, err, identity.ErrNoActiveChallenge)
}

func TestConsumeExpired(t *testing.T) {
	store, mr := newTestStore(t, 5)
	ctx := context.Background()

	ch := newChallenge("user-1", "123456", time.Second)
	require.NoError(t, store.Save(ctx, ch, time.Minute))

	// The record outlives its logical expiry but not the Redis TTL.
	mr.FastForward(2 * time.Second)

	_, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("123456"))
	assert.ErrorIs(t, err, identity.ErrChallengeExpired)
}

func TestConsumeMissing(t *testing.T) {
	store, _ := newTestStore(t, 5)

	_, err := store.Consume(context.Background(), "nobody", identity.ChannelEmail, identity.HashCode("123456"))
	assert.ErrorIs(t, err, identity.ErrNoActiveChallenge)
}

func TestSaveReplacesActiveChallenge(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	first := newChallenge("user-1", "111111", 5*time.Minute)
	require.NoError(t, store.Save(ctx, first, 5*time.Minute))

	second := newChallenge("user-1", "222222", 5*time.Minute)
	require.NoError(t, store.Save(ctx, second, 5*time.Minute))

	// The replaced code no longer verifies.
	_, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("111111"))
	assert.ErrorIs(t, err, identity.ErrInvalidCode)

	got, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("222222"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
}

func TestChannelsAreIndependent(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	email := newChallenge("user-1", "111111", 5*time.Minute)
	require.NoError(t, store.Save(ctx, email, 5*time.Minute))

	phone := &identity.Challenge{
		Subject:    "user-1",
		Channel:    identity.ChannelPhone,
		Target:     "+919876543210",
		CodeDigest: identity.HashCode("222222"),
		IssuedAt:   time.Now(),
		ExpiresAt:  time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, phone, 5*time.Minute))

	// Consuming the phone challenge leaves the email one intact.
	_, err := store.Consume(ctx, "user-1", identity.ChannelPhone, identity.HashCode("222222"))
	require.NoError(t, err)

	got, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("111111"))
	require.NoError(t, err)
	assert.Equal(t, identity.ChannelEmail, got.Channel)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	ch := newChallenge("user-1", "123456", 5*time.Minute)
	require.NoError(t, store.Save(ctx, ch, 5*time.Minute))

	require.NoError(t, store.Delete(ctx, "user-1", identity.ChannelEmail))

	_, err := store.Consume(ctx, "user-1", identity.ChannelEmail, identity.HashCode("123456"))
	assert.ErrorIs(t, err, identity.ErrNoActiveChallenge)

	// Deleting an absent challenge is a no-op.
	assert.NoError(t, store.Delete(ctx, "user-1", identity.ChannelEmail))
}
