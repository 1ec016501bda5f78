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

package identity

import (
	"context"
	"crypto/subtle"
	"sync"
	"testing"
	"time"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: make(map[string]*Account)}
}

func (r *memoryAccounts) Create(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *memoryAccounts) GetByID(ctx context.Context, id string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryAccounts) GetByIdentifier(ctx context.Context, channel Channel, target string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if (channel == ChannelEmail && a.Email == target) || (channel == ChannelPhone && a.Phone == target) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *memoryAccounts) SetChannelVerified(ctx context.Context, id string, channel Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	switch channel {
	case ChannelEmail:
		a.EmailVerified = true
	case ChannelPhone:
		a.PhoneVerified = true
	}
	return nil
}

func (r *memoryAccounts) Update(ctx context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

type memoryChallenges struct {
	mu          sync.Mutex
	records     map[string]*Challenge
	maxAttempts int
}

func newMemoryChallenges(maxAttempts int) *memoryChallenges {
	return &memoryChallenges{records: make(map[string]*Challenge), maxAttempts: maxAttempts}
}

func (s *memoryChallenges) key(subject string, channel Channel) string {
	return subject + ":" + string(channel)
}

func (s *memoryChallenges) Save(ctx context.Context, challenge *Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *challenge
	s.records[s.key(challenge.Subject, challenge.Channel)] = &cp
	return nil
}

func (s *memoryChallenges) Consume(ctx context.Context, subject string, channel Channel, digest [32]byte) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(subject, channel)
	record, ok := s.records[key]
	if !ok {
		return nil, ErrNoActiveChallenge
	}
	if time.Now().After(record.ExpiresAt) {
		delete(s.records, key)
		return nil, ErrChallengeExpired
	}
	if subtle.ConstantTimeCompare(record.CodeDigest[:], digest[:]) != 1 {
		record.Attempts++
		if record.Attempts >= s.maxAttempts {
			delete(s.records, key)
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidCode
	}
	delete(s.records, key)
	cp := *record
	return &cp, nil
}

func (s *memoryChallenges) Delete(ctx context.Context, subject string, channel Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, s.key(subject, channel))
	return nil
}

// recordingSender captures delivered codes for assertions
type recordingSender struct {
	mu    sync.Mutex
	codes []string
}

func (s *recordingSender) SendCode(ctx context.Context, channel Channel, target, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func newTestService(t *testing.T) (*Service, *memoryAccounts, *recordingSender) {
	t.Helper()

	codec, err := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "ledgergate-test", time.Hour)
	require.NoError(t, err)

	accounts := newMemoryAccounts()
	sender := &recordingSender{}
	svc := NewService(accounts, newMemoryChallenges(5), sender, codec, audit.NewSlogLogger(), Config{})
	return svc, accounts, sender
}

func TestSignupFlowEndToEnd(t *testing.T) {
	svc, accounts, sender := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	assert.Equal(t, StateChallengeSent, flow.State())
	assert.Equal(t, ChannelEmail, flow.Channel())

	token, sess, err := flow.Verify(ctx, sender.last())
	require.NoError(t, err)
	assert.Equal(t, StateVerified, flow.State())
	assert.NotEmpty(t, token)
	assert.True(t, sess.EmailVerified)
	assert.False(t, sess.PhoneVerified)

	// The account record was marked verified too.
	account, err := accounts.GetByIdentifier(ctx, ChannelEmail, "asha@example.com")
	require.NoError(t, err)
	assert.True(t, account.EmailVerified)
}

func TestLoginFlowUnknownIdentifier(t *testing.T) {
	svc, _, _ := newTestService(t)

	flow := NewLoginFlow(svc)
	err := flow.Start(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, StateIdle, flow.State())
}

func TestVerifyWithoutChallenge(t *testing.T) {
	svc, _, _ := newTestService(t)

	flow := NewLoginFlow(svc)
	_, _, err := flow.Verify(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestWrongCodeLeavesChallengePending(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))

	_, _, err := flow.Verify(ctx, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, StateChallengeSent, flow.State())

	// The right code still works.
	_, sess, err := flow.Verify(ctx, sender.last())
	require.NoError(t, err)
	assert.True(t, sess.EmailVerified)
}

func TestResendInvalidatesPreviousCode(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	first := sender.last()

	require.NoError(t, flow.Resend(ctx))
	second := sender.last()

	if first != second {
		_, _, err := flow.Verify(ctx, first)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, _, err := flow.Verify(ctx, second)
	require.NoError(t, err)
}

func TestRestartInvalidatesPreviousCode(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	first := sender.last()

	// Starting over replaces the active challenge.
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	second := sender.last()

	if first != second {
		_, _, err := flow.Verify(ctx, first)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	_, _, err := flow.Verify(ctx, second)
	require.NoError(t, err)
}

func TestVerifiedFlowIsTerminal(t *testing.T) {
	svc, _, sender := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	_, _, err := flow.Verify(ctx, sender.last())
	require.NoError(t, err)

	assert.ErrorIs(t, flow.Start(ctx, "asha@example.com"), ErrFlowCompleted)
	_, _, err = flow.Verify(ctx, "123456")
	assert.ErrorIs(t, err, ErrFlowCompleted)
}

func TestCancelReturnsFlowToIdle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	require.NoError(t, flow.Cancel(ctx))
	assert.Equal(t, StateIdle, flow.State())

	_, _, err := flow.Verify(ctx, "123456")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)

	assert.ErrorIs(t, flow.Cancel(ctx), ErrNoActiveChallenge)
}

func TestAttemptLimitResetsFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))

	var err error
	for i := 0; i < 5; i++ {
		_, _, err = flow.Verify(ctx, "000000")
		if err == nil {
			t.Fatal("guessed the code; re-run with a fixed sender")
		}
	}
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, StateIdle, flow.State())
}

func TestChannelsVerifyIndependently(t *testing.T) {
	svc, accounts, sender := newTestService(t)
	ctx := context.Background()

	// Verify email first.
	emailFlow := NewSignupFlow(svc)
	require.NoError(t, emailFlow.Start(ctx, "asha@example.com"))
	_, sess, err := emailFlow.Verify(ctx, sender.last())
	require.NoError(t, err)
	assert.True(t, sess.EmailVerified)
	assert.False(t, sess.PhoneVerified)

	// Attach a phone to the same account and verify it separately.
	account, err := accounts.GetByIdentifier(ctx, ChannelEmail, "asha@example.com")
	require.NoError(t, err)
	account.Phone = "+919876543210"
	require.NoError(t, accounts.Update(ctx, account))

	phoneFlow := NewLoginFlow(svc)
	require.NoError(t, phoneFlow.Start(ctx, "+919876543210"))
	_, sess, err = phoneFlow.Verify(ctx, sender.last())
	require.NoError(t, err)
	assert.True(t, sess.PhoneVerified)
	assert.True(t, sess.EmailVerified)
	assert.ElementsMatch(t, []string{"email", "phone"}, sess.VerifiedChannels())
}

func TestRefreshReflectsAccountChanges(t *testing.T) {
	svc, accounts, sender := newTestService(t)
	ctx := context.Background()

	flow := NewSignupFlow(svc)
	require.NoError(t, flow.Start(ctx, "asha@example.com"))
	_, sess, err := flow.Verify(ctx, sender.last())
	require.NoError(t, err)
	assert.Empty(t, sess.Name)

	account, err := accounts.GetByID(ctx, sess.Subject)
	require.NoError(t, err)
	account.Name = "Asha"
	require.NoError(t, accounts.Update(ctx, account))

	_, refreshed, err := svc.Refresh(ctx, sess.Subject)
	require.NoError(t, err)
	assert.Equal(t, "Asha", refreshed.Name)
}
