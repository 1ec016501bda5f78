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
	"errors"
	"fmt"
	"time"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/id"
	"github.com/ledgergate/ledgergate/internal/session"
)

// Config holds challenge policy
type Config struct {
	CodeDigits      int
	ChallengeTTL    time.Duration
	DefaultDialCode string
}

// Service is the identity store facade: account lookup and creation, OTP
// challenge issuance and verification, session issuance and refresh, and
// federated sign-in.
type Service struct {
	accounts    AccountRepository
	challenges  ChallengeStore
	sender      Sender
	codec       *session.Codec
	auditLogger audit.Logger
	providers   map[string]ProviderConfig
	cfg         Config
}

// NewService creates a new identity service
func NewService(
	accounts AccountRepository,
	challenges ChallengeStore,
	sender Sender,
	codec *session.Codec,
	auditLogger audit.Logger,
	cfg Config,
) *Service {
	if cfg.CodeDigits == 0 {
		cfg.CodeDigits = 6
	}
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.DefaultDialCode == "" {
		cfg.DefaultDialCode = "+91"
	}
	return &Service{
		accounts:    accounts,
		challenges:  challenges,
		sender:      sender,
		codec:       codec,
		auditLogger: auditLogger,
		providers:   make(map[string]ProviderConfig),
		cfg:         cfg,
	}
}

// CreateOrLookupAccount resolves an identifier to an account. When
// createIfMissing is false (login), an unknown identifier is
// ErrAccountNotFound; signup auto-creates instead.
func (s *Service) CreateOrLookupAccount(ctx context.Context, identifier string, createIfMissing bool) (*Account, Channel, string, error) {
	channel, target, err := ClassifyIdentifier(identifier, s.cfg.DefaultDialCode)
	if err != nil {
		return nil, "", "", err
	}

	account, err := s.accounts.GetByIdentifier(ctx, channel, target)
	if err == nil {
		return account, channel, target, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, "", "", fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}
	if !createIfMissing {
		return nil, "", "", ErrAccountNotFound
	}

	account = &Account{ID: id.NewUUIDv7()}
	switch channel {
	case ChannelEmail:
		account.Email = target
	case ChannelPhone:
		account.Phone = target
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}
	return account, channel, target, nil
}

// SendOTP issues a fresh challenge for the subject on the given channel.
// Any active challenge for the same pair is invalidated by the store's
// replace-on-save semantics.
func (s *Service) SendOTP(ctx context.Context, subject string, channel Channel, target string) error {
	code, err := GenerateCode(s.cfg.CodeDigits)
	if err != nil {
		return err
	}

	now := time.Now()
	challenge := &Challenge{
		Subject:    subject,
		Channel:    channel,
		Target:     target,
		CodeDigest: HashCode(code),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.ChallengeTTL),
	}

	if err := s.challenges.Save(ctx, challenge, s.cfg.ChallengeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}

	if err := s.sender.SendCode(ctx, channel, target, code); err != nil {
		return fmt.Errorf("failed to deliver otp: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeChallengeSent,
		ActorID:  subject,
		Resource: "challenge",
		Metadata: map[string]any{audit.AttrChannel: string(channel)},
	})
	return nil
}

// VerifyOTP checks a submitted code against the active challenge for the
// subject and channel. Success marks the channel verified and issues a
// live session whose claims already reflect that verification.
func (s *Service) VerifyOTP(ctx context.Context, subject string, channel Channel, code string) (string, *session.Session, error) {
	_, err := s.challenges.Consume(ctx, subject, channel, HashCode(code))
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeChallengeFailed,
			ActorID:  subject,
			Resource: "challenge",
			Metadata: map[string]any{
				audit.AttrChannel: string(channel),
				audit.AttrReason:  err.Error(),
			},
		})
		return "", nil, err
	}

	if err := s.accounts.SetChannelVerified(ctx, subject, channel); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}

	// Re-read so the issued claims carry the newly verified channel.
	account, err := s.accounts.GetByID(ctx, subject)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}

	token, sess, err := s.issueSession(account)
	if err != nil {
		return "", nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeChallengeVerified,
		ActorID:  subject,
		Resource: "challenge",
		Metadata: map[string]any{audit.AttrChannel: string(channel)},
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSessionIssued,
		ActorID:  subject,
		Resource: "session",
	})
	return token, sess, nil
}

// CancelChallenge discards the active challenge for the subject+channel
func (s *Service) CancelChallenge(ctx context.Context, subject string, channel Channel) error {
	if err := s.challenges.Delete(ctx, subject, channel); err != nil {
		return fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeChallengeCanceled,
		ActorID:  subject,
		Resource: "challenge",
		Metadata: map[string]any{audit.AttrChannel: string(channel)},
	})
	return nil
}

// Refresh re-issues a session credential with fresh claims read from the
// account record.
func (s *Service) Refresh(ctx context.Context, subject string) (string, *session.Session, error) {
	account, err := s.accounts.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", nil, ErrAccountNotFound
		}
		return "", nil, fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}

	token, sess, err := s.issueSession(account)
	if err != nil {
		return "", nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSessionRefreshed,
		ActorID:  subject,
		Resource: "session",
	})
	return token, sess, nil
}

func (s *Service) issueSession(account *Account) (string, *session.Session, error) {
	sess := &session.Session{
		Subject:       account.ID,
		Name:          account.Name,
		Picture:       account.Picture,
		Email:         account.Email,
		Phone:         account.Phone,
		EmailVerified: account.EmailVerified,
		PhoneVerified: account.PhoneVerified,
	}
	token, err := s.codec.Issue(sess)
	if err != nil {
		return "", nil, err
	}
	return token, sess, nil
}
