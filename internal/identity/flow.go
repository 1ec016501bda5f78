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

	"github.com/ledgergate/ledgergate/internal/session"
)

// FlowState is the state of one challenge flow.
type FlowState int

const (
	// StateIdle means no challenge is pending.
	StateIdle FlowState = iota
	// StateChallengeSent means a code is out and awaiting verification.
	StateChallengeSent
	// StateVerified is terminal; the flow produced a live session.
	StateVerified
)

// FlowMode distinguishes login from signup.
type FlowMode int

const (
	// FlowLogin fails with ErrAccountNotFound for unknown identifiers.
	FlowLogin FlowMode = iota
	// FlowSignup auto-creates an account for unknown identifiers.
	FlowSignup
)

// ErrFlowCompleted is returned for operations on a verified flow.
var ErrFlowCompleted = errors.New("flow already verified")

// Flow drives one challenge from start to verification. A flow is bound
// to a single channel once started; email and phone verification for the
// same user run as two independent flows and never share a challenge.
// A Flow is not safe for concurrent use; it models one client's
// sequential interaction.
type Flow struct {
	svc     *Service
	mode    FlowMode
	state   FlowState
	subject string
	channel Channel
	target  string
}

// NewLoginFlow creates a flow that requires an existing account
func NewLoginFlow(svc *Service) *Flow {
	return &Flow{svc: svc, mode: FlowLogin}
}

// NewSignupFlow creates a flow that auto-creates missing accounts
func NewSignupFlow(svc *Service) *Flow {
	return &Flow{svc: svc, mode: FlowSignup}
}

// State returns the current flow state
func (f *Flow) State() FlowState {
	return f.state
}

// Channel returns the channel the active challenge was sent on
func (f *Flow) Channel() Channel {
	return f.channel
}

// Start classifies the identifier, resolves the account, and sends a
// challenge. Starting again while a challenge is pending invalidates the
// earlier code: the store keeps at most one active challenge per
// subject and channel.
func (f *Flow) Start(ctx context.Context, identifier string) error {
	if f.state == StateVerified {
		return ErrFlowCompleted
	}

	account, channel, target, err := f.svc.CreateOrLookupAccount(ctx, identifier, f.mode == FlowSignup)
	if err != nil {
		return err
	}
	if err := f.svc.SendOTP(ctx, account.ID, channel, target); err != nil {
		return err
	}

	f.subject = account.ID
	f.channel = channel
	f.target = target
	f.state = StateChallengeSent
	return nil
}

// Resend re-issues the challenge, invalidating the previous code
func (f *Flow) Resend(ctx context.Context) error {
	if f.state != StateChallengeSent {
		return ErrNoActiveChallenge
	}
	return f.svc.SendOTP(ctx, f.subject, f.channel, f.target)
}

// Verify submits a code. On success the flow is terminal and the caller
// receives the signed credential and live session. A wrong code leaves
// the challenge pending; an expired challenge resets the flow to idle.
func (f *Flow) Verify(ctx context.Context, code string) (string, *session.Session, error) {
	switch f.state {
	case StateIdle:
		return "", nil, ErrNoActiveChallenge
	case StateVerified:
		return "", nil, ErrFlowCompleted
	}

	token, sess, err := f.svc.VerifyOTP(ctx, f.subject, f.channel, code)
	if err != nil {
		if errors.Is(err, ErrChallengeExpired) || errors.Is(err, ErrTooManyAttempts) || errors.Is(err, ErrNoActiveChallenge) {
			f.state = StateIdle
		}
		return "", nil, err
	}

	f.state = StateVerified
	return token, sess, nil
}

// Cancel abandons the pending challenge and returns the flow to idle
func (f *Flow) Cancel(ctx context.Context) error {
	if f.state != StateChallengeSent {
		return ErrNoActiveChallenge
	}
	if err := f.svc.CancelChallenge(ctx, f.subject, f.channel); err != nil {
		return err
	}
	f.state = StateIdle
	return nil
}
