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
	"time"
)

// Domain errors
var (
	// ErrIdentityLookup marks the identity store as unreachable; callers
	// may retry. Everything wrapped in it is transient.
	ErrIdentityLookup = errors.New("identity store unreachable")
	// ErrAccountNotFound is terminal for a login attempt; the user must
	// sign up instead.
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownProvider   = errors.New("unknown federated provider")
)

// Account is a user identity reachable through one or more channels.
type Account struct {
	ID            string
	Email         string
	Phone         string
	Name          string
	Picture       string
	EmailVerified bool
	PhoneVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	// Create creates a new account
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByIdentifier retrieves an account by channel target
	GetByIdentifier(ctx context.Context, channel Channel, target string) (*Account, error)

	// SetChannelVerified marks a channel as proven for the account
	SetChannelVerified(ctx context.Context, id string, channel Channel) error

	// Update updates account profile information
	Update(ctx context.Context, account *Account) error
}
