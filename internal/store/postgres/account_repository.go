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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledgergate/ledgergate/internal/identity"
)

// AccountRepository implements identity.AccountRepository
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create creates a new account. Email and phone are stored as NULL when
// absent so the partial unique indexes only apply to populated identifiers.
func (r *AccountRepository) Create(ctx context.Context, account *identity.Account) error {
	now := time.Now()
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, phone, name, picture,
			email_verified, phone_verified, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		account.ID, nullable(account.Email), nullable(account.Phone),
		account.Name, account.Picture,
		account.EmailVerified, account.PhoneVerified,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	account.CreatedAt = now
	account.UpdatedAt = now

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*identity.Account, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// GetByIdentifier retrieves an account by a normalized channel target
func (r *AccountRepository) GetByIdentifier(ctx context.Context, channel identity.Channel, target string) (*identity.Account, error) {
	switch channel {
	case identity.ChannelEmail:
		return r.get(ctx, `WHERE email = $1`, target)
	case identity.ChannelPhone:
		return r.get(ctx, `WHERE phone = $1`, target)
	default:
		return nil, identity.ErrInvalidIdentifier
	}
}

func (r *AccountRepository) get(ctx context.Context, where string, arg any) (*identity.Account, error) {
	var account identity.Account
	var email, phone sql.NullString

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, email, phone, name, picture,
			email_verified, phone_verified, created_at, updated_at
		FROM accounts
	`+where, arg).Scan(
		&account.ID, &email, &phone, &account.Name, &account.Picture,
		&account.EmailVerified, &account.PhoneVerified,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account.Email = email.String
	account.Phone = phone.String

	return &account, nil
}

// SetChannelVerified marks a channel as proven for the account
func (r *AccountRepository) SetChannelVerified(ctx context.Context, id string, channel identity.Channel) error {
	var column string
	switch channel {
	case identity.ChannelEmail:
		column = "email_verified"
	case identity.ChannelPhone:
		column = "phone_verified"
	default:
		return identity.ErrInvalidIdentifier
	}

	result, err := r.db.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE accounts SET %s = TRUE, updated_at = NOW()
		WHERE id = $1
	`, column), id)
	if err != nil {
		return fmt.Errorf("failed to mark channel verified: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrAccountNotFound
	}

	return nil
}

// Update updates account profile information
func (r *AccountRepository) Update(ctx context.Context, account *identity.Account) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE accounts SET
			email = $2,
			phone = $3,
			name = $4,
			picture = $5,
			email_verified = $6,
			phone_verified = $7,
			updated_at = NOW()
		WHERE id = $1
	`,
		account.ID, nullable(account.Email), nullable(account.Phone),
		account.Name, account.Picture,
		account.EmailVerified, account.PhoneVerified,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return identity.ErrAccountNotFound
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
