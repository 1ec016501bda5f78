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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ledgergate/ledgergate/internal/business"
)

// BusinessRepository implements business.Repository
type BusinessRepository struct {
	db *DB
}

// NewBusinessRepository creates a new business repository
func NewBusinessRepository(db *DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = `id, owner_id, name, description,
	contact_email, contact_phone, website, gstin, pan, logo_url,
	is_default, created_at, updated_at`

// Create persists a new business. The partial unique index on
// (owner_id) WHERE is_default rejects a second default row; that
// violation surfaces as business.ErrDefaultExists so the caller can
// adopt the concurrently created winner.
func (r *BusinessRepository) Create(ctx context.Context, b *business.Business) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO businesses (
			id, owner_id, name, description,
			contact_email, contact_phone, website, gstin, pan, logo_url,
			is_default, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		b.ID, b.OwnerID, b.Name, b.Description,
		b.ContactEmail, b.ContactPhone, b.Website, b.GSTIN, b.PAN, b.LogoURL,
		b.IsDefault, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_businesses_owner_default" {
			return business.ErrDefaultExists
		}
		return fmt.Errorf("failed to insert business: %w", err)
	}

	return nil
}

// GetByID retrieves a business by id
func (r *BusinessRepository) GetByID(ctx context.Context, id string) (*business.Business, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE id = $1
	`, id)
	return scanBusiness(row)
}

// ListByOwner lists an owner's businesses in stable creation order
func (r *BusinessRepository) ListByOwner(ctx context.Context, ownerID string) ([]*business.Business, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE owner_id = $1
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var out []*business.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}

	return out, nil
}

// FirstByOwner returns the owner's earliest-created business. The id
// tiebreak keeps the result deterministic for rows created in the same
// timestamp tick.
func (r *BusinessRepository) FirstByOwner(ctx context.Context, ownerID string) (*business.Business, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE owner_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`, ownerID)
	return scanBusiness(row)
}

// Update updates business fields
func (r *BusinessRepository) Update(ctx context.Context, b *business.Business) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE businesses SET
			name = $2,
			description = $3,
			contact_email = $4,
			contact_phone = $5,
			website = $6,
			gstin = $7,
			pan = $8,
			logo_url = $9,
			updated_at = $10
		WHERE id = $1
	`,
		b.ID, b.Name, b.Description,
		b.ContactEmail, b.ContactPhone, b.Website, b.GSTIN, b.PAN, b.LogoURL,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update business: %w", err)
	}
	if result.RowsAffected() == 0 {
		return business.ErrBusinessNotFound
	}

	return nil
}

// Delete removes a business
func (r *BusinessRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM businesses WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}
	if result.RowsAffected() == 0 {
		return business.ErrBusinessNotFound
	}

	return nil
}

func scanBusiness(row pgx.Row) (*business.Business, error) {
	var b business.Business
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.Description,
		&b.ContactEmail, &b.ContactPhone, &b.Website, &b.GSTIN, &b.PAN, &b.LogoURL,
		&b.IsDefault, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, business.ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to scan business: %w", err)
	}
	return &b, nil
}
