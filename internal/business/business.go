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

package business

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrBusinessNotFound = errors.New("business not found")
	// ErrNotOwner is an authorization failure. It is always surfaced,
	// never retried, never silently ignored.
	ErrNotOwner   = errors.New("not the business owner")
	ErrValidation = errors.New("invalid business input")
	// ErrDefaultExists is the store-level guard against two default
	// businesses for one owner; resolve adopts the winner on conflict.
	ErrDefaultExists = errors.New("owner already has a default business")
)

// Business is an isolated organizational unit owned by exactly one user.
// All business-scoped data is partitioned by its id.
type Business struct {
	ID           string
	OwnerID      string
	Name         string
	Description  string
	ContactEmail string
	ContactPhone string
	Website      string
	GSTIN        string
	PAN          string
	LogoURL      string
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Patch carries optional field updates; nil fields are left untouched.
type Patch struct {
	Name         *string
	Description  *string
	ContactEmail *string
	ContactPhone *string
	Website      *string
	GSTIN        *string
	PAN          *string
	LogoURL      *string
}

// Apply merges the patch into the business
func (p Patch) Apply(b *Business) error {
	if p.Name != nil {
		if *p.Name == "" {
			return ErrValidation
		}
		b.Name = *p.Name
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.ContactEmail != nil {
		b.ContactEmail = *p.ContactEmail
	}
	if p.ContactPhone != nil {
		b.ContactPhone = *p.ContactPhone
	}
	if p.Website != nil {
		b.Website = *p.Website
	}
	if p.GSTIN != nil {
		b.GSTIN = *p.GSTIN
	}
	if p.PAN != nil {
		b.PAN = *p.PAN
	}
	if p.LogoURL != nil {
		b.LogoURL = *p.LogoURL
	}
	return nil
}

// Repository defines the interface for business storage
type Repository interface {
	// Create persists a new business. Creating a second default business
	// for the same owner fails with ErrDefaultExists.
	Create(ctx context.Context, b *Business) error

	// GetByID retrieves a business by id
	GetByID(ctx context.Context, id string) (*Business, error)

	// ListByOwner lists an owner's businesses in stable creation order
	ListByOwner(ctx context.Context, ownerID string) ([]*Business, error)

	// FirstByOwner returns the owner's earliest-created business
	FirstByOwner(ctx context.Context, ownerID string) (*Business, error)

	// Update updates business fields
	Update(ctx context.Context, b *Business) error

	// Delete removes a business
	Delete(ctx context.Context, id string) error
}

// PointerStore persists the current-business pointer in a request-scoped
// credential, outside the business store, so resolution needs no database
// round trip on every navigation. The storage medium (cookie, signed
// token, server record) is an implementation choice behind this interface.
type PointerStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, businessID string) error
	Clear(ctx context.Context) error
}
