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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/id"
	"github.com/ledgergate/ledgergate/internal/observability/logger"
)

// Service is the tenant context manager: it resolves, persists, and
// mutates the current business for an authenticated session, and owns
// the one-business-minimum fallback.
type Service struct {
	repo        Repository
	auditLogger audit.Logger

	// locks serializes check-then-create per subject within this
	// process; the store's default-uniqueness constraint covers races
	// across processes.
	locks sync.Map // subject -> *sync.Mutex
}

// NewService creates a new tenant context manager
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

func (s *Service) subjectLock(subject string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(subject, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ResolveCurrent returns the business the session operates against.
// A valid pointer wins. A missing or stale pointer (deleted business,
// foreign owner) is repaired, never trusted: fall back to the subject's
// first business by creation order, else auto-create a default one.
// Idempotent and safe under concurrent calls for the same subject:
// at most one default business is ever created.
func (s *Service) ResolveCurrent(ctx context.Context, subject, displayName string, ptr PointerStore) (*Business, error) {
	pointed, err := ptr.Get(ctx)
	if err == nil && pointed != "" {
		b, err := s.repo.GetByID(ctx, pointed)
		if err == nil && b.OwnerID == subject {
			return b, nil
		}
		// Stale pointer: self-heal below. Never surfaced to the caller.
		slog.DebugContext(ctx, "repairing stale business pointer",
			logger.Subject(subject), logger.BusinessID(pointed))
	}

	mu := s.subjectLock(subject)
	mu.Lock()
	defer mu.Unlock()

	// Re-check inside the critical section: another request may have
	// created the first business while this one waited.
	if b, err := s.repo.FirstByOwner(ctx, subject); err == nil {
		if err := ptr.Set(ctx, b.ID); err != nil {
			return nil, fmt.Errorf("failed to persist business pointer: %w", err)
		}
		return b, nil
	} else if !errors.Is(err, ErrBusinessNotFound) {
		return nil, err
	}

	b, err := s.createDefault(ctx, subject, displayName)
	if err != nil {
		return nil, err
	}
	if err := ptr.Set(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("failed to persist business pointer: %w", err)
	}
	return b, nil
}

func (s *Service) createDefault(ctx context.Context, subject, displayName string) (*Business, error) {
	name := "My Business"
	if displayName != "" {
		name = displayName + "'s Business"
	}

	now := time.Now()
	b := &Business{
		ID:        id.NewUUIDv7(),
		OwnerID:   subject,
		Name:      name,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, b); err != nil {
		if errors.Is(err, ErrDefaultExists) {
			// Lost the cross-process race; adopt the winner.
			return s.repo.FirstByOwner(ctx, subject)
		}
		return nil, fmt.Errorf("failed to auto-create business: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeBusinessCreated,
		ActorID:    subject,
		BusinessID: b.ID,
		Resource:   "business",
		Metadata:   map[string]any{"auto_provisioned": true},
	})
	return b, nil
}

// Switch validates ownership and atomically overwrites the pointer.
// Set is a single write, so concurrent switches resolve to one of the
// requested ids, last writer wins.
func (s *Service) Switch(ctx context.Context, subject, businessID string, ptr PointerStore) error {
	b, err := s.repo.GetByID(ctx, businessID)
	if err != nil {
		return err
	}
	if b.OwnerID != subject {
		return ErrNotOwner
	}

	if err := ptr.Set(ctx, businessID); err != nil {
		return fmt.Errorf("failed to persist business pointer: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeBusinessSwitched,
		ActorID:    subject,
		BusinessID: businessID,
		Resource:   "business",
	})
	return nil
}

// Create persists a new business owned by the subject. It does not touch
// the pointer; switching is the caller's decision.
func (s *Service) Create(ctx context.Context, subject, name string) (*Business, error) {
	if name == "" {
		return nil, ErrValidation
	}

	now := time.Now()
	b := &Business{
		ID:        id.NewUUIDv7(),
		OwnerID:   subject,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create business: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeBusinessCreated,
		ActorID:    subject,
		BusinessID: b.ID,
		Resource:   "business",
	})
	return b, nil
}

// List returns the subject's businesses in creation order
func (s *Service) List(ctx context.Context, subject string) ([]*Business, error) {
	return s.repo.ListByOwner(ctx, subject)
}

// Update merges the patch into a business the subject owns
func (s *Service) Update(ctx context.Context, subject, businessID string, patch Patch) (*Business, error) {
	b, err := s.repo.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != subject {
		return nil, ErrNotOwner
	}

	if err := patch.Apply(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update business: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeBusinessUpdated,
		ActorID:    subject,
		BusinessID: businessID,
		Resource:   "business",
	})
	return b, nil
}

// Delete removes a business the subject owns. Deleting the currently
// selected business clears the pointer so the next resolve re-derives a
// valid target instead of chasing a dangling id.
func (s *Service) Delete(ctx context.Context, subject, businessID string, ptr PointerStore) error {
	b, err := s.repo.GetByID(ctx, businessID)
	if err != nil {
		return err
	}
	if b.OwnerID != subject {
		return ErrNotOwner
	}

	if err := s.repo.Delete(ctx, businessID); err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}

	if pointed, err := ptr.Get(ctx); err == nil && pointed == businessID {
		if err := ptr.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear business pointer: %w", err)
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:       audit.TypeBusinessDeleted,
		ActorID:    subject,
		BusinessID: businessID,
		Resource:   "business",
	})
	return nil
}
