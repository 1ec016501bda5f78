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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ledgergate/ledgergate/internal/business"
	"github.com/ledgergate/ledgergate/internal/observability/logger"
)

// BusinessResponse is the wire shape of a business
type BusinessResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Website      string    `json:"website,omitempty"`
	GSTIN        string    `json:"gstin,omitempty"`
	PAN          string    `json:"pan,omitempty"`
	LogoURL      string    `json:"logo_url,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toBusinessResponse(b *business.Business) BusinessResponse {
	return BusinessResponse{
		ID:           b.ID,
		Name:         b.Name,
		Description:  b.Description,
		ContactEmail: b.ContactEmail,
		ContactPhone: b.ContactPhone,
		Website:      b.Website,
		GSTIN:        b.GSTIN,
		PAN:          b.PAN,
		LogoURL:      b.LogoURL,
		IsDefault:    b.IsDefault,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

// ListBusinesses returns the caller's businesses in creation order
func (h *Handler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	list, err := h.businessService.List(r.Context(), GetSubject(r.Context()))
	if err != nil {
		h.respondBusinessError(w, r, err)
		return
	}

	out := make([]BusinessResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBusinessResponse(b))
	}
	respondJSON(w, http.StatusOK, map[string]any{"businesses": out})
}

// CreateBusinessRequest carries new business fields
type CreateBusinessRequest struct {
	Name string `json:"name"`
}

// CreateBusiness creates a business for the caller. With ?switch=true the
// pointer moves to the new business in the same request.
func (h *Handler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req CreateBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	subject := GetSubject(r.Context())
	b, err := h.businessService.Create(r.Context(), subject, req.Name)
	if err != nil {
		h.respondBusinessError(w, r, err)
		return
	}

	if r.URL.Query().Get("switch") == "true" {
		if err := h.businessService.Switch(r.Context(), subject, b.ID, h.pointerStore(w, r)); err != nil {
			h.respondBusinessError(w, r, err)
			return
		}
	}

	respondJSON(w, http.StatusCreated, toBusinessResponse(b))
}

// CurrentBusiness resolves the business the session operates against,
// auto-provisioning a default on first use.
func (h *Handler) CurrentBusiness(w http.ResponseWriter, r *http.Request) {
	sess := GetSession(r.Context())

	b, err := h.businessService.ResolveCurrent(r.Context(), sess.Subject, sess.Name, h.pointerStore(w, r))
	if err != nil {
		h.respondBusinessError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toBusinessResponse(b))
}

// SwitchBusinessRequest names the business to switch to
type SwitchBusinessRequest struct {
	BusinessID string `json:"business_id"`
}

// SwitchBusiness moves the current-business pointer
func (h *Handler) SwitchBusiness(w http.ResponseWriter, r *http.Request) {
	var req SwitchBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.businessService.Switch(r.Context(), GetSubject(r.Context()), req.BusinessID, h.pointerStore(w, r)); err != nil {
		h.respondBusinessError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"current": req.BusinessID})
}

// UpdateBusinessRequest carries partial business updates
type UpdateBusinessRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`
	Website      *string `json:"website"`
	GSTIN        *string `json:"gstin"`
	PAN          *string `json:"pan"`
	LogoURL      *string `json:"logo_url"`
}

// UpdateBusiness applies a partial update to an owned business
func (h *Handler) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	var req UpdateBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch := business.Patch{
		Name:         req.Name,
		Description:  req.Description,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Website:      req.Website,
		GSTIN:        req.GSTIN,
		PAN:          req.PAN,
		LogoURL:      req.LogoURL,
	}

	b, err := h.businessService.Update(r.Context(), GetSubject(r.Context()), chi.URLParam(r, "businessID"), patch)
	if err != nil {
		h.respondBusinessError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toBusinessResponse(b))
}

// DeleteBusiness removes an owned business
func (h *Handler) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	err := h.businessService.Delete(r.Context(), GetSubject(r.Context()), chi.URLParam(r, "businessID"), h.pointerStore(w, r))
	if err != nil {
		h.respondBusinessError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) respondBusinessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, business.ErrBusinessNotFound):
		respondError(w, http.StatusNotFound, "business not found")
	case errors.Is(err, business.ErrNotOwner):
		respondError(w, http.StatusForbidden, "not the business owner")
	case errors.Is(err, business.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid business input")
	default:
		slog.ErrorContext(r.Context(), "business operation failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
