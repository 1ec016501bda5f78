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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// CookiePointerStore implements business.PointerStore on a dedicated
// cookie, separate from the session credential so tenant switches never
// touch identity claims. The value is the business id plus an HMAC tag;
// a bad tag reads as "no pointer" and the resolver self-heals.
type CookiePointerStore struct {
	key     []byte
	cookies CookieConfig
	w       http.ResponseWriter
	r       *http.Request
}

// NewCookiePointerStore binds a pointer store to one request/response pair
func NewCookiePointerStore(key []byte, cookies CookieConfig, w http.ResponseWriter, r *http.Request) *CookiePointerStore {
	return &CookiePointerStore{key: key, cookies: cookies, w: w, r: r}
}

// Get reads and authenticates the pointer cookie
func (s *CookiePointerStore) Get(ctx context.Context) (string, error) {
	cookie, err := s.r.Cookie(s.cookies.PointerName)
	if err != nil {
		return "", nil
	}

	id, tag, ok := strings.Cut(cookie.Value, ".")
	if !ok || !hmac.Equal([]byte(tag), []byte(s.sign(id))) {
		// Tampered or legacy value. Treat as absent.
		return "", nil
	}
	return id, nil
}

// Set overwrites the pointer cookie in a single write
func (s *CookiePointerStore) Set(ctx context.Context, businessID string) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.cookies.PointerName,
		Value:    businessID + "." + s.sign(businessID),
		Path:     s.cookies.Path,
		Domain:   s.cookies.Domain,
		Secure:   s.cookies.Secure,
		HttpOnly: true,
		SameSite: s.cookies.SameSite,
		MaxAge:   s.cookies.MaxAge,
	})
	return nil
}

// Clear expires the pointer cookie
func (s *CookiePointerStore) Clear(ctx context.Context) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.cookies.PointerName,
		Value:    "",
		Path:     s.cookies.Path,
		Domain:   s.cookies.Domain,
		Secure:   s.cookies.Secure,
		HttpOnly: true,
		SameSite: s.cookies.SameSite,
		MaxAge:   -1,
	})
	return nil
}

func (s *CookiePointerStore) sign(businessID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(businessID))
	return hex.EncodeToString(mac.Sum(nil))
}
