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

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec validates and extracts identity claims from a session token.
// It is stateless and safe for concurrent use.
type Codec struct {
	key      []byte
	issuer   string
	lifetime time.Duration
}

// NewCodec creates a session token codec. The signing key is derived from
// the master secret, never used raw.
func NewCodec(masterSecret []byte, issuer string, lifetime time.Duration) (*Codec, error) {
	key, err := DeriveKey(masterSecret, PurposeSessionToken)
	if err != nil {
		return nil, err
	}
	return &Codec{
		key:      key,
		issuer:   issuer,
		lifetime: lifetime,
	}, nil
}

// Lifetime returns the configured session lifetime
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// Issue signs a fresh token for the session, stamping issued-at and expiry.
func (c *Codec) Issue(s *Session) (string, error) {
	now := time.Now()
	s.IssuedAt = now
	s.ExpiresAt = now.Add(c.lifetime)

	claims := jwt.MapClaims{
		"iss":            c.issuer,
		"sub":            s.Subject,
		"iat":            now.Unix(),
		"exp":            s.ExpiresAt.Unix(),
		"name":           s.Name,
		"picture":        s.Picture,
		"email":          s.Email,
		"phone":          s.Phone,
		"email_verified": s.EmailVerified,
		"phone_verified": s.PhoneVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and extracts the session. It returns an error
// for any malformed, mis-signed, or expired credential; it never panics
// past this boundary.
func (c *Codec) Parse(tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	s := &Session{
		Subject:       stringClaim(claims, "sub"),
		Name:          stringClaim(claims, "name"),
		Picture:       stringClaim(claims, "picture"),
		Email:         stringClaim(claims, "email"),
		Phone:         stringClaim(claims, "phone"),
		EmailVerified: boolClaim(claims, "email_verified"),
		PhoneVerified: boolClaim(claims, "phone_verified"),
	}
	if s.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		s.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}

	return s, nil
}

// Rotate re-issues the token when less than half the lifetime remains.
// The bool reports whether a new credential was produced; callers attach
// it to the outgoing response even on pass-through paths.
func (c *Codec) Rotate(s *Session) (string, bool, error) {
	if time.Until(s.ExpiresAt) > c.lifetime/2 {
		return "", false, nil
	}
	token, err := c.Issue(s)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func boolClaim(claims jwt.MapClaims, key string) bool {
	if v, ok := claims[key].(bool); ok {
		return v
	}
	return false
}
