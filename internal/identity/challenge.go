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
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Challenge errors
var (
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrTooManyAttempts   = errors.New("too many verification attempts")
)

// Challenge is a pending one-time-passcode verification. Only the code
// digest is ever stored; the raw code exists in transit to the user and
// nowhere else.
type Challenge struct {
	Subject    string
	Channel    Channel
	Target     string
	CodeDigest [32]byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Attempts   int
}

// ChallengeStore persists challenge records. The store enforces at most
// one active challenge per (subject, channel): Save for an existing pair
// atomically replaces, and thereby invalidates, the previous challenge.
type ChallengeStore interface {
	// Save stores the challenge with the given time-to-live, replacing
	// any active challenge for the same subject and channel.
	Save(ctx context.Context, challenge *Challenge, ttl time.Duration) error

	// Consume verifies a code digest against the active challenge.
	// A matching digest deletes the record and returns it. A mismatch
	// counts an attempt and returns ErrInvalidCode, or ErrTooManyAttempts
	// once the store's limit is reached. Expired records are removed and
	// reported as ErrChallengeExpired.
	Consume(ctx context.Context, subject string, channel Channel, digest [32]byte) (*Challenge, error)

	// Delete removes the active challenge, if any
	Delete(ctx context.Context, subject string, channel Channel) error
}

// HashCode digests a verification code for storage and comparison
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// GenerateCode produces a numeric one-time passcode
func GenerateCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", fmt.Errorf("unsupported otp length %d", digits)
	}
	code := make([]byte, digits)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
