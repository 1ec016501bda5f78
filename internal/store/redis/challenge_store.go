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

package redis

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgergate/ledgergate/internal/identity"
	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "otp"

// ChallengeStore implements identity.ChallengeStore on Redis. The key
// layout is otp:{subject}:{channel}, so a plain SET replaces any active
// challenge for the pair and the Redis TTL enforces expiry server-side.
type ChallengeStore struct {
	client      *redis.Client
	maxAttempts int
}

// NewChallengeStore creates a Redis-backed challenge store
func NewChallengeStore(client *redis.Client, maxAttempts int) *ChallengeStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ChallengeStore{client: client, maxAttempts: maxAttempts}
}

func (s *ChallengeStore) key(subject string, channel identity.Channel) string {
	return challengeKeyPrefix + ":" + subject + ":" + string(channel)
}

type challengeRecord struct {
	Subject    string   `json:"subject"`
	Channel    string   `json:"channel"`
	Target     string   `json:"target"`
	CodeDigest [32]byte `json:"code_digest"`
	IssuedAt   int64    `json:"issued_at"`
	ExpiresAt  int64    `json:"expires_at"`
	Attempts   int      `json:"attempts"`
}

// Save stores the challenge, replacing any active one for the same
// subject and channel.
func (s *ChallengeStore) Save(ctx context.Context, challenge *identity.Challenge, ttl time.Duration) error {
	record := challengeRecord{
		Subject:    challenge.Subject,
		Channel:    string(challenge.Channel),
		Target:     challenge.Target,
		CodeDigest: challenge.CodeDigest,
		IssuedAt:   challenge.IssuedAt.Unix(),
		ExpiresAt:  challenge.ExpiresAt.Unix(),
		Attempts:   challenge.Attempts,
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	if err := s.client.Set(ctx, s.key(challenge.Subject, challenge.Channel), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}

	return nil
}

// Consume verifies a digest against the active challenge. The whole
// read-check-write runs under WATCH so a concurrent resend or parallel
// attempt restarts the check instead of clobbering the attempt counter.
func (s *ChallengeStore) Consume(ctx context.Context, subject string, channel identity.Channel, digest [32]byte) (*identity.Challenge, error) {
	const maxRetries = 4
	key := s.key(subject, channel)

	for i := 0; i < maxRetries; i++ {
		var matched *identity.Challenge

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			var record challengeRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("failed to decode challenge: %w", err)
			}

			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return identity.ErrChallengeExpired
			}

			if subtle.ConstantTimeCompare(record.CodeDigest[:], digest[:]) != 1 {
				record.Attempts++
				if record.Attempts >= s.maxAttempts {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return identity.ErrTooManyAttempts
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					if err := txDelete(ctx, tx, key); err != nil {
						return err
					}
					return identity.ErrChallengeExpired
				}

				updated, err := json.Marshal(record)
				if err != nil {
					return fmt.Errorf("failed to encode challenge: %w", err)
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return identity.ErrInvalidCode
			}

			if err := txDelete(ctx, tx, key); err != nil {
				return err
			}

			matched = &identity.Challenge{
				Subject:    record.Subject,
				Channel:    identity.Channel(record.Channel),
				Target:     record.Target,
				CodeDigest: record.CodeDigest,
				IssuedAt:   time.Unix(record.IssuedAt, 0),
				ExpiresAt:  time.Unix(record.ExpiresAt, 0),
				Attempts:   record.Attempts,
			}
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, identity.ErrNoActiveChallenge
			case errors.Is(err, identity.ErrChallengeExpired),
				errors.Is(err, identity.ErrInvalidCode),
				errors.Is(err, identity.ErrTooManyAttempts):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", identity.ErrIdentityLookup, err)
			}
		}

		return matched, nil
	}

	return nil, identity.ErrNoActiveChallenge
}

// Delete removes the active challenge, if any
func (s *ChallengeStore) Delete(ctx context.Context, subject string, channel identity.Channel) error {
	if err := s.client.Del(ctx, s.key(subject, channel)).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}
