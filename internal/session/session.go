package session

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrTokenInvalid = errors.New("session token invalid")
	ErrTokenExpired = errors.New("session token expired")
)

// Channel names carried in verified-channel claims
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// Session is the identity a request operates as. It is decoded from the
// session credential on every request and never cached across requests.
type Session struct {
	Subject       string
	Name          string
	Picture       string
	Email         string
	Phone         string
	EmailVerified bool
	PhoneVerified bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// HasVerifiedChannel reports whether the given channel has been proven
// for this session. An email challenge never validates a phone claim
// or vice versa.
func (s *Session) HasVerifiedChannel(channel string) bool {
	switch channel {
	case ChannelEmail:
		return s.EmailVerified
	case ChannelPhone:
		return s.PhoneVerified
	default:
		return false
	}
}

// VerifiedChannels returns the set of proven channels
func (s *Session) VerifiedChannels() []string {
	var channels []string
	if s.EmailVerified {
		channels = append(channels, ChannelEmail)
	}
	if s.PhoneVerified {
		channels = append(channels, ChannelPhone)
	}
	return channels
}
