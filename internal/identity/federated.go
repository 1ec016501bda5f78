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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ledgergate/ledgergate/internal/audit"
	"github.com/ledgergate/ledgergate/internal/id"
	"github.com/ledgergate/ledgergate/internal/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderConfig describes one federated identity provider.
type ProviderConfig struct {
	OAuth       *oauth2.Config
	UserInfoURL string
}

// GoogleProvider returns the standard Google OIDC provider configuration
func GoogleProvider(clientID, clientSecret, redirectURL string) ProviderConfig {
	return ProviderConfig{
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

// RegisterProvider makes a federated provider available for sign-in
func (s *Service) RegisterProvider(name string, provider ProviderConfig) {
	s.providers[name] = provider
}

// SignInFederated builds the provider's authorization URL. The caller
// binds state to the client (cookie) and verifies it on callback.
func (s *Service) SignInFederated(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	return p.OAuth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

type federatedUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// CompleteFederated exchanges the authorization code, reads the
// provider's user info, and issues a session for the matched or newly
// created account. The federated assertion proves the email channel.
func (s *Service) CompleteFederated(ctx context.Context, provider, code string) (string, *session.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", nil, ErrUnknownProvider
	}

	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("%w: token exchange failed: %v", ErrIdentityLookup, err)
	}

	info, err := fetchUserInfo(ctx, p, token)
	if err != nil {
		return "", nil, err
	}
	if info.Email == "" || !info.EmailVerified {
		return "", nil, fmt.Errorf("provider %s did not assert a verified email", provider)
	}

	account, err := s.accounts.GetByIdentifier(ctx, ChannelEmail, info.Email)
	switch {
	case err == nil:
	case errors.Is(err, ErrAccountNotFound):
		account = &Account{
			ID:      id.NewUUIDv7(),
			Email:   info.Email,
			Name:    info.Name,
			Picture: info.Picture,
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrIdentityLookup, err)
		}
	default:
		return "", nil, fmt.Errorf("%w: %v", ErrIdentityLookup, err)
	}

	if !account.EmailVerified {
		if err := s.accounts.SetChannelVerified(ctx, account.ID, ChannelEmail); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrIdentityLookup, err)
		}
		account.EmailVerified = true
	}

	signed, sess, err := s.issueSession(account)
	if err != nil {
		return "", nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSessionIssued,
		ActorID:  account.ID,
		Resource: "session",
		Metadata: map[string]any{"provider": provider},
	})
	return signed, sess, nil
}

func fetchUserInfo(ctx context.Context, p ProviderConfig, token *oauth2.Token) (*federatedUserInfo, error) {
	client := p.OAuth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo fetch failed: %v", ErrIdentityLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned %d", ErrIdentityLookup, resp.StatusCode)
	}

	var info federatedUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: invalid userinfo payload: %v", ErrIdentityLookup, err)
	}
	return &info, nil
}
