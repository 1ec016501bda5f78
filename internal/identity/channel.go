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
	"regexp"
	"strings"
)

// Channel is an identity delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ClassifyIdentifier determines the channel for a submitted identifier.
// Anything matching an email pattern is email; everything else is treated
// as a phone number and normalized with the default dial code.
func ClassifyIdentifier(identifier, defaultDialCode string) (Channel, string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", "", ErrInvalidIdentifier
	}

	if emailPattern.MatchString(identifier) {
		return ChannelEmail, strings.ToLower(identifier), nil
	}

	normalized, err := normalizePhone(identifier, defaultDialCode)
	if err != nil {
		return "", "", err
	}
	return ChannelPhone, normalized, nil
}

func normalizePhone(raw, defaultDialCode string) (string, error) {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			// separators users type, dropped
		default:
			return "", ErrInvalidIdentifier
		}
	}

	number := b.String()
	if !strings.HasPrefix(number, "+") {
		number = defaultDialCode + number
	}

	// E.164: up to 15 digits after the '+'; anything under 8 total cannot
	// be a dialable number in any region we serve.
	digits := len(number) - 1
	if digits < 8 || digits > 15 {
		return "", ErrInvalidIdentifier
	}
	return number, nil
}
