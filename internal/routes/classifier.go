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

package routes

import "strings"

// Class is the authorization classification of a request path.
type Class int

const (
	// Public paths bypass session resolution entirely.
	Public Class = iota
	// Protected paths require an authenticated session.
	Protected
	// AuthOnly paths (login, signup) are for unauthenticated visitors only.
	AuthOnly
)

// String returns the classification name for logging
func (c Class) String() string {
	switch c {
	case Protected:
		return "protected"
	case AuthOnly:
		return "auth-only"
	default:
		return "public"
	}
}

// staticExtensions are excluded from classification regardless of prefix
// overlap; assets under protected prefixes must still load on public pages.
var staticExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".svg": {}, ".ico": {},
	".css": {}, ".js": {}, ".woff": {}, ".woff2": {},
}

// Classifier maps request paths to classes. It is pure and does no I/O;
// matching is case-sensitive exact-or-prefix-with-trailing-slash.
type Classifier struct {
	protectedPrefixes []string
	authOnlyPaths     []string
}

// NewClassifier creates a classifier from fixed route lists
func NewClassifier(protectedPrefixes, authOnlyPaths []string) *Classifier {
	return &Classifier{
		protectedPrefixes: protectedPrefixes,
		authOnlyPaths:     authOnlyPaths,
	}
}

// DefaultClassifier covers the application's page routes
func DefaultClassifier() *Classifier {
	return NewClassifier(
		[]string{"/dashboard", "/inventory", "/bills", "/parties", "/settings", "/reports"},
		[]string{"/login", "/signup", "/verify"},
	)
}

// Classify returns the class for a request path
func (c *Classifier) Classify(path string) Class {
	if isStaticAsset(path) {
		return Public
	}

	for _, p := range c.authOnlyPaths {
		if path == p {
			return AuthOnly
		}
	}

	for _, prefix := range c.protectedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return Protected
		}
	}

	return Public
}

func isStaticAsset(path string) bool {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || strings.ContainsRune(path[dot:], '/') {
		return false
	}
	_, ok := staticExtensions[path[dot:]]
	return ok
}
