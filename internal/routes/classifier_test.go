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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		path string
		want Class
	}{
		{"/", Public},
		{"/about", Public},
		{"/pricing", Public},

		{"/login", AuthOnly},
		{"/signup", AuthOnly},
		{"/verify", AuthOnly},
		// Auth-only matching is exact, not prefix.
		{"/login/help", Public},
		{"/signupwizard", Public},

		{"/dashboard", Protected},
		{"/dashboard/", Protected},
		{"/dashboard/sales", Protected},
		{"/inventory/items/42", Protected},
		{"/bills", Protected},
		{"/parties", Protected},
		{"/settings/profile", Protected},
		{"/reports/gst", Protected},
		// Prefix matching respects path segments.
		{"/dashboards", Public},
		{"/billsong", Public},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.path), "path %q", tt.path)
	}
}

func TestClassifyStaticAssets(t *testing.T) {
	c := DefaultClassifier()

	// Static assets are public even under protected prefixes.
	for _, path := range []string{
		"/logo.png",
		"/dashboard/chart.svg",
		"/settings/theme.css",
		"/reports/export.js",
		"/fonts/inter.woff2",
		"/favicon.ico",
	} {
		assert.Equal(t, Public, c.Classify(path), "path %q", path)
	}

	// Unknown extensions and dotted directories still classify normally.
	assert.Equal(t, Protected, c.Classify("/dashboard/report.pdf.view"))
	assert.Equal(t, Protected, c.Classify("/dashboard/v1.2/sales"))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "public", Public.String())
	assert.Equal(t, "protected", Protected.String())
	assert.Equal(t, "auth-only", AuthOnly.String())
}
