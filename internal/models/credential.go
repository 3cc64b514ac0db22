// Copyright (c) 2026 John Earle
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://github.com/yourusername/bcem/blob/main/LICENSE
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the authenticated operator's client-side identity.
//
// This struct's JSON form is what the credential persisters write to
// disk, Redis and Postgres. Field names must stay stable across releases
// or existing sessions stop loading.
type Credential struct {
	AccessToken string    `json:"accessToken"`
	Role        string    `json:"role,omitempty"`
	ID          int       `json:"id,omitempty"`
	Email       string    `json:"email,omitempty"`
	Name        string    `json:"name,omitempty"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	IsAdmin     bool      `json:"isAdmin,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
}

// Authenticated reports whether the credential carries an access token.
func (c Credential) Authenticated() bool {
	return c.AccessToken != ""
}

// DisplayName prefers the explicit name, then first+last, then the role.
func (c Credential) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if full := strings.TrimSpace(c.FirstName + " " + c.LastName); full != "" {
		return full
	}
	return c.Role
}

// Token converts the credential to an oauth2 bearer token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}
