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

package credential

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bcem/deskconsole/internal/models"
)

// Claims is the identity carried in the API's access tokens. MSRole is
// the role claim ASP.NET Core issues by default.
type Claims struct {
	UserID     flexibleID `json:"uid,omitempty"`
	Name       string     `json:"name,omitempty"`
	Email      string     `json:"email,omitempty"`
	GivenName  string     `json:"given_name,omitempty"`
	FamilyName string     `json:"family_name,omitempty"`
	Role       string     `json:"role,omitempty"`
	MSRole     string     `json:"http://schemas.microsoft.com/ws/2008/06/identity/claims/role,omitempty"`
	IsAdmin    bool       `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// flexibleID accepts a numeric or string-encoded integer.
type flexibleID int

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Non-numeric ids are not usable for self-targeting checks.
		return nil
	}
	*f = flexibleID(n)
	return nil
}

// FromToken builds a credential for accessToken. A JWT's claims fill in
// the identity; the signature is not checked because the API verifies
// every request. Opaque tokens yield a credential with only the token
// and role set. A non-empty role argument overrides the token's role.
func FromToken(accessToken, role string) models.Credential {
	cred := models.Credential{AccessToken: accessToken, Role: role}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		cred.IsAdmin = strings.EqualFold(role, "admin")
		return cred
	}

	cred.ID = int(claims.UserID)
	if cred.ID == 0 {
		if n, err := strconv.Atoi(claims.Subject); err == nil {
			cred.ID = n
		}
	}
	cred.Name = claims.Name
	cred.Email = strings.ToLower(strings.TrimSpace(claims.Email))
	cred.FirstName = claims.GivenName
	cred.LastName = claims.FamilyName
	if cred.Role == "" {
		cred.Role = firstNonEmpty(claims.Role, claims.MSRole)
	}
	cred.IsAdmin = claims.IsAdmin || strings.EqualFold(cred.Role, "admin")
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
