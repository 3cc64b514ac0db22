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
	"errors"

	"golang.org/x/oauth2"
)

// ErrSignedOut is returned by the token source when the store is empty.
var ErrSignedOut = errors.New("credential: no operator signed in")

// TokenSource exposes the store's current token to oauth2-aware clients.
// It never refreshes: a missing token means the operator must sign in again.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: s}
}

type storeTokenSource struct {
	store *Store
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	cred, ok := ts.store.Get()
	if !ok || !cred.Authenticated() {
		return nil, ErrSignedOut
	}
	return cred.Token(), nil
}
