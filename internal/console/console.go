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

// Package console is what an operator front end talks to: sign-in, the
// ticket inbox and user administration, with reads cached and writes
// invalidating what they change.
package console

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bcem/deskconsole/internal/api"
	"github.com/bcem/deskconsole/internal/credential"
	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/query"
	"github.com/bcem/deskconsole/internal/schema"
)

// Query entities.
const (
	EntityTickets = "tickets"
	EntityUsers   = "users"
)

var (
	// ErrSignedOut is returned by operations that need a session.
	ErrSignedOut = errors.New("console: not signed in")
	// ErrAdminRequired is returned when a non-admin session attempts user
	// administration.
	ErrAdminRequired = errors.New("console: administrator session required")
	// ErrSelfTarget is returned when an administrator tries to delete or
	// demote their own account.
	ErrSelfTarget = errors.New("console: operation not allowed on own account")
	// ErrSelfUnknown is returned when a self-targeting check cannot tell
	// which account belongs to the session.
	ErrSelfUnknown = errors.New("console: cannot determine own account")
)

// Console binds the API to a session store and a query cache.
type Console struct {
	api     *api.Client
	store   *credential.Store
	queries *query.Client
	logger  *slog.Logger
}

// New returns a Console. Signing out (explicitly or because the server
// rejected the token) empties the query cache.
func New(apiClient *api.Client, store *credential.Store, queries *query.Client, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Console{api: apiClient, store: store, queries: queries, logger: logger}
	store.Subscribe(func(ev credential.Event) {
		if ev.Kind == credential.EventCleared {
			queries.Reset()
		}
	})
	return c
}

// Queries exposes the cache for observers.
func (c *Console) Queries() *query.Client { return c.queries }

// SignIn exchanges email and password for a session.
func (c *Console) SignIn(ctx context.Context, email, password string) (models.Credential, error) {
	req := schema.SignInRequest{Email: email, Password: password}
	req.Normalize()
	resp, err := c.api.SignIn(ctx, req)
	if err != nil {
		return models.Credential{}, fmt.Errorf("sign in: %w", err)
	}
	if resp.AccessToken == "" {
		return models.Credential{}, errors.New("sign in: server returned no token")
	}

	cred := credential.FromToken(resp.AccessToken, resp.Role)
	if cred.Email == "" {
		cred.Email = req.Email
	}
	c.store.Set(cred)
	c.logger.Info("signed in", "user_id", cred.ID, "role", cred.Role, "admin", cred.IsAdmin)
	return cred, nil
}

// Logout ends the session.
func (c *Console) Logout() {
	c.store.Clear()
	c.logger.Info("signed out")
}

// Session returns the current credential.
func (c *Console) Session() (models.Credential, bool) {
	return c.store.Get()
}

// OnSessionChange calls fn after every sign-in and sign-out.
func (c *Console) OnSessionChange(fn func(credential.Event)) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

func (c *Console) requireSession() (models.Credential, error) {
	cred, ok := c.store.Get()
	if !ok {
		return models.Credential{}, ErrSignedOut
	}
	return cred, nil
}

// sessionKey is the cache key for a read made under the current session.
// Keys from different sessions never match, so a shared second-level cache
// cannot hand one operator's results to another.
func (c *Console) sessionKey(entity string, params any) (query.Key, error) {
	cred, err := c.requireSession()
	if err != nil {
		return query.Key{}, err
	}
	return query.NewKey(entity, params).Within(sessionScope(cred)), nil
}

func sessionScope(cred models.Credential) string {
	sum := sha256.Sum256([]byte(cred.AccessToken))
	return hex.EncodeToString(sum[:8])
}

func (c *Console) requireAdmin() (models.Credential, error) {
	cred, err := c.requireSession()
	if err != nil {
		return cred, err
	}
	if !cred.IsAdmin {
		return cred, ErrAdminRequired
	}
	return cred, nil
}

// HasNextPage reports whether a page holding n items of a requested
// amount may be followed by another.
func HasNextPage(n, amount int) bool {
	return amount > 0 && n >= amount
}
