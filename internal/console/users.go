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

package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/query"
	"github.com/bcem/deskconsole/internal/schema"
)

const (
	defaultUserPage   = 1
	defaultUserAmount = 20

	// selfScanPageSize is the page size used to find the session's own
	// account by email.
	selfScanPageSize = 100
)

// Users returns one page of operator accounts.
func (c *Console) Users(ctx context.Context, page, amount int) ([]models.User, error) {
	if page == 0 {
		page = defaultUserPage
	}
	if amount == 0 {
		amount = defaultUserAmount
	}
	q := schema.UserQuery{Page: page, Amount: amount}
	key, err := c.sessionKey(EntityUsers, q)
	if err != nil {
		return nil, err
	}
	return query.Fetch(ctx, c.queries, key, func(ctx context.Context) ([]models.User, error) {
		return c.api.ListUsers(ctx, q)
	})
}

// CreateUser adds an operator account.
func (c *Console) CreateUser(ctx context.Context, req schema.CreateUserRequest) error {
	if _, err := c.requireAdmin(); err != nil {
		return err
	}
	_, err := query.Mutate(ctx, c.queries, func(ctx context.Context) (schema.Empty, error) {
		return c.api.CreateUser(ctx, req)
	}, EntityUsers)
	if err != nil {
		return fmt.Errorf("create user %s: %w", req.Email, err)
	}
	c.logger.Info("user created", "email", req.Email)
	return nil
}

// UpdateUser replaces an account's details. An administrator may not
// remove their own admin flag or mark themselves deleted.
func (c *Console) UpdateUser(ctx context.Context, req schema.UpdateUserRequest) error {
	self, err := c.requireAdmin()
	if err != nil {
		return err
	}
	if !req.IsAdmin || req.IsDeleted {
		selfID, err := c.selfID(ctx, self)
		if err != nil {
			return err
		}
		if req.ID == selfID {
			return ErrSelfTarget
		}
	}
	_, err = query.MutateFor(ctx, c.queries, EntityUsers, req.ID, func(ctx context.Context) (schema.Empty, error) {
		return c.api.UpdateUser(ctx, req)
	}, EntityUsers)
	if err != nil {
		return fmt.Errorf("update user %d: %w", req.ID, err)
	}
	c.logger.Info("user updated", "user_id", req.ID, "admin", req.IsAdmin)
	return nil
}

// ToggleUserDeleted flips an account between deleted and restored. The
// server decides the direction.
func (c *Console) ToggleUserDeleted(ctx context.Context, userID int) error {
	self, err := c.requireAdmin()
	if err != nil {
		return err
	}
	selfID, err := c.selfID(ctx, self)
	if err != nil {
		return err
	}
	if userID == selfID {
		return ErrSelfTarget
	}
	_, err = query.MutateFor(ctx, c.queries, EntityUsers, userID, func(ctx context.Context) (schema.Empty, error) {
		return c.api.DeleteUser(ctx, schema.DeleteUserRequest{ID: userID})
	}, EntityUsers)
	if err != nil {
		return fmt.Errorf("toggle user %d: %w", userID, err)
	}
	c.logger.Info("user deleted flag toggled", "user_id", userID)
	return nil
}

// selfID returns the account id behind cred. Opaque tokens carry no id, so
// the account is looked up by the sign-in email; with neither the check
// fails closed.
func (c *Console) selfID(ctx context.Context, cred models.Credential) (int, error) {
	if cred.ID != 0 {
		return cred.ID, nil
	}
	if cred.Email == "" {
		return 0, ErrSelfUnknown
	}
	for page := 1; ; page++ {
		users, err := c.Users(ctx, page, selfScanPageSize)
		if err != nil {
			return 0, fmt.Errorf("resolve own account: %w", err)
		}
		for _, u := range users {
			if strings.EqualFold(u.Email, cred.Email) {
				return u.ID, nil
			}
		}
		if !HasNextPage(len(users), selfScanPageSize) {
			return 0, ErrSelfUnknown
		}
	}
}

// UserPending reports whether a change to userID is being saved.
func (c *Console) UserPending(userID int) bool {
	return c.queries.Pending(EntityUsers, userID)
}

// Attachment downloads a ticket attachment. Inline names with a cid:
// prefix are accepted.
func (c *Console) Attachment(ctx context.Context, name string) ([]byte, error) {
	if _, err := c.requireSession(); err != nil {
		return nil, err
	}
	data, err := c.api.DownloadAttachment(ctx, schema.AttachmentRequest{FileName: name})
	if err != nil {
		return nil, fmt.Errorf("download attachment %q: %w", name, err)
	}
	return data, nil
}
