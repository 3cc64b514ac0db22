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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bcem/deskconsole/internal/models"
)

// DB is the subset of *pgxpool.Pool the Postgres persister uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresPersister keeps one session row per profile in operator_sessions.
type PostgresPersister struct {
	db      DB
	profile string
}

// NewPostgresPersister creates a persister for profile backed by db.
// It ensures the operator_sessions table exists on creation.
func NewPostgresPersister(ctx context.Context, db DB, profile string) (*PostgresPersister, error) {
	p := &PostgresPersister{db: db, profile: profile}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure session schema: %w", err)
	}
	slog.Info("session store initialised", "backend", "postgres", "profile", profile)
	return p, nil
}

func (p *PostgresPersister) ensureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS operator_sessions (
			profile     TEXT PRIMARY KEY,
			credential  JSONB NOT NULL,
			expires_at  TIMESTAMPTZ,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON operator_sessions(expires_at);
	`)
	return err
}

// Load returns the profile's session unless it has expired.
func (p *PostgresPersister) Load(ctx context.Context) (models.Credential, bool, error) {
	row := p.db.QueryRow(ctx, `
		SELECT credential
		FROM operator_sessions
		WHERE profile = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, p.profile)

	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Credential{}, false, nil
	}
	if err != nil {
		return models.Credential{}, false, fmt.Errorf("select session: %w", err)
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return models.Credential{}, false, fmt.Errorf("decode session: %w", err)
	}
	return cred, true, nil
}

// Save upserts the profile's session.
func (p *PostgresPersister) Save(ctx context.Context, cred models.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	var expiresAt *time.Time
	if !cred.ExpiresAt.IsZero() {
		expiresAt = &cred.ExpiresAt
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO operator_sessions (profile, credential, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (profile) DO UPDATE SET
			credential = EXCLUDED.credential,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, p.profile, data, expiresAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Delete removes the profile's session row.
func (p *PostgresPersister) Delete(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `DELETE FROM operator_sessions WHERE profile = $1`, p.profile)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
