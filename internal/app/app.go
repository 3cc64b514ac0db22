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

// Package app assembles a Console from configuration: shared connections,
// the session store, the transport and the query cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/deskconsole/internal/api"
	"github.com/bcem/deskconsole/internal/config"
	"github.com/bcem/deskconsole/internal/console"
	"github.com/bcem/deskconsole/internal/credential"
	"github.com/bcem/deskconsole/internal/query"
	"github.com/bcem/deskconsole/internal/transport"
)

// App is a wired console and the connections behind it.
type App struct {
	Console *console.Console
	Store   *credential.Store
	// Redis and DB are nil unless configured.
	Redis *redis.Client
	DB    *pgxpool.Pool
}

// Open connects to what cfg names and builds the console.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		a.Redis = redis.NewClient(opt)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis")
	}

	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		a.DB = pool
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL")
	}

	backend := credential.Backend{
		Kind:         cfg.Session.Backend,
		Path:         cfg.Session.Path,
		Recipient:    cfg.Session.Recipient,
		IdentityFile: cfg.Session.IdentityFile,
		Profile:      cfg.Session.Profile,
	}
	if a.Redis != nil {
		backend.Redis = a.Redis
	}
	if a.DB != nil {
		backend.DB = a.DB
	}
	persister, err := credential.OpenPersister(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	a.Store = credential.Open(ctx, persister, logger)

	tc, err := transport.New(transport.Config{
		BaseURL:         cfg.API.BaseURL,
		WithCredentials: cfg.API.WithCredentials,
		Timeout:         cfg.API.Timeout,
		RateLimit:       cfg.API.RateLimit,
		Burst:           cfg.API.Burst,
		Logger:          logger,
	}, a.Store)
	if err != nil {
		return nil, err
	}

	factory := api.NewFactory(tc, logger).OnMismatch(func(m api.Mismatch) {
		logger.Debug("response drift", "endpoint", m.Endpoint, "body", truncate(m.Body, 512))
	})

	qcfg := query.Config{Freshness: cfg.CacheFreshness, Logger: logger}
	if a.Redis != nil {
		qcfg.Level2 = query.NewRedisLevel(a.Redis, "")
	}

	a.Console = console.New(api.NewClient(factory), a.Store, query.New(qcfg), logger)
	ok = true
	return a, nil
}

// Ping checks every open connection.
func (a *App) Ping(ctx context.Context) error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
