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

package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SecondLevel is a cache shared between processes, consulted when the
// local entry is missing or too old.
type SecondLevel interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error
	// Invalidate drops every key of entity.
	Invalidate(ctx context.Context, entity string) error
}

// cached is the stored form of a result.
type cached struct {
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

func fromLevel2[T any](ctx context.Context, c *Client, key Key) (T, bool) {
	var zero T
	if c.l2 == nil || c.isStale(key) {
		return zero, false
	}

	raw, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		c.logger.Warn("shared cache read failed", "key", key.String(), "error", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}

	var env cached
	var data T
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("dropping unreadable shared cache entry", "key", key.String(), "error", err)
		return zero, false
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		c.logger.Warn("dropping unreadable shared cache entry", "key", key.String(), "error", err)
		return zero, false
	}
	if c.now().Sub(env.StoredAt) >= c.freshness {
		return zero, false
	}

	c.adopt(key, data, env.StoredAt)
	return data, true
}

func toLevel2(ctx context.Context, c *Client, key Key, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("result not cacheable", "key", key.String(), "error", err)
		return
	}
	raw, err := json.Marshal(cached{StoredAt: c.now(), Data: data})
	if err != nil {
		return
	}
	if err := c.l2.Set(ctx, key, raw, c.freshness); err != nil {
		c.logger.Warn("shared cache write failed", "key", key.String(), "error", err)
	}
}

func (c *Client) isStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.stale
}

// adopt stores a result read from the shared cache as if it had been
// fetched at storedAt.
func (c *Client) adopt(key Key, v any, storedAt time.Time) {
	c.mu.Lock()
	c.seq++
	e := c.entryLocked(key)
	e.storedSeq = c.seq
	e.status = StatusSuccess
	e.data = v
	e.err = nil
	e.updatedAt = storedAt
	e.stale = false
	notify := c.notifierLocked(e)
	c.mu.Unlock()

	notify()
}

// RedisLevel keeps results in Redis. Each entity has a generation
// counter that is part of every key, so invalidating an entity is one
// INCR and old entries age out on their TTL.
type RedisLevel struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisLevel returns a RedisLevel storing under prefix
// ("deskconsole:cache" when empty).
func NewRedisLevel(rdb redis.Cmdable, prefix string) *RedisLevel {
	if prefix == "" {
		prefix = "deskconsole:cache"
	}
	return &RedisLevel{rdb: rdb, prefix: prefix}
}

func (r *RedisLevel) generationKey(entity string) string {
	return fmt.Sprintf("%s:%s:gen", r.prefix, entity)
}

func (r *RedisLevel) dataKey(key Key, gen string) string {
	sum := sha256.Sum256([]byte(key.Scope + "\x00" + key.Params))
	return fmt.Sprintf("%s:%s:%s:%s", r.prefix, key.Entity, gen, hex.EncodeToString(sum[:12]))
}

func (r *RedisLevel) generation(ctx context.Context, entity string) (string, error) {
	gen, err := r.rdb.Get(ctx, r.generationKey(entity)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("read generation: %w", err)
	}
	return gen, nil
}

// Get implements SecondLevel.
func (r *RedisLevel) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	gen, err := r.generation(ctx, key.Entity)
	if err != nil {
		return nil, false, err
	}
	raw, err := r.rdb.Get(ctx, r.dataKey(key, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, true, nil
}

// Set implements SecondLevel.
func (r *RedisLevel) Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error {
	gen, err := r.generation(ctx, key.Entity)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.dataKey(key, gen), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Invalidate implements SecondLevel.
func (r *RedisLevel) Invalidate(ctx context.Context, entity string) error {
	if err := r.rdb.Incr(ctx, r.generationKey(entity)).Err(); err != nil {
		return fmt.Errorf("bump generation for %s: %w", entity, err)
	}
	return nil
}
