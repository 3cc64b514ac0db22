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
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/deskconsole/internal/models"
)

// keyPrefix namespaces session keys in Redis.
const keyPrefix = "deskconsole:session:"

// RedisPersister shares one session between the CLI and the watcher. The
// key expires with the token when the credential carries an expiry.
type RedisPersister struct {
	rdb redis.Cmdable
	key string
	now func() time.Time
}

// NewRedisPersister stores the session for profile under a namespaced key.
func NewRedisPersister(rdb redis.Cmdable, profile string) *RedisPersister {
	return &RedisPersister{
		rdb: rdb,
		key: keyPrefix + profile,
		now: time.Now,
	}
}

func (p *RedisPersister) Load(ctx context.Context) (models.Credential, bool, error) {
	data, err := p.rdb.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Credential{}, false, nil
	}
	if err != nil {
		return models.Credential{}, false, fmt.Errorf("redis GET %s: %w", p.key, err)
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return models.Credential{}, false, fmt.Errorf("decode session: %w", err)
	}
	return cred, true, nil
}

func (p *RedisPersister) Save(ctx context.Context, cred models.Credential) error {
	var ttl time.Duration
	if !cred.ExpiresAt.IsZero() {
		ttl = cred.ExpiresAt.Sub(p.now())
		if ttl <= 0 {
			// Already expired: storing it would only resurrect a dead session.
			return p.Delete(ctx)
		}
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := p.rdb.Set(ctx, p.key, string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context) error {
	if err := p.rdb.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", p.key, err)
	}
	return nil
}
