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

package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultSeenTTL is how long a ticket stays marked as alerted.
	DefaultSeenTTL = 7 * 24 * time.Hour

	seenPrefix = "deskconsole:seen:"
)

// SeenFilter remembers which tickets have already been reported.
type SeenFilter interface {
	// IsNew reports whether id has not been seen, marking it seen if so.
	IsNew(ctx context.Context, id string) (bool, error)
	// Forget clears the mark so id is reported again.
	Forget(ctx context.Context, id string) error
}

// RedisSeen is a SeenFilter shared by every watcher on one Redis.
type RedisSeen struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisSeen returns a RedisSeen. A zero ttl means DefaultSeenTTL.
func NewRedisSeen(rdb redis.Cmdable, ttl time.Duration) *RedisSeen {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &RedisSeen{rdb: rdb, ttl: ttl}
}

// IsNew marks id with SETNX, so exactly one watcher wins.
func (f *RedisSeen) IsNew(ctx context.Context, id string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, seenPrefix+id, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("seen SETNX: %w", err)
	}
	return set, nil
}

// Forget implements SeenFilter.
func (f *RedisSeen) Forget(ctx context.Context, id string) error {
	if err := f.rdb.Del(ctx, seenPrefix+id).Err(); err != nil {
		return fmt.Errorf("seen DEL: %w", err)
	}
	return nil
}

// MemorySeen is a process-local SeenFilter.
type MemorySeen struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemorySeen returns a MemorySeen. A zero ttl means DefaultSeenTTL.
func NewMemorySeen(ttl time.Duration) *MemorySeen {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &MemorySeen{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

// IsNew implements SeenFilter.
func (f *MemorySeen) IsNew(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if exp, ok := f.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	f.seen[id] = now.Add(f.ttl)

	for k, exp := range f.seen {
		if !now.Before(exp) {
			delete(f.seen, k)
		}
	}
	return true, nil
}

// Forget implements SeenFilter.
func (f *MemorySeen) Forget(_ context.Context, id string) error {
	f.mu.Lock()
	delete(f.seen, id)
	f.mu.Unlock()
	return nil
}
