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
	"errors"
	"fmt"
	"sync"
)

// ErrInFlight is returned when a mutation targets an id that already has
// one running.
var ErrInFlight = errors.New("query: mutation already in flight")

// Mutate runs fn and, if it succeeds, invalidates every key of entities.
func Mutate[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error), entities ...string) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if len(entities) > 0 {
		c.Invalidate(ctx, entities...)
	}
	return v, nil
}

// MutateFor is Mutate for a single record. While it runs, Pending(entity,
// id) reports true and any other MutateFor on the same record fails with
// ErrInFlight. The flag is cleared however fn returns.
func MutateFor[T any](ctx context.Context, c *Client, entity string, id int, fn func(context.Context) (T, error), invalidate ...string) (T, error) {
	var zero T
	if !c.acquire(entity, id) {
		return zero, fmt.Errorf("%s %d: %w", entity, id, ErrInFlight)
	}
	defer c.release(entity, id)

	return Mutate(ctx, c, fn, invalidate...)
}

// Pending reports whether a mutation of entity id is running.
func (c *Client) Pending(entity string, id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[pendingKey{entity, id}]
	return ok
}

// OnPendingChange calls fn whenever a record starts or stops having a
// mutation in flight.
func (c *Client) OnPendingChange(fn func(entity string, id int, pending bool)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextObsID++
	id := c.nextObsID
	c.pendObs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.pendObs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) acquire(entity string, id int) bool {
	c.mu.Lock()
	k := pendingKey{entity, id}
	if _, busy := c.pending[k]; busy {
		c.mu.Unlock()
		return false
	}
	c.pending[k] = struct{}{}
	obs := c.pendingObserversLocked()
	c.mu.Unlock()

	for _, fn := range obs {
		fn(entity, id, true)
	}
	return true
}

func (c *Client) release(entity string, id int) {
	c.mu.Lock()
	delete(c.pending, pendingKey{entity, id})
	obs := c.pendingObserversLocked()
	c.mu.Unlock()

	for _, fn := range obs {
		fn(entity, id, false)
	}
}

func (c *Client) pendingObserversLocked() []func(string, int, bool) {
	obs := make([]func(string, int, bool), 0, len(c.pendObs))
	for _, fn := range c.pendObs {
		obs = append(obs, fn)
	}
	return obs
}
