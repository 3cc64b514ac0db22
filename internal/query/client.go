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

// Package query caches read results by key and coordinates writes that make
// them stale.
//
// A read is identified by a Key (an entity name plus its parameters). While
// a stored result is younger than the freshness window it is served without
// a network call. Concurrent reads of the same key share one call. When two
// calls for a key overlap (a read started before an invalidation and one
// started after), the result of the call that started last is kept,
// whatever order they finish in.
//
// Mutations invalidate every key of the entities they touch on success.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultFreshness is how long a result is served from cache.
const DefaultFreshness = 5 * time.Minute

// Status is the lifecycle of a cached read.
type Status int

const (
	// StatusIdle: nothing has been fetched for the key yet.
	StatusIdle Status = iota
	// StatusLoading: the first fetch is in flight and there is no data.
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Key identifies a cached read.
type Key struct {
	Entity string
	Params string
	// Scope separates results that must not be shared, such as reads made
	// under different sessions. Empty means unscoped.
	Scope string
}

// NewKey builds a key from an entity and its parameters. Params are
// encoded as JSON, so equal structs (or maps) always give equal keys.
func NewKey(entity string, params any) Key {
	if params == nil {
		return Key{Entity: entity}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return Key{Entity: entity, Params: fmt.Sprintf("%v", params)}
	}
	return Key{Entity: entity, Params: string(b)}
}

// Within returns k restricted to scope.
func (k Key) Within(scope string) Key {
	k.Scope = scope
	return k
}

func (k Key) String() string {
	s := k.Entity
	if k.Scope != "" {
		s += "@" + k.Scope
	}
	if k.Params != "" {
		s += ":" + k.Params
	}
	return s
}

// State is what observers of a key see.
type State[T any] struct {
	Status Status
	// Data is the last successful result. It survives a later failed fetch.
	Data      T
	Err       error
	UpdatedAt time.Time
	// Stale is set once the key has been invalidated and not yet refetched.
	Stale bool
	// Fetching is true while any call for the key is in flight.
	Fetching bool
}

// Config configures a Client.
type Config struct {
	// Freshness defaults to DefaultFreshness.
	Freshness time.Duration
	// Level2 is an optional cache shared between processes.
	Level2 SecondLevel
	Logger *slog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// snapshot is an untyped copy of an entry, taken under the lock.
type snapshot struct {
	status    Status
	data      any
	err       error
	updatedAt time.Time
	stale     bool
	fetching  bool
}

type observer struct {
	id int
	fn func(snapshot)
}

type entry struct {
	snapshot
	inflight int
	// storedSeq is the start sequence of the result currently stored.
	storedSeq uint64
	// invalidSeq is the sequence at the last invalidation; results of
	// calls started before it are stored as stale.
	invalidSeq uint64
	observers  []observer
}

type pendingKey struct {
	entity string
	id     int
}

// Client is a keyed read cache with mutation tracking. It is safe for
// concurrent use.
type Client struct {
	freshness time.Duration
	l2        SecondLevel
	logger    *slog.Logger
	now       func() time.Time
	group     singleflight.Group

	mu        sync.Mutex
	seq       uint64
	nextObsID int
	entries   map[Key]*entry
	pending   map[pendingKey]struct{}
	pendObs   map[int]func(entity string, id int, pending bool)
}

// New returns a Client.
func New(cfg Config) *Client {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		freshness: cfg.Freshness,
		l2:        cfg.Level2,
		logger:    cfg.Logger,
		now:       cfg.Now,
		entries:   make(map[Key]*entry),
		pending:   make(map[pendingKey]struct{}),
		pendObs:   make(map[int]func(string, int, bool)),
	}
}

// Fetch returns the cached result for key while it is fresh, and otherwise
// calls fn. Concurrent callers for the same key share one call of fn.
// A caller whose ctx ends stops waiting; the shared call carries on.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.fresh(key); ok {
		if data, ok := v.(T); ok {
			return data, nil
		}
	}
	if data, ok := fromLevel2[T](ctx, c, key); ok {
		return data, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		seq := c.begin(key)
		v, err := fn(fctx)
		c.finish(fctx, key, seq, v, err)
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		data, _ := r.Val.(T)
		return data, r.Err
	}
}

// Refetch calls fn for key even if the cached result is still fresh.
func Refetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	c.markStale(key)
	return Fetch(ctx, c, key, fn)
}

// Snapshot returns the current state of key.
func Snapshot[T any](c *Client, key Key) State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[T]{}
	}
	return stateOf[T](e.snapshot)
}

// Observe calls fn with the current state of key and again after every
// change, until the returned function is called.
func Observe[T any](c *Client, key Key, fn func(State[T])) (unsubscribe func()) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.nextObsID++
	id := c.nextObsID
	e.observers = append(e.observers, observer{id: id, fn: func(s snapshot) { fn(stateOf[T](s)) }})
	current := e.snapshot
	c.mu.Unlock()

	fn(stateOf[T](current))

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e := c.entries[key]
			for i, o := range e.observers {
				if o.id == id {
					e.observers = append(e.observers[:i], e.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Invalidate marks every key of the given entities stale, so the next
// Fetch of each calls the network.
func (c *Client) Invalidate(ctx context.Context, entities ...string) {
	want := make(map[string]bool, len(entities))
	for _, e := range entities {
		want[e] = true
	}

	c.mu.Lock()
	c.seq++
	var notify []func()
	for key, e := range c.entries {
		if !want[key.Entity] {
			continue
		}
		e.invalidSeq = c.seq
		e.stale = true
		c.group.Forget(key.String())
		notify = append(notify, c.notifierLocked(e))
	}
	c.mu.Unlock()

	for _, n := range notify {
		n()
	}

	if c.l2 != nil {
		for _, entity := range entities {
			if err := c.l2.Invalidate(ctx, entity); err != nil {
				c.logger.Warn("failed to invalidate shared cache", "entity", entity, "error", err)
			}
		}
	}
	c.logger.Debug("invalidated queries", "entities", entities)
}

// Reset forgets every cached result, as after a sign-out. Calls still in
// flight finish but their results are dropped.
func (c *Client) Reset() {
	c.mu.Lock()
	c.seq++
	var notify []func()
	for key, e := range c.entries {
		fetching := e.fetching
		e.snapshot = snapshot{fetching: fetching}
		e.storedSeq = c.seq
		e.invalidSeq = c.seq
		c.group.Forget(key.String())
		notify = append(notify, c.notifierLocked(e))
	}
	c.mu.Unlock()

	for _, n := range notify {
		n()
	}
	c.logger.Debug("query cache reset")
}

func (c *Client) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Client) fresh(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.status != StatusSuccess || e.stale {
		return nil, false
	}
	if c.now().Sub(e.updatedAt) >= c.freshness {
		return nil, false
	}
	return e.data, true
}

func (c *Client) markStale(key Key) {
	c.mu.Lock()
	c.seq++
	e := c.entryLocked(key)
	e.invalidSeq = c.seq
	e.stale = true
	c.group.Forget(key.String())
	c.mu.Unlock()
}

// begin records a call starting for key and returns its start sequence.
func (c *Client) begin(key Key) uint64 {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	e := c.entryLocked(key)
	e.inflight++
	e.fetching = true
	if e.status == StatusIdle {
		e.status = StatusLoading
	}
	notify := c.notifierLocked(e)
	c.mu.Unlock()

	notify()
	return seq
}

// finish stores the outcome of the call started at seq unless a call that
// started later has already stored its own.
func (c *Client) finish(ctx context.Context, key Key, seq uint64, v any, err error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.inflight--
	e.fetching = e.inflight > 0

	stored := false
	switch {
	case seq < e.storedSeq:
		c.logger.Debug("discarding superseded query result", "key", key.String(), "seq", seq, "stored_seq", e.storedSeq)
	case err != nil:
		e.storedSeq = seq
		e.status = StatusError
		e.err = err
	default:
		e.storedSeq = seq
		e.status = StatusSuccess
		e.data = v
		e.err = nil
		e.updatedAt = c.now()
		e.stale = seq <= e.invalidSeq
		stored = !e.stale
	}
	notify := c.notifierLocked(e)
	c.mu.Unlock()

	notify()

	if stored && c.l2 != nil {
		toLevel2(ctx, c, key, v)
	}
}

// notifierLocked captures the observers and state of e; the returned
// function delivers them outside the lock.
func (c *Client) notifierLocked(e *entry) func() {
	s := e.snapshot
	obs := make([]observer, len(e.observers))
	copy(obs, e.observers)
	return func() {
		for _, o := range obs {
			o.fn(s)
		}
	}
}

func stateOf[T any](s snapshot) State[T] {
	data, _ := s.data.(T)
	return State[T]{
		Status:    s.status,
		Data:      data,
		Err:       s.err,
		UpdatedAt: s.updatedAt,
		Stale:     s.stale,
		Fetching:  s.fetching,
	}
}
