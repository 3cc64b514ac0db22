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

// Package credential holds the operator session for the whole process.
//
// A Store is the single owner of the current credential. Readers such as
// the HTTP transport take a copy per request; writers replace or clear it.
// Every mutation is persisted through a Persister and announced to
// subscribers. Persistence is best-effort: when storage fails the store
// keeps working in memory and the failure is only logged.
package credential

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/deskconsole/internal/models"
)

// persistTimeout bounds a single persister call made from Set or Clear.
const persistTimeout = 5 * time.Second

// EventKind says what happened to the credential.
type EventKind int

const (
	// EventSet follows a successful Set.
	EventSet EventKind = iota + 1
	// EventCleared follows Clear, whether explicit or triggered by a 401.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind       EventKind
	Credential models.Credential // zero for EventCleared
}

// Persister is durable storage for a single credential.
type Persister interface {
	// Load returns the stored credential. ok is false when nothing is stored.
	Load(ctx context.Context) (cred models.Credential, ok bool, err error)
	Save(ctx context.Context, cred models.Credential) error
	Delete(ctx context.Context) error
}

type subscriber struct {
	id int
	fn func(Event)
}

// Store is safe for concurrent use.
//
// Subscribers are called synchronously, in registration order, after the
// new value is visible to Get. A subscriber may call Get but must not call
// Set or Clear on the same store.
type Store struct {
	// writeMu serialises mutations so persisted state and notification
	// order always agree with the in-memory value.
	writeMu sync.Mutex

	mu     sync.RWMutex
	cred   models.Credential
	loaded bool
	subs   []subscriber
	nextID int

	persister Persister
	logger    *slog.Logger
}

// New returns an empty store. A nil persister keeps the credential in memory only.
func New(persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persister: persister, logger: logger}
}

// Open returns a store hydrated from the persister. A load failure is
// logged and yields an empty store.
func Open(ctx context.Context, persister Persister, logger *slog.Logger) *Store {
	s := New(persister, logger)
	if persister == nil {
		return s
	}

	cred, ok, err := persister.Load(ctx)
	if err != nil {
		s.logger.Warn("credential load failed, starting signed out", "error", err)
		return s
	}
	if !ok || !cred.Authenticated() {
		return s
	}
	if !cred.ExpiresAt.IsZero() && time.Now().After(cred.ExpiresAt) {
		s.logger.Info("stored credential expired, starting signed out", "expired_at", cred.ExpiresAt)
		return s
	}

	s.cred = cred
	s.loaded = true
	s.logger.Info("credential restored", "role", cred.Role, "user_id", cred.ID)
	return s
}

// Get returns the current credential and whether one is present.
func (s *Store) Get() (models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.loaded
}

// Set replaces the current credential, persists it and notifies subscribers.
func (s *Store) Set(cred models.Credential) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error { return s.persister.Save(ctx, cred) }, "save")
	s.notify(Event{Kind: EventSet, Credential: cred})
}

// Clear removes the current credential, persists the removal and notifies
// subscribers. Clearing an empty store still notifies.
func (s *Store) Clear() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.cred = models.Credential{}
	s.loaded = false
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error { return s.persister.Delete(ctx) }, "delete")
	s.notify(Event{Kind: EventCleared})
}

// Subscribe registers fn for every later Set and Clear. The returned
// function removes the registration and is safe to call more than once.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) persist(op func(ctx context.Context) error, action string) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := op(ctx); err != nil {
		s.logger.Warn("credential persistence failed, keeping session in memory",
			"action", action,
			"error", err,
		)
	}
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}
