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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type page struct {
	Page   int `json:"page"`
	Amount int `json:"amount"`
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClient(clk *clock) *Client {
	return New(Config{Freshness: time.Minute, Logger: discard, Now: clk.Now})
}

// counter returns a fetch function yielding value and counting calls.
func counter(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

// TestNewKey verifies equal parameters give equal keys.
func TestNewKey(t *testing.T) {
	a := NewKey("tickets", page{Page: 1, Amount: 20})
	b := NewKey("tickets", page{Page: 1, Amount: 20})
	c := NewKey("tickets", page{Page: 2, Amount: 20})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, `tickets:{"page":1,"amount":20}`, a.String())
	assert.Equal(t, "users", NewKey("users", nil).String())

	scoped := a.Within("s1")
	assert.NotEqual(t, a, scoped)
	assert.NotEqual(t, scoped, a.Within("s2"))
	assert.Equal(t, `tickets@s1:{"page":1,"amount":20}`, scoped.String())
}

// TestFetch_ConcurrentReadsShareOneCall verifies that two reads of tickets
// page 1 amount 20 issued together make exactly one network call.
func TestFetch_ConcurrentReadsShareOneCall(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", page{Page: 1, Amount: 20})

	var calls atomic.Int32
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return "page-1", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = Fetch(context.Background(), c, key, fn)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = Fetch(context.Background(), c, key, fn)
	}()

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"page-1", "page-1"}, results)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

// TestFetch_FreshnessWindow verifies cached results are served until they
// age past the window.
func TestFetch_FreshnessWindow(t *testing.T) {
	clk := newClock()
	c := newClient(clk)
	key := NewKey("users", page{Page: 1, Amount: 20})

	var calls atomic.Int32
	fn := counter(&calls, "users")

	for range 3 {
		v, err := Fetch(context.Background(), c, key, fn)
		require.NoError(t, err)
		assert.Equal(t, "users", v)
	}
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(59 * time.Second)
	_, _ = Fetch(context.Background(), c, key, fn)
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(time.Second)
	_, _ = Fetch(context.Background(), c, key, fn)
	assert.Equal(t, int32(2), calls.Load())
}

// TestRefetch_BypassesFreshness verifies Refetch always calls through.
func TestRefetch_BypassesFreshness(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", nil)

	var calls atomic.Int32
	fn := counter(&calls, "t")

	_, _ = Fetch(context.Background(), c, key, fn)
	_, _ = Refetch(context.Background(), c, key, fn)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, Snapshot[string](c, key).Stale)
}

// TestInvalidate_OnlyNamedEntities verifies invalidation is scoped by entity
// and covers every key of that entity.
func TestInvalidate_OnlyNamedEntities(t *testing.T) {
	c := newClient(newClock())
	p1 := NewKey("tickets", page{Page: 1, Amount: 10})
	p2 := NewKey("tickets", page{Page: 2, Amount: 10})
	users := NewKey("users", page{Page: 1, Amount: 20})

	var ticketCalls, userCalls atomic.Int32
	for _, k := range []Key{p1, p2} {
		_, err := Fetch(context.Background(), c, k, counter(&ticketCalls, "t"))
		require.NoError(t, err)
	}
	_, err := Fetch(context.Background(), c, users, counter(&userCalls, "u"))
	require.NoError(t, err)

	c.Invalidate(context.Background(), "tickets")

	assert.True(t, Snapshot[string](c, p1).Stale)
	assert.True(t, Snapshot[string](c, p2).Stale)
	assert.False(t, Snapshot[string](c, users).Stale)

	for _, k := range []Key{p1, p2} {
		_, _ = Fetch(context.Background(), c, k, counter(&ticketCalls, "t"))
	}
	_, _ = Fetch(context.Background(), c, users, counter(&userCalls, "u"))

	assert.Equal(t, int32(4), ticketCalls.Load())
	assert.Equal(t, int32(1), userCalls.Load())
}

// gate is a fetch whose result is released by the test.
type gate struct {
	started chan struct{}
	release chan struct{}
	value   string
}

func newGate(value string) *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{}), value: value}
}

func (g *gate) fetch(context.Context) (string, error) {
	close(g.started)
	<-g.release
	return g.value, nil
}

// TestFetch_LastStartedWins verifies that a read started before an
// invalidation cannot overwrite the result of one started after it, even
// when it finishes last.
func TestFetch_LastStartedWins(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", page{Page: 1, Amount: 10})

	old, fresh := newGate("old"), newGate("new")
	oldDone := make(chan string)
	freshDone := make(chan string)

	go func() {
		v, _ := Fetch(context.Background(), c, key, old.fetch)
		oldDone <- v
	}()
	<-old.started

	c.Invalidate(context.Background(), "tickets")

	go func() {
		v, _ := Fetch(context.Background(), c, key, fresh.fetch)
		freshDone <- v
	}()
	<-fresh.started

	close(fresh.release)
	assert.Equal(t, "new", <-freshDone)

	close(old.release)
	assert.Equal(t, "old", <-oldDone, "the older caller still gets its own result")

	s := Snapshot[string](c, key)
	assert.Equal(t, "new", s.Data)
	assert.False(t, s.Stale)
	assert.False(t, s.Fetching)
}

// TestFetch_PreInvalidationResultStaysStale verifies a result from a call
// started before an invalidation is stored but still refetched.
func TestFetch_PreInvalidationResultStaysStale(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", nil)

	g := newGate("before")
	done := make(chan struct{})
	go func() {
		_, _ = Fetch(context.Background(), c, key, g.fetch)
		close(done)
	}()
	<-g.started
	c.Invalidate(context.Background(), "tickets")
	close(g.release)
	<-done

	s := Snapshot[string](c, key)
	assert.Equal(t, "before", s.Data)
	assert.True(t, s.Stale)

	var calls atomic.Int32
	v, err := Fetch(context.Background(), c, key, counter(&calls, "after"))
	require.NoError(t, err)
	assert.Equal(t, "after", v)
	assert.Equal(t, int32(1), calls.Load())
}

// TestFetch_ErrorKeepsData verifies a failed refetch reports the error
// without dropping the last good result.
func TestFetch_ErrorKeepsData(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("users", nil)

	_, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) { return "good", nil })
	require.NoError(t, err)

	boom := errors.New("502")
	_, err = Refetch(context.Background(), c, key, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	s := Snapshot[string](c, key)
	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "good", s.Data)
	assert.ErrorIs(t, s.Err, boom)
}

// TestFetch_CallerCancel verifies a cancelled caller stops waiting while
// the shared call completes for everyone else.
func TestFetch_CallerCancel(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", nil)
	g := newGate("done")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := Fetch(ctx, c, key, g.fetch)
		errc <- err
	}()
	<-g.started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(g.release)
	require.Eventually(t, func() bool {
		return Snapshot[string](c, key).Status == StatusSuccess
	}, time.Second, time.Millisecond)
}

// TestObserve verifies observers see each transition and stop after
// unsubscribing.
func TestObserve(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", nil)

	var mu sync.Mutex
	var seen []Status
	unsubscribe := Observe(c, key, func(s State[string]) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})

	_, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) { return "x", nil })
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	c.Invalidate(context.Background(), "tickets")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusIdle, StatusLoading, StatusSuccess}, seen)
}

// TestStatusString verifies status names.
func TestStatusString(t *testing.T) {
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "status(9)", Status(9).String())
}

// TestReset verifies a reset drops cached data and results still in flight.
func TestReset(t *testing.T) {
	c := newClient(newClock())
	key := NewKey("tickets", nil)

	_, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) { return "mine", nil })
	require.NoError(t, err)

	g := newGate("late")
	done := make(chan struct{})
	go func() {
		_, _ = Refetch(context.Background(), c, key, g.fetch)
		close(done)
	}()
	<-g.started
	c.Reset()
	close(g.release)
	<-done

	s := Snapshot[string](c, key)
	assert.Equal(t, StatusIdle, s.Status)
	assert.Empty(t, s.Data)
}
