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
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisLevel_GenerationKeys verifies reads and writes go through the
// entity generation and invalidation bumps it.
func TestRedisLevel_GenerationKeys(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	l2 := NewRedisLevel(rdb, "")
	key := NewKey("tickets", page{Page: 1, Amount: 10})

	mock.ExpectGet("deskconsole:cache:tickets:gen").RedisNil()
	mock.ExpectSet(l2.dataKey(key, "0"), `{"a":1}`, time.Minute).SetVal("OK")
	mock.ExpectIncr("deskconsole:cache:tickets:gen").SetVal(1)
	mock.ExpectGet("deskconsole:cache:tickets:gen").SetVal("1")
	mock.ExpectGet(l2.dataKey(key, "1")).RedisNil()

	ctx := context.Background()
	require.NoError(t, l2.Set(ctx, key, []byte(`{"a":1}`), time.Minute))
	require.NoError(t, l2.Invalidate(ctx, "tickets"))

	_, ok, err := l2.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRedisLevel_ScopedKeysDiffer verifies reads under different scopes
// never share a shared-cache entry.
func TestRedisLevel_ScopedKeysDiffer(t *testing.T) {
	l2 := NewRedisLevel(nil, "desk")
	key := NewKey("users", page{Page: 1, Amount: 20})

	a := l2.dataKey(key.Within("alice"), "0")
	b := l2.dataKey(key.Within("bob"), "0")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, l2.dataKey(key, "0"), a)
}

// TestFetch_ServedFromSecondLevel verifies a fresh shared entry avoids the
// network call.
func TestFetch_ServedFromSecondLevel(t *testing.T) {
	clk := newClock()
	rdb, mock := redismock.NewClientMock()
	l2 := NewRedisLevel(rdb, "desk")
	c := New(Config{Freshness: time.Minute, Level2: l2, Logger: discard, Now: clk.Now})
	key := NewKey("users", page{Page: 1, Amount: 20})

	data, err := json.Marshal("shared")
	require.NoError(t, err)
	raw, err := json.Marshal(cached{StoredAt: clk.Now().Add(-10 * time.Second), Data: data})
	require.NoError(t, err)

	mock.ExpectGet("desk:users:gen").SetVal("3")
	mock.ExpectGet(l2.dataKey(key, "3")).SetVal(string(raw))

	v, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) {
		t.Error("network must not be called")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "shared", v)
	assert.True(t, clk.Now().Add(-10*time.Second).Equal(Snapshot[string](c, key).UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestFetch_WritesThroughToSecondLevel verifies fetched results are shared.
func TestFetch_WritesThroughToSecondLevel(t *testing.T) {
	clk := newClock()
	rdb, mock := redismock.NewClientMock()
	l2 := NewRedisLevel(rdb, "desk")
	c := New(Config{Freshness: time.Minute, Level2: l2, Logger: discard, Now: clk.Now})
	key := NewKey("tickets", nil)

	raw, err := json.Marshal(cached{StoredAt: clk.Now(), Data: json.RawMessage(`"fetched"`)})
	require.NoError(t, err)

	mock.ExpectGet("desk:tickets:gen").RedisNil()
	mock.ExpectGet(l2.dataKey(key, "0")).RedisNil()
	mock.ExpectGet("desk:tickets:gen").RedisNil()
	mock.ExpectSet(l2.dataKey(key, "0"), string(raw), time.Minute).SetVal("OK")

	v, err := Fetch(context.Background(), c, key, func(context.Context) (string, error) { return "fetched", nil })
	require.NoError(t, err)
	assert.Equal(t, "fetched", v)
	assert.NoError(t, mock.ExpectationsWereMet())
}
