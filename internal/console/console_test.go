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

package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/deskconsole/internal/api"
	"github.com/bcem/deskconsole/internal/credential"
	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/query"
	"github.com/bcem/deskconsole/internal/schema"
	"github.com/bcem/deskconsole/internal/transport"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// inbox is a fake inbox API.
type inbox struct {
	mu          sync.Mutex
	ticketHits  atomic.Int32
	userHits    atomic.Int32
	lastQuery   string
	lastAuth    string
	lastDelete  string
	lastFile    string
	replyStatus int
	replyBody   string
	// authBody and usersBody replace the default responses when set.
	authBody  string
	usersBody string
}

const defaultUsers = `[{"id":5,"email":"giorgi@example.com","firstName":"Giorgi","lastName":"K","isAdmin":false,"isDeleted":false}]`

func (s *inbox) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Auth", func(w http.ResponseWriter, r *http.Request) {
		var req schema.SignInRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "correct horse" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid email or password"}`)
			return
		}
		s.mu.Lock()
		body := s.authBody
		s.mu.Unlock()
		if body != "" {
			_, _ = io.WriteString(w, body)
			return
		}
		token := signToken(t, jwt.MapClaims{
			"uid":  7,
			"name": "Nino Beridze",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": token, "role": "admin"})
	})
	mux.HandleFunc("GET /Ticket", func(w http.ResponseWriter, r *http.Request) {
		s.ticketHits.Add(1)
		s.record(r)
		_, _ = io.WriteString(w, `{"tickets":[{"id":42,"from":"a@gmail.com","date":"2026-03-01","status":1,"shouldBeAnswered":true}],"totalItems":1}`)
	})
	mux.HandleFunc("POST /Ticket", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		status, body := s.replyStatus, s.replyBody
		s.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("GET /User", func(w http.ResponseWriter, r *http.Request) {
		s.userHits.Add(1)
		s.record(r)
		s.mu.Lock()
		body := s.usersBody
		s.mu.Unlock()
		if body == "" {
			body = defaultUsers
		}
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("PUT /User", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
	})
	mux.HandleFunc("DELETE /User/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		s.lastDelete = r.PathValue("id")
		s.mu.Unlock()
	})
	mux.HandleFunc("GET /Attachment", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		s.mu.Lock()
		s.lastFile = r.URL.Query().Get("fileName")
		s.mu.Unlock()
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	return mux
}

func (s *inbox) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = r.URL.RawQuery
	s.lastAuth = r.Header.Get("Authorization")
}

func (s *inbox) setReply(status int, body string) {
	s.mu.Lock()
	s.replyStatus, s.replyBody = status, body
	s.mu.Unlock()
}

func (s *inbox) setAuth(body string) {
	s.mu.Lock()
	s.authBody = body
	s.mu.Unlock()
}

func (s *inbox) setUsers(body string) {
	s.mu.Lock()
	s.usersBody = body
	s.mu.Unlock()
}

func (s *inbox) deleted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelete
}

// memLevel is a process-shared cache kept in a map.
type memLevel struct {
	mu      sync.Mutex
	entries map[query.Key][]byte
}

func newMemLevel() *memLevel {
	return &memLevel{entries: make(map[query.Key][]byte)}
}

func (m *memLevel) Get(_ context.Context, key query.Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok, nil
}

func (m *memLevel) Set(_ context.Context, key query.Key, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func (m *memLevel) Invalidate(_ context.Context, entity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if key.Entity == entity {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memLevel) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newConsole(t *testing.T) (*Console, *inbox, *credential.Store) {
	t.Helper()
	return newConsoleWith(t, nil)
}

// newConsoleWith builds a console against its own fake inbox whose query
// cache shares l2 when it is non-nil.
func newConsoleWith(t *testing.T, l2 query.SecondLevel) (*Console, *inbox, *credential.Store) {
	t.Helper()
	fake := &inbox{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	store := credential.New(nil, discard)
	tc, err := transport.New(transport.Config{BaseURL: srv.URL, Logger: discard}, store)
	require.NoError(t, err)

	c := New(api.NewClient(api.NewFactory(tc, discard)), store, query.New(query.Config{Level2: l2, Logger: discard}), discard)
	return c, fake, store
}

func signIn(t *testing.T, c *Console) models.Credential {
	t.Helper()
	cred, err := c.SignIn(context.Background(), " Nino@Example.com ", "correct horse")
	require.NoError(t, err)
	return cred
}

// TestSignIn verifies a successful sign-in stores a credential built from
// the token and later calls carry it.
func TestSignIn(t *testing.T) {
	c, fake, _ := newConsole(t)

	var events []credential.EventKind
	c.OnSessionChange(func(ev credential.Event) { events = append(events, ev.Kind) })

	cred := signIn(t, c)
	assert.Equal(t, 7, cred.ID)
	assert.Equal(t, "Nino Beridze", cred.Name)
	assert.Equal(t, "nino@example.com", cred.Email)
	assert.True(t, cred.IsAdmin)

	session, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, cred.AccessToken, session.AccessToken)

	_, err := c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+cred.AccessToken, fake.lastAuth)
	assert.Equal(t, "amount=10&page=1", fake.lastQuery)

	c.Logout()
	_, ok = c.Session()
	assert.False(t, ok)
	assert.Equal(t, []credential.EventKind{credential.EventSet, credential.EventCleared}, events)
}

// TestSignIn_OpaqueToken verifies a non-JWT token is stored as given, with
// admin rights from the response role.
func TestSignIn_OpaqueToken(t *testing.T) {
	c, fake, store := newConsole(t)
	fake.setAuth(`{"accessToken":"t1","role":"admin"}`)

	cred := signIn(t, c)

	stored, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, cred, stored)
	assert.Equal(t, "t1", stored.AccessToken)
	assert.Equal(t, "admin", stored.Role)
	assert.True(t, stored.IsAdmin)
	assert.Zero(t, stored.ID)
	assert.Equal(t, "nino@example.com", stored.Email)

	_, err := c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t1", fake.lastAuth)
}

// TestSignIn_Rejected verifies a failed sign-in leaves no session.
func TestSignIn_Rejected(t *testing.T) {
	c, _, _ := newConsole(t)

	_, err := c.SignIn(context.Background(), "nino@example.com", "wrong")
	require.Error(t, err)

	var he *transport.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "Invalid email or password", he.Message)
	_, ok := c.Session()
	assert.False(t, ok)
}

// TestSignIn_InvalidInputNotSent verifies a malformed email never reaches
// the server.
func TestSignIn_InvalidInputNotSent(t *testing.T) {
	c, _, _ := newConsole(t)

	_, err := c.SignIn(context.Background(), "not-an-email", "x")
	assert.ErrorIs(t, err, api.ErrRequestInvalid)
}

// TestTickets_Cached verifies repeated reads of one filter hit the server
// once.
func TestTickets_Cached(t *testing.T) {
	c, fake, _ := newConsole(t)
	signIn(t, c)

	for range 3 {
		page, err := c.Tickets(context.Background(), TicketFilter{Page: 1, Amount: 10})
		require.NoError(t, err)
		require.Len(t, page.Tickets, 1)
	}
	assert.Equal(t, int32(1), fake.ticketHits.Load())

	_, err := c.RefreshTickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.ticketHits.Load())
}

// TestReply_Accepted verifies an accepted reply makes ticket lists stale.
func TestReply_Accepted(t *testing.T) {
	c, fake, _ := newConsole(t)
	signIn(t, c)
	fake.setReply(http.StatusOK, `{"success":true,"message":""}`)

	_, err := c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)

	res, err := c.Reply(context.Background(), 42, "  Thanks  ")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Reply sent", DescribeReply(res, err))
	assert.False(t, c.ReplyPending(42))

	_, err = c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.ticketHits.Load())
}

// TestReply_AlreadyAnswered verifies a refusal is a result, not an error,
// and does not invalidate.
func TestReply_AlreadyAnswered(t *testing.T) {
	c, fake, _ := newConsole(t)
	signIn(t, c)
	fake.setReply(http.StatusOK, `{"success":false,"message":"Ticket was already answered"}`)

	_, err := c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)

	res, err := c.Reply(context.Background(), 42, "Thanks")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "This ticket has already been answered", DescribeReply(res, err))

	_, err = c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.ticketHits.Load())
}

// TestReply_ExpiredSession verifies a 401 on a private call ends the
// session and empties the cache.
func TestReply_ExpiredSession(t *testing.T) {
	c, fake, store := newConsole(t)
	signIn(t, c)

	key, err := c.TicketsKey(TicketFilter{})
	require.NoError(t, err)
	_, err = c.Tickets(context.Background(), TicketFilter{})
	require.NoError(t, err)
	require.Equal(t, query.StatusSuccess, query.Snapshot[schema.TicketPage](c.Queries(), key).Status)

	fake.setReply(http.StatusUnauthorized, `{"message":"token expired"}`)
	res, err := c.Reply(context.Background(), 42, "Thanks")
	require.Error(t, err)
	assert.True(t, transport.IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, "The reply could not be sent", DescribeReply(res, err))

	_, ok := store.Get()
	assert.False(t, ok)
	assert.Equal(t, query.StatusIdle, query.Snapshot[schema.TicketPage](c.Queries(), key).Status)
}

// TestReads_RequireSession verifies signing out stops cached reads,
// including ones a shared cache still holds.
func TestReads_RequireSession(t *testing.T) {
	l2 := newMemLevel()
	c, fake, _ := newConsoleWith(t, l2)
	ctx := context.Background()

	_, err := c.Tickets(ctx, TicketFilter{})
	assert.ErrorIs(t, err, ErrSignedOut)
	_, err = c.Users(ctx, 1, 20)
	assert.ErrorIs(t, err, ErrSignedOut)
	_, err = c.TicketsKey(TicketFilter{})
	assert.ErrorIs(t, err, ErrSignedOut)

	signIn(t, c)
	_, err = c.Tickets(ctx, TicketFilter{})
	require.NoError(t, err)
	_, err = c.Users(ctx, 1, 20)
	require.NoError(t, err)
	require.Equal(t, 2, l2.len())

	c.Logout()

	_, err = c.Tickets(ctx, TicketFilter{})
	assert.ErrorIs(t, err, ErrSignedOut)
	_, err = c.RefreshTickets(ctx, TicketFilter{})
	assert.ErrorIs(t, err, ErrSignedOut)
	_, err = c.Users(ctx, 1, 20)
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Equal(t, int32(1), fake.ticketHits.Load())
	assert.Equal(t, int32(1), fake.userHits.Load())
}

// TestSharedCache_SeparatesSessions verifies a second process signed in
// as someone else never reads the first session's shared entries, while
// the same session in another process does.
func TestSharedCache_SeparatesSessions(t *testing.T) {
	l2 := newMemLevel()
	ctx := context.Background()

	first, _, _ := newConsoleWith(t, l2)
	cred := signIn(t, first)
	_, err := first.Users(ctx, 1, 20)
	require.NoError(t, err)

	other, otherFake, otherStore := newConsoleWith(t, l2)
	otherStore.Set(models.Credential{AccessToken: "other", Role: "admin", IsAdmin: true})
	_, err = other.Users(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(1), otherFake.userHits.Load())

	same, sameFake, sameStore := newConsoleWith(t, l2)
	sameStore.Set(cred)
	users, err := same.Users(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int32(0), sameFake.userHits.Load())
}

// TestReply_RequiresSession verifies replies are refused while signed out.
func TestReply_RequiresSession(t *testing.T) {
	c, _, _ := newConsole(t)

	_, err := c.Reply(context.Background(), 42, "Thanks")
	assert.ErrorIs(t, err, ErrSignedOut)
}

// TestDescribeReply covers the feedback table.
func TestDescribeReply(t *testing.T) {
	tests := []struct {
		name string
		res  schema.ReplyResult
		err  error
		want string
	}{
		{"sent", schema.ReplyResult{Success: true}, nil, "Reply sent"},
		{"answered", schema.ReplyResult{Message: "Ticket was already answered"}, nil, "This ticket has already been answered"},
		{"other refusal", schema.ReplyResult{Message: "Mailbox offline"}, nil, "The reply could not be sent"},
		{"in flight", schema.ReplyResult{}, query.ErrInFlight, "A reply to this ticket is already being sent"},
		{"transport", schema.ReplyResult{}, errors.New("dial tcp"), "The reply could not be sent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeReply(tt.res, tt.err))
		})
	}
}

// TestUsers_Defaults verifies the default page size.
func TestUsers_Defaults(t *testing.T) {
	c, fake, _ := newConsole(t)
	signIn(t, c)

	users, err := c.Users(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Giorgi K", users[0].FullName())
	assert.Equal(t, "amount=20&page=1", fake.lastQuery)
}

// TestToggleUserDeleted verifies the admin and self checks and that a
// toggle refreshes the user list.
func TestToggleUserDeleted(t *testing.T) {
	c, fake, store := newConsole(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.ToggleUserDeleted(ctx, 5), ErrSignedOut)

	store.Set(models.Credential{AccessToken: "opaque", ID: 9})
	assert.ErrorIs(t, c.ToggleUserDeleted(ctx, 5), ErrAdminRequired)

	cred := signIn(t, c)
	assert.ErrorIs(t, c.ToggleUserDeleted(ctx, cred.ID), ErrSelfTarget)

	_, err := c.Users(ctx, 1, 20)
	require.NoError(t, err)

	require.NoError(t, c.ToggleUserDeleted(ctx, 5))
	assert.Equal(t, "5", fake.lastDelete)
	assert.False(t, c.UserPending(5))

	_, err = c.Users(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.userHits.Load())
}

// TestUpdateUser_SelfDemotion verifies an administrator cannot drop their
// own admin flag.
func TestUpdateUser_SelfDemotion(t *testing.T) {
	c, _, _ := newConsole(t)
	cred := signIn(t, c)

	req := schema.UpdateUserRequest{ID: cred.ID, Email: "nino@example.com", FirstName: "Nino", LastName: "B"}
	assert.ErrorIs(t, c.UpdateUser(context.Background(), req), ErrSelfTarget)

	req.IsAdmin = true
	assert.NoError(t, c.UpdateUser(context.Background(), req))
}

// TestSelfTarget_OpaqueToken verifies an opaque-token session finds its
// own account by email, and refuses when it cannot.
func TestSelfTarget_OpaqueToken(t *testing.T) {
	c, fake, store := newConsole(t)
	ctx := context.Background()
	fake.setAuth(`{"accessToken":"t1","role":"admin"}`)
	fake.setUsers(`[
		{"id":5,"email":"giorgi@example.com","firstName":"Giorgi","lastName":"K","isAdmin":false},
		{"id":7,"email":"Nino@Example.com","firstName":"Nino","lastName":"B","isAdmin":true}
	]`)
	cred := signIn(t, c)
	require.Zero(t, cred.ID)

	assert.ErrorIs(t, c.ToggleUserDeleted(ctx, 7), ErrSelfTarget)
	demote := schema.UpdateUserRequest{ID: 7, Email: "nino@example.com", FirstName: "Nino", LastName: "B"}
	assert.ErrorIs(t, c.UpdateUser(ctx, demote), ErrSelfTarget)
	assert.Empty(t, fake.deleted())

	require.NoError(t, c.ToggleUserDeleted(ctx, 5))
	assert.Equal(t, "5", fake.deleted())

	store.Set(models.Credential{AccessToken: "t2", Role: "admin", IsAdmin: true})
	assert.ErrorIs(t, c.ToggleUserDeleted(ctx, 5), ErrSelfUnknown)

	store.Set(models.Credential{AccessToken: "t3", Role: "admin", IsAdmin: true, Email: "ghost@example.com"})
	assert.ErrorIs(t, c.ToggleUserDeleted(ctx, 5), ErrSelfUnknown)
}

// TestAttachment verifies inline names lose their cid: prefix.
func TestAttachment(t *testing.T) {
	c, fake, _ := newConsole(t)
	signIn(t, c)

	data, err := c.Attachment(context.Background(), "cid:logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
	assert.Equal(t, "logo.png", fake.lastFile)
}

// TestHasNextPage verifies a full page implies another may follow.
func TestHasNextPage(t *testing.T) {
	assert.True(t, HasNextPage(10, 10))
	assert.True(t, HasNextPage(11, 10))
	assert.False(t, HasNextPage(9, 10))
	assert.False(t, HasNextPage(0, 0))
}
