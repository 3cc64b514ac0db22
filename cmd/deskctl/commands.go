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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bcem/deskconsole/internal/console"
	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/schema"
	"github.com/bcem/deskconsole/internal/ticket"
)

// userScanPageSize is the page size used when looking a user up by id.
const userScanPageSize = 100

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "operator email (prompted when empty)")
	passwordFile := fs.String("password-file", "", `file holding the password ("-" reads stdin)`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		var err error
		if *email, err = promptLine(e.in, "Email"); err != nil {
			return err
		}
	}
	password, err := readPassword(e.in, *passwordFile)
	if err != nil {
		return err
	}

	cred, err := e.app.Console.SignIn(ctx, *email, password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fmt.Fprintf(e.out, "Signed in as %s (%s)\n", cred.DisplayName(), cred.Role)
	return nil
}

func runLogout(_ context.Context, e *env, args []string) error {
	if err := newFlagSet("logout").Parse(args); err != nil {
		return err
	}
	e.app.Console.Logout()
	fmt.Fprintln(e.out, "Signed out")
	return nil
}

func runWhoami(_ context.Context, e *env, args []string) error {
	if err := newFlagSet("whoami").Parse(args); err != nil {
		return err
	}
	cred, ok := e.app.Console.Session()
	if !ok {
		return console.ErrSignedOut
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "name\t%s\n", cred.DisplayName())
	if cred.ID != 0 {
		fmt.Fprintf(w, "id\t%d\n", cred.ID)
	}
	fmt.Fprintf(w, "role\t%s\n", cred.Role)
	fmt.Fprintf(w, "admin\t%t\n", cred.IsAdmin)
	if !cred.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "expires\t%s\n", cred.ExpiresAt.Local().Format(time.RFC1123))
	}
	return w.Flush()
}

func runTickets(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("tickets")
	page := fs.Int("page", 1, "page number")
	amount := fs.Int("amount", 10, "tickets per page")
	from := fs.String("from", "", "sender filter")
	fromDate := fs.String("from-date", "", "earliest date (YYYY-MM-DD)")
	toDate := fs.String("to-date", "", "latest date (YYYY-MM-DD)")
	status := fs.Int("status", 0, "raw server status (1 open, 2 completed)")
	states := fs.StringSlice("state", nil, "reply state: needs_reply_urgent, needs_reply, answered")
	refresh := fs.Bool("refresh", false, "skip the cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := console.TicketFilter{
		Page:     *page,
		Amount:   *amount,
		From:     *from,
		FromDate: *fromDate,
		ToDate:   *toDate,
	}
	if fs.Changed("status") {
		filter.Status = status
	}

	var want []ticket.ReplyState
	for _, s := range *states {
		state, err := ticket.ParseReplyState(s)
		if err != nil {
			return err
		}
		want = append(want, state)
	}

	fetch := e.app.Console.Tickets
	if *refresh {
		fetch = e.app.Console.RefreshTickets
	}
	result, err := fetch(ctx, filter)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}

	shown, err := ticket.Filter(result.Tickets, want...)
	if err != nil {
		return err
	}
	counts, err := ticket.Tally(result.Tickets)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tPROVIDER\tFROM\tDATE\tSUBJECT")
	for _, t := range shown {
		state, err := ticket.Classify(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, state, ticket.ProviderStyleKey(t.From), t.From, t.Date, t.Subject)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(e.out, "\n%d urgent, %d awaiting reply, %d answered\n",
		counts.NeedsReplyUrgent, counts.NeedsReply, counts.Answered)
	if console.HasNextPage(len(result.Tickets), *amount) {
		fmt.Fprintf(e.out, "More tickets: deskctl tickets --page %d\n", *page+1)
	}
	return nil
}

func runReply(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("reply")
	message := fs.StringP("message", "m", "", `reply text ("-" reads stdin)`)
	attach := fs.StringSlice("attach", nil, "file to attach (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: deskctl reply TICKET_ID -m MESSAGE [--attach FILE]")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	content := *message
	if content == "-" {
		if content, err = readLine(e.in); err != nil {
			return err
		}
	}

	files := make([]schema.File, 0, len(*attach))
	for _, path := range *attach {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		files = append(files, schema.File{Name: filepath.Base(path), Data: data})
	}

	res, err := e.app.Console.Reply(ctx, id, content, files...)
	summary := console.DescribeReply(res, err)
	if err != nil {
		return fmt.Errorf("%s: %w", summary, err)
	}
	if !res.Success {
		return errors.New(summary)
	}
	fmt.Fprintln(e.out, summary)
	return nil
}

func runUsers(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("users")
	page := fs.Int("page", 1, "page number")
	amount := fs.Int("amount", 20, "users per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	users, err := e.app.Console.Users(ctx, *page, *amount)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tADMIN\tDELETED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\n", u.ID, u.Email, u.FullName(), u.IsAdmin, u.IsDeleted)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if console.HasNextPage(len(users), *amount) {
		fmt.Fprintf(e.out, "\nMore users: deskctl users --page %d\n", *page+1)
	}
	return nil
}

func runUserCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("user-create")
	email := fs.String("email", "", "email address")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	passwordFile := fs.String("password-file", "", `file holding the initial password ("-" reads stdin)`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := readPassword(e.in, *passwordFile)
	if err != nil {
		return err
	}

	req := schema.CreateUserRequest{
		Email:     *email,
		Password:  password,
		FirstName: *first,
		LastName:  *last,
	}
	if err := e.app.Console.CreateUser(ctx, req); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(e.out, "Created %s\n", *email)
	return nil
}

func runUserUpdate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("user-update")
	email := fs.String("email", "", "new email address")
	first := fs.String("first", "", "new first name")
	last := fs.String("last", "", "new last name")
	admin := fs.Bool("admin", false, "grant or revoke admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: deskctl user-update USER_ID [--email E] [--first F] [--last L] [--admin=BOOL]")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	user, err := findUser(ctx, e.app.Console, id)
	if err != nil {
		return err
	}

	req := schema.UpdateFromUser(user)
	if fs.Changed("email") {
		req.Email = *email
	}
	if fs.Changed("first") {
		req.FirstName = *first
	}
	if fs.Changed("last") {
		req.LastName = *last
	}
	if fs.Changed("admin") {
		req.IsAdmin = *admin
	}

	if err := e.app.Console.UpdateUser(ctx, req); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	fmt.Fprintf(e.out, "Updated user %d\n", id)
	return nil
}

func runUserDelete(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("user-delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: deskctl user-delete USER_ID")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	if err := e.app.Console.ToggleUserDeleted(ctx, id); err != nil {
		return fmt.Errorf("toggle user: %w", err)
	}
	fmt.Fprintf(e.out, "Toggled deleted flag on user %d\n", id)
	return nil
}

func runAttachment(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("attachment")
	output := fs.StringP("output", "o", "", `destination file ("-" for stdout; default is the attachment name)`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: deskctl attachment NAME [-o FILE]")
	}
	name := fs.Arg(0)

	data, err := e.app.Console.Attachment(ctx, name)
	if err != nil {
		return fmt.Errorf("download attachment: %w", err)
	}

	dest := *output
	if dest == "" {
		dest = filepath.Base(ticket.StripCID(name))
	}
	if dest == "-" {
		_, err := e.out.Write(data)
		return err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	fmt.Fprintf(e.out, "Saved %s (%d bytes)\n", dest, len(data))
	return nil
}

// findUser pages through the user list until id turns up.
func findUser(ctx context.Context, c *console.Console, id int) (models.User, error) {
	for page := 1; ; page++ {
		users, err := c.Users(ctx, page, userScanPageSize)
		if err != nil {
			return models.User{}, fmt.Errorf("list users: %w", err)
		}
		for _, u := range users {
			if u.ID == id {
				return u, nil
			}
		}
		if !console.HasNextPage(len(users), userScanPageSize) {
			return models.User{}, fmt.Errorf("user %d not found", id)
		}
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
