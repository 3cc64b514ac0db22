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
	"errors"
	"fmt"

	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/query"
	"github.com/bcem/deskconsole/internal/schema"
)

const (
	defaultTicketPage   = 1
	defaultTicketAmount = 10
)

// alreadyAnswered is the server message for a reply to an answered ticket.
const alreadyAnswered = "Ticket was already answered"

// TicketFilter narrows the ticket list. Zero Page and Amount take the
// defaults (1 and 10).
type TicketFilter struct {
	Page     int
	Amount   int
	FromDate string
	ToDate   string
	From     string
	// Status, when set, is the raw server status (1 open, 2 completed).
	Status *int
}

func (f TicketFilter) query() schema.TicketQuery {
	q := schema.TicketQuery{
		Page:     f.Page,
		Amount:   f.Amount,
		FromDate: f.FromDate,
		ToDate:   f.ToDate,
		From:     f.From,
		Status:   f.Status,
	}
	if q.Page == 0 {
		q.Page = defaultTicketPage
	}
	if q.Amount == 0 {
		q.Amount = defaultTicketAmount
	}
	return q
}

// TicketsKey is the cache key for a filter under the current session.
func (c *Console) TicketsKey(f TicketFilter) (query.Key, error) {
	return c.sessionKey(EntityTickets, f.query())
}

// Tickets returns one page of tickets, from cache while fresh.
func (c *Console) Tickets(ctx context.Context, f TicketFilter) (schema.TicketPage, error) {
	key, err := c.TicketsKey(f)
	if err != nil {
		return schema.TicketPage{}, err
	}
	q := f.query()
	return query.Fetch(ctx, c.queries, key, func(ctx context.Context) (schema.TicketPage, error) {
		return c.api.ListTickets(ctx, q)
	})
}

// RefreshTickets fetches a page from the server even when the cached one
// is fresh.
func (c *Console) RefreshTickets(ctx context.Context, f TicketFilter) (schema.TicketPage, error) {
	key, err := c.TicketsKey(f)
	if err != nil {
		return schema.TicketPage{}, err
	}
	q := f.query()
	return query.Refetch(ctx, c.queries, key, func(ctx context.Context) (schema.TicketPage, error) {
		return c.api.ListTickets(ctx, q)
	})
}

// Reply answers a ticket, attaching files when given. Only one reply per
// ticket can be in flight. A server-side refusal comes back as a result
// with Success false, not as an error; only an accepted reply makes the
// ticket lists stale.
func (c *Console) Reply(ctx context.Context, ticketID int, content string, files ...schema.File) (schema.ReplyResult, error) {
	if _, err := c.requireSession(); err != nil {
		return schema.ReplyResult{}, err
	}

	req := schema.ReplyRequest{ID: ticketID, Content: content, Files: files}
	res, err := query.MutateFor(ctx, c.queries, EntityTickets, ticketID, func(ctx context.Context) (schema.ReplyResult, error) {
		return c.api.ReplyToTicket(ctx, req)
	})
	if err != nil {
		c.logger.Error("failed to send reply", "ticket_id", ticketID, "error", err)
		return res, fmt.Errorf("reply to ticket %d: %w", ticketID, err)
	}

	if res.Success {
		c.queries.Invalidate(ctx, EntityTickets)
		c.logger.Info("reply sent", "ticket_id", ticketID, "files", len(files))
	} else {
		c.logger.Warn("reply refused", "ticket_id", ticketID, "message", res.Message)
	}
	return res, nil
}

// ReplyPending reports whether a reply to ticketID is being sent.
func (c *Console) ReplyPending(ticketID int) bool {
	return c.queries.Pending(EntityTickets, ticketID)
}

// DescribeReply turns the outcome of Reply into operator feedback.
func DescribeReply(res schema.ReplyResult, err error) string {
	switch {
	case errors.Is(err, query.ErrInFlight):
		return "A reply to this ticket is already being sent"
	case err != nil:
		return "The reply could not be sent"
	case res.Success:
		return "Reply sent"
	case res.Message == alreadyAnswered:
		return "This ticket has already been answered"
	default:
		return "The reply could not be sent"
	}
}

// TicketByID looks a ticket up in a page.
func TicketByID(page schema.TicketPage, id int) (models.Ticket, bool) {
	for _, t := range page.Tickets {
		if t.ID == id {
			return t, true
		}
	}
	return models.Ticket{}, false
}
