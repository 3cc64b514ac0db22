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

// Package watch keeps the inbox fresh in the background and reports each
// ticket the first time it is seen needing a reply.
package watch

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/bcem/deskconsole/internal/console"
	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/schema"
	"github.com/bcem/deskconsole/internal/ticket"
)

// TicketSource lists tickets straight from the server. *console.Console
// implements it.
type TicketSource interface {
	RefreshTickets(ctx context.Context, f console.TicketFilter) (schema.TicketPage, error)
}

// TicketCallback is called once for each ticket newly awaiting a reply.
type TicketCallback func(ctx context.Context, t models.Ticket, state ticket.ReplyState) error

// Config tunes a Poller.
type Config struct {
	Interval time.Duration
	// PageSize is the amount requested per page.
	PageSize int
	// MaxPages bounds how far into the inbox each poll reads.
	MaxPages int
	Logger   *slog.Logger
}

// Poller periodically refreshes the ticket list.
type Poller struct {
	source   TicketSource
	seen     SeenFilter
	onTicket TicketCallback
	interval time.Duration
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// NewPoller creates a poller. Zero config fields take defaults: every
// minute, one page of 50.
func NewPoller(source TicketSource, seen SeenFilter, cfg Config, onTicket TicketCallback) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		source:   source,
		seen:     seen,
		onTicket: onTicket,
		interval: cfg.Interval,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   cfg.Logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("inbox watcher starting",
		"interval", p.interval,
		"page_size", p.pageSize,
		"max_pages", p.maxPages,
	)

	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("inbox watcher stopping")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll reads the inbox once and returns how many tickets were reported.
func (p *Poller) Poll(ctx context.Context) int {
	reported := 0
	for page := 1; page <= p.maxPages; page++ {
		res, err := p.source.RefreshTickets(ctx, console.TicketFilter{Page: page, Amount: p.pageSize})
		if err != nil {
			p.logger.Error("failed to list tickets", "page", page, "error", err)
			return reported
		}

		for _, t := range res.Tickets {
			if p.check(ctx, t) {
				reported++
			}
		}

		if !console.HasNextPage(len(res.Tickets), p.pageSize) {
			break
		}
	}

	if reported > 0 {
		p.logger.Info("tickets awaiting reply", "new", reported)
	} else {
		p.logger.Debug("no new tickets awaiting reply")
	}
	return reported
}

func (p *Poller) check(ctx context.Context, t models.Ticket) bool {
	state, err := ticket.Classify(t)
	if err != nil {
		p.logger.Warn("skipping ticket", "ticket_id", t.ID, "error", err)
		return false
	}
	if !state.AwaitsReply() {
		return false
	}

	isNew, err := p.seen.IsNew(ctx, strconv.Itoa(t.ID))
	if err != nil {
		p.logger.Error("seen check failed", "ticket_id", t.ID, "error", err)
		return false
	}
	if !isNew {
		return false
	}

	if err := p.onTicket(ctx, t, state); err != nil {
		p.logger.Error("failed to report ticket",
			"ticket_id", t.ID,
			"state", state.String(),
			"error", err,
		)
		// Unmark so the next poll retries.
		if err := p.seen.Forget(ctx, strconv.Itoa(t.ID)); err != nil {
			p.logger.Error("failed to release seen mark", "ticket_id", t.ID, "error", err)
		}
		return false
	}
	return true
}
