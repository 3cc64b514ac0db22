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

// Package queue publishes ticket alerts to a Redis list as Celery-compatible
// tasks, for notifier workers to pick up.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/ticket"
)

// DefaultTask is the worker task alerts are addressed to.
const DefaultTask = "notify.tasks.ticket_needs_reply"

// TicketAlert reports a ticket newly awaiting a reply.
type TicketAlert struct {
	ID         string    `json:"id"`
	TicketID   int       `json:"ticket_id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	State      string    `json:"state"`
	Provider   string    `json:"provider"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewTicketAlert builds the alert for t.
func NewTicketAlert(t models.Ticket, state ticket.ReplyState, now time.Time) TicketAlert {
	return TicketAlert{
		ID:         uuid.NewString(),
		TicketID:   t.ID,
		Subject:    t.Subject,
		From:       t.From,
		State:      state.String(),
		Provider:   string(ticket.ProviderStyleKey(t.From)),
		DetectedAt: now.UTC(),
	}
}

// Pusher is the part of a Redis client the publisher uses. redis.Cmdable
// satisfies it.
type Pusher interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Publisher pushes alerts onto one Redis list.
type Publisher struct {
	rdb       Pusher
	queueName string
	task      string
	logger    *slog.Logger
}

// NewPublisher creates a publisher targeting queueName.
func NewPublisher(rdb Pusher, queueName string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		task:      DefaultTask,
		logger:    logger,
	}
}

// WithTask addresses alerts to another worker task.
func (p *Publisher) WithTask(task string) *Publisher {
	p.task = task
	return p
}

type celeryTask struct {
	ID      string         `json:"id"`
	Task    string         `json:"task"`
	Args    []any          `json:"args"`
	Kwargs  map[string]any `json:"kwargs"`
	Retries int            `json:"retries"`
	ETA     *string        `json:"eta"`
}

type celeryMessage struct {
	Body            string         `json:"body"`
	ContentEncoding string         `json:"content-encoding"`
	ContentType     string         `json:"content-type"`
	Headers         map[string]any `json:"headers"`
	Properties      map[string]any `json:"properties"`
}

// Publish LPUSHes alert wrapped in a Celery message. The alert ID is the
// task ID.
func (p *Publisher) Publish(ctx context.Context, alert TicketAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	alertJSON, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal ticket alert: %w", err)
	}

	body, err := json.Marshal(celeryTask{
		ID:     alert.ID,
		Task:   p.task,
		Args:   []any{string(alertJSON)},
		Kwargs: map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	msg, err := json.Marshal(celeryMessage{
		Body:            string(body),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]any{
			"lang":    "py",
			"task":    p.task,
			"id":      alert.ID,
			"retries": 0,
		},
		Properties: map[string]any{
			"correlation_id": alert.ID,
			"delivery_mode":  2,
			"delivery_tag":   alert.ID,
			"body_encoding":  "utf-8",
			"delivery_info": map[string]string{
				"exchange":    p.queueName,
				"routing_key": p.queueName,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(msg)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	p.logger.Info("published ticket alert",
		"alert_id", alert.ID,
		"ticket_id", alert.TicketID,
		"state", alert.State,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
