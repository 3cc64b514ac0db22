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

// deskwatch watches the support inbox for tickets that still need a reply.
//
// It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to Redis and PostgreSQL when configured
//  3. Reuses the stored operator session, or signs in from
//     DESKWATCH_EMAIL and DESKWATCH_PASSWORD_FILE
//  4. Polls the ticket list and queues one alert per new ticket awaiting
//     a reply
//  5. Serves /health and shuts down on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bcem/deskconsole/internal/app"
	"github.com/bcem/deskconsole/internal/config"
	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/queue"
	"github.com/bcem/deskconsole/internal/ticket"
	"github.com/bcem/deskconsole/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting deskwatch",
		"api", cfg.API.BaseURL,
		"session_backend", cfg.Session.Backend,
		"interval", cfg.WatchInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := ensureSession(ctx, a, logger); err != nil {
		logger.Error("failed to sign in", "error", err)
		os.Exit(1)
	}

	// --- Alert sink and seen filter ---
	var sink alertSink = logSink{logger: logger}
	var queueCheck pinger
	var seen watch.SeenFilter = watch.NewMemorySeen(watch.DefaultSeenTTL)
	if a.Redis != nil {
		publisher := queue.NewPublisher(a.Redis, cfg.AlertsQueue, logger)
		sink = publisher
		queueCheck = publisher
		seen = watch.NewRedisSeen(a.Redis, watch.DefaultSeenTTL)
	} else {
		logger.Warn("no redis configured; alerts are logged and seen tickets are forgotten on restart")
	}

	poller := watch.NewPoller(a.Console, seen, watch.Config{
		Interval: cfg.WatchInterval,
		PageSize: cfg.WatchPageSize,
		Logger:   logger,
	}, func(ctx context.Context, t models.Ticket, state ticket.ReplyState) error {
		return sink.Publish(ctx, queue.NewTicketAlert(t, state, time.Now()))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	// --- Health check server ---
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler(a, queueCheck, a.Store.TokenSource()))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-done

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("deskwatch listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("deskwatch stopped")
}

// ensureSession signs in from the environment when no session is stored.
// Without credentials in the environment a missing session is only
// logged and /health reports signed_out.
func ensureSession(ctx context.Context, a *app.App, logger *slog.Logger) error {
	if cred, ok := a.Console.Session(); ok {
		logger.Info("using stored session", "operator", cred.DisplayName())
		return nil
	}

	email := os.Getenv("DESKWATCH_EMAIL")
	passwordFile := os.Getenv("DESKWATCH_PASSWORD_FILE")
	if email == "" || passwordFile == "" {
		logger.Warn("no operator signed in; run deskctl login against the same session store and restart")
		return nil
	}

	data, err := os.ReadFile(passwordFile)
	if err != nil {
		return fmt.Errorf("read password file: %w", err)
	}
	_, err = a.Console.SignIn(ctx, email, strings.TrimRight(string(data), "\r\n"))
	return err
}

// alertSink receives one alert per newly seen ticket.
type alertSink interface {
	Publish(ctx context.Context, alert queue.TicketAlert) error
}

// logSink reports alerts in the log when no queue is configured.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Publish(_ context.Context, alert queue.TicketAlert) error {
	s.logger.Info("ticket needs reply",
		"ticket_id", alert.TicketID,
		"state", alert.State,
		"from", alert.From,
		"subject", alert.Subject,
	)
	return nil
}
