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

// deskctl is the operator command line for the support inbox.
//
//	deskctl [--config FILE] [-v] <command> [flags] [args]
//
// The session from "deskctl login" is kept in the configured session
// store and reused by every later command until it expires or the server
// rejects it.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bcem/deskconsole/internal/app"
	"github.com/bcem/deskconsole/internal/config"
)

// command is one deskctl subcommand.
type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

// env is what a command runs against.
type env struct {
	app    *app.App
	out    io.Writer
	in     *bufio.Reader
	logger *slog.Logger
}

var commands = map[string]command{
	"login":       {"sign in and keep the session", runLogin},
	"logout":      {"end the session", runLogout},
	"whoami":      {"show the signed-in operator", runWhoami},
	"tickets":     {"list tickets", runTickets},
	"reply":       {"reply to a ticket", runReply},
	"users":       {"list operator accounts", runUsers},
	"user-create": {"add an operator account", runUserCreate},
	"user-update": {"change an operator account", runUserUpdate},
	"user-delete": {"delete or restore an operator account", runUserDelete},
	"attachment":  {"download a ticket attachment", runAttachment},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var configPath string
	var verbose bool

	flagSet := pflag.NewFlagSet("deskctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $DESKCONSOLE_CONFIG or ./config.yaml)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log requests to stderr")
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printUsage(flagSet)
		return errors.New("no command given")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(flagSet)
		return fmt.Errorf("unknown command %q", args[0])
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, &env{app: a, out: os.Stdout, in: bufio.NewReader(os.Stdin), logger: logger}, args[1:])
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: deskctl [flags] <command> [command flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, commands[name].summary)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "flags:")
	fmt.Fprint(os.Stderr, flagSet.FlagUsages())
}

// newFlagSet returns a flag set for a subcommand that reports its own
// parse errors.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("deskctl "+name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}
