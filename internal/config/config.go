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

// Package config loads configuration from a YAML file and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when DESKCONSOLE_CONFIG is unset. It may be absent.
const DefaultPath = "config.yaml"

// Session backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// APIConfig describes the inbox API.
type APIConfig struct {
	BaseURL         string
	Timeout         time.Duration
	WithCredentials bool
	RateLimit       float64
	Burst           int
}

// SessionConfig selects where the operator session is kept.
type SessionConfig struct {
	Backend string
	// Path is the session file for the file backend.
	Path string
	// Recipient and IdentityFile seal the session file with age. Both
	// empty leaves it in plain JSON.
	Recipient    string
	IdentityFile string
	// Profile names the session in shared backends.
	Profile string
}

// Config holds all configuration for the console tools.
type Config struct {
	API     APIConfig
	Session SessionConfig

	RedisURL    string
	AlertsQueue string
	PostgresURL string

	CacheFreshness time.Duration
	WatchInterval  time.Duration
	WatchPageSize  int

	// Health server (deskwatch only)
	Port     int
	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	API struct {
		BaseURL         string  `yaml:"base_url"`
		Timeout         string  `yaml:"timeout"`
		WithCredentials *bool   `yaml:"with_credentials"`
		RateLimit       float64 `yaml:"rate_limit"`
		Burst           int     `yaml:"burst"`
	} `yaml:"api"`
	Session struct {
		Backend      string `yaml:"backend"`
		Path         string `yaml:"path"`
		Recipient    string `yaml:"recipient"`
		IdentityFile string `yaml:"identity_file"`
		Profile      string `yaml:"profile"`
	} `yaml:"session"`
	Redis struct {
		URL         string `yaml:"url"`
		AlertsQueue string `yaml:"alerts_queue"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Cache struct {
		Freshness string `yaml:"freshness"`
	} `yaml:"cache"`
	Watch struct {
		Interval string `yaml:"interval"`
		PageSize int    `yaml:"page_size"`
	} `yaml:"watch"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// Load reads the file named by DESKCONSOLE_CONFIG, or DefaultPath.
func Load() (*Config, error) {
	path := os.Getenv("DESKCONSOLE_CONFIG")
	if path == "" {
		return load(DefaultPath, true)
	}
	return load(path, false)
}

// LoadFile reads configuration from path, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, optional bool) (*Config, error) {
	var raw rawConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:         strings.TrimRight(firstNonEmpty(raw.API.BaseURL, os.Getenv("DESKCONSOLE_API_URL")), "/"),
			Timeout:         durationOr(raw.API.Timeout, envOrDefaultDuration("DESKCONSOLE_API_TIMEOUT", 30*time.Second)),
			WithCredentials: boolOr(raw.API.WithCredentials, envOrDefaultBool("DESKCONSOLE_API_WITH_CREDENTIALS", false)),
			RateLimit:       raw.API.RateLimit,
			Burst:           raw.API.Burst,
		},
		Session: SessionConfig{
			Backend:      strings.ToLower(firstNonEmpty(raw.Session.Backend, envOrDefault("DESKCONSOLE_SESSION_BACKEND", BackendFile))),
			Path:         firstNonEmpty(raw.Session.Path, os.Getenv("DESKCONSOLE_SESSION_PATH"), defaultSessionPath()),
			Recipient:    firstNonEmpty(raw.Session.Recipient, os.Getenv("DESKCONSOLE_SESSION_RECIPIENT")),
			IdentityFile: firstNonEmpty(raw.Session.IdentityFile, os.Getenv("DESKCONSOLE_SESSION_IDENTITY")),
			Profile:      firstNonEmpty(raw.Session.Profile, envOrDefault("DESKCONSOLE_PROFILE", "default")),
		},
		RedisURL:       firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		AlertsQueue:    firstNonEmpty(raw.Redis.AlertsQueue, envOrDefault("ALERTS_QUEUE", "ticket_alerts")),
		PostgresURL:    firstNonEmpty(raw.Postgres.URL, os.Getenv("DATABASE_URL")),
		CacheFreshness: durationOr(raw.Cache.Freshness, envOrDefaultDuration("CACHE_FRESHNESS", 5*time.Minute)),
		WatchInterval:  durationOr(raw.Watch.Interval, envOrDefaultDuration("POLL_INTERVAL", 60*time.Second)),
		WatchPageSize:  intOr(raw.Watch.PageSize, envOrDefaultInt("POLL_PAGE_SIZE", 50)),
		Port:           intOr(raw.Port, envOrDefaultInt("PORT", 8080)),
		LogLevel:       parseLevel(firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info"))),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required (or set DESKCONSOLE_API_URL)")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	switch c.Session.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("session.backend redis needs redis.url")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("session.backend postgres needs postgres.url")
		}
	default:
		return fmt.Errorf("unknown session.backend %q", c.Session.Backend)
	}
	if c.Session.Recipient != "" && c.Session.IdentityFile == "" {
		return errors.New("session.recipient needs session.identity_file to read the session back")
	}
	return nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".deskconsole-session.json"
	}
	return filepath.Join(dir, "deskconsole", "session.json")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func intOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

func boolOr(b *bool, fallback bool) bool {
	if b != nil {
		return *b
	}
	return fallback
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
