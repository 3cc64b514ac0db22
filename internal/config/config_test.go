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

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DESKCONSOLE_CONFIG", "DESKCONSOLE_API_URL", "DESKCONSOLE_API_TIMEOUT",
		"DESKCONSOLE_API_WITH_CREDENTIALS", "DESKCONSOLE_SESSION_BACKEND",
		"DESKCONSOLE_SESSION_PATH", "DESKCONSOLE_SESSION_RECIPIENT",
		"DESKCONSOLE_SESSION_IDENTITY", "DESKCONSOLE_PROFILE", "REDIS_URL",
		"ALERTS_QUEUE", "DATABASE_URL", "CACHE_FRESHNESS", "POLL_INTERVAL",
		"POLL_PAGE_SIZE", "PORT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadFile_YAML verifies values are read from YAML with ${VAR}
// expansion.
func TestLoadFile_YAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("INBOX_HOST", "inbox.example.com")

	path := writeConfig(t, `
api:
  base_url: https://${INBOX_HOST}/api/
  timeout: 10s
  with_credentials: true
  rate_limit: 5
  burst: 2
session:
  backend: Redis
  profile: night-shift
redis:
  url: redis://cache:6379/1
  alerts_queue: alerts
cache:
  freshness: 2m
watch:
  interval: 30s
  page_size: 25
port: 9090
log_level: debug
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.API.BaseURL != "https://inbox.example.com/api" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 10*time.Second || !cfg.API.WithCredentials || cfg.API.RateLimit != 5 || cfg.API.Burst != 2 {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Session.Backend != BackendRedis || cfg.Session.Profile != "night-shift" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.RedisURL != "redis://cache:6379/1" || cfg.AlertsQueue != "alerts" {
		t.Errorf("redis = %q %q", cfg.RedisURL, cfg.AlertsQueue)
	}
	if cfg.CacheFreshness != 2*time.Minute || cfg.WatchInterval != 30*time.Second || cfg.WatchPageSize != 25 {
		t.Errorf("timings = %v %v %d", cfg.CacheFreshness, cfg.WatchInterval, cfg.WatchPageSize)
	}
	if cfg.Port != 9090 || cfg.LogLevel != slog.LevelDebug {
		t.Errorf("port/level = %d %v", cfg.Port, cfg.LogLevel)
	}
}

// TestLoad_EnvDefaults verifies a missing default file falls back to the
// environment and built-in defaults.
func TestLoad_EnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("DESKCONSOLE_API_URL", "http://localhost:5000")
	t.Setenv("POLL_INTERVAL", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:5000" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Session.Backend != BackendFile || cfg.Session.Profile != "default" || cfg.Session.Path == "" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.CacheFreshness != 5*time.Minute {
		t.Errorf("CacheFreshness = %v", cfg.CacheFreshness)
	}
	if cfg.WatchInterval != 15*time.Second || cfg.WatchPageSize != 50 {
		t.Errorf("watch = %v %d", cfg.WatchInterval, cfg.WatchPageSize)
	}
	if cfg.AlertsQueue != "ticket_alerts" || cfg.Port != 8080 || cfg.LogLevel != slog.LevelInfo {
		t.Errorf("cfg = %+v", cfg)
	}
}

// TestLoad_ExplicitPathMustExist verifies a named config file is required.
func TestLoad_ExplicitPathMustExist(t *testing.T) {
	clearEnv(t)
	t.Setenv("DESKCONSOLE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DESKCONSOLE_API_URL", "http://localhost:5000")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

// TestLoad_Validation covers the rejected combinations.
func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no base url", "session:\n  backend: memory\n", "api.base_url is required"},
		{"bad scheme", "api:\n  base_url: ftp://inbox\n", "must be an http(s) URL"},
		{"unknown backend", "api:\n  base_url: http://inbox\nsession:\n  backend: floppy\n", "unknown session.backend"},
		{"redis without url", "api:\n  base_url: http://inbox\nsession:\n  backend: redis\n", "needs redis.url"},
		{"postgres without url", "api:\n  base_url: http://inbox\nsession:\n  backend: postgres\n", "needs postgres.url"},
		{"recipient without identity", "api:\n  base_url: http://inbox\nsession:\n  recipient: age1xyz\n", "needs session.identity_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFile(writeConfig(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

// TestLoad_BadYAML verifies parse errors are reported.
func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFile(writeConfig(t, "api: [unclosed")); err == nil {
		t.Fatal("expected a parse error")
	}
}
