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

// Package transport performs HTTP calls against the inbox API under two
// trust profiles.
//
// Public calls are sent as-is. Private calls read the credential store
// for every request and attach the bearer token when one exists; a 401
// on a private call clears the store before the error is returned. That
// is the only place a session is invalidated automatically.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/bcem/deskconsole/internal/models"
)

// MaxResponseSize bounds response body reads: 256 MiB.
const MaxResponseSize int64 = 256 << 20

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Profile selects whether a call carries the operator's credentials.
type Profile int

const (
	// Private calls attach the bearer token and react to 401.
	Private Profile = iota
	// Public calls never touch the credential store.
	Public
)

func (p Profile) String() string {
	if p == Public {
		return "public"
	}
	return "private"
}

// Credentials is the part of the credential store the transport needs.
type Credentials interface {
	Get() (models.Credential, bool)
	Clear()
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://inbox.example.com/api".
	BaseURL string
	// Header is sent with every request. Request headers win on conflict.
	Header http.Header
	// WithCredentials keeps cookies between requests.
	WithCredentials bool
	// Timeout is the per-request timeout. Zero means 30s.
	Timeout time.Duration
	// RateLimit caps outbound requests per second. Zero disables it.
	RateLimit float64
	Burst     int
	// HTTPClient overrides the client built from the fields above.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Request is one API call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Response is a completed 2xx call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends requests to one API base URL.
type Client struct {
	baseURL string
	header  http.Header
	http    *http.Client
	limiter *rate.Limiter
	creds   Credentials
	logger  *slog.Logger
}

// New creates a Client. creds may be nil when only public calls are made.
func New(cfg Config, creds Credentials) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
		if cfg.WithCredentials {
			jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
			if err != nil {
				return nil, fmt.Errorf("create cookie jar: %w", err)
			}
			hc.Jar = jar
		}
	}

	header := http.Header{"Accept": []string{"*/*"}}
	for k, v := range cfg.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(base.String(), "/"),
		header:  header,
		http:    hc,
		limiter: limiter,
		creds:   creds,
		logger:  logger,
	}, nil
}

// Public performs req without credentials.
func (c *Client) Public(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, Public, req)
}

// Private performs req with the current credentials, if any.
func (c *Client) Private(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, Private, req)
}

// Do performs req under profile. Non-2xx responses are returned as
// *HTTPError; the response body is never nil on success.
func (c *Client) Do(ctx context.Context, profile Profile, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("transport: rate limit wait: %w", err)
		}
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	if profile == Private && c.creds != nil {
		// Read per request; the token is never retained past this call.
		if cred, ok := c.creds.Get(); ok && cred.Authenticated() {
			cred.Token().SetAuthHeader(httpReq)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s failed: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("transport: read response body: %w", err)
	}

	c.logger.Debug("api call",
		"method", req.Method,
		"path", req.Path,
		"profile", profile.String(),
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", httpReq.Header.Get(RequestIDHeader),
	)

	if profile == Private && resp.StatusCode == http.StatusUnauthorized && c.creds != nil {
		c.logger.Warn("session rejected by API, clearing credentials",
			"method", req.Method,
			"path", req.Path,
		)
		c.creds.Clear()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(req.Method, req.Path, resp.StatusCode, body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("transport: create request: %w", err)
	}

	for k, v := range c.header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	for k, v := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	}
	return httpReq, nil
}
