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

// Package api turns declarative endpoint definitions into typed calls.
//
// Every endpoint the console talks to is an Endpoint value: a method, a
// path (fixed or derived from the request), request and response schemas
// and a trust profile. New compiles an Endpoint into a Call that
//
//  1. normalises and validates the request, refusing to send it when it
//     breaks a rule (multipart forms built by the caller skip this step);
//  2. shapes it by method: GET becomes query parameters, DELETE carries
//     nothing beyond its path, everything else becomes a JSON body, and
//     any form becomes a multipart body;
//  3. sends it through the transport under the endpoint's profile;
//  4. decodes and checks the response. Void endpoints ignore the body.
//     Responses that fail to decode or validate are logged and returned
//     as decoded, never turned into errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bcem/deskconsole/internal/schema"
	"github.com/bcem/deskconsole/internal/transport"
)

// Doer sends one request under a trust profile. *transport.Client is the
// production implementation.
type Doer interface {
	Do(ctx context.Context, profile transport.Profile, req *transport.Request) (*transport.Response, error)
}

// Path resolves an endpoint path, either fixed or computed from the request.
type Path[Req any] struct {
	static  string
	resolve func(Req) string
}

// Static is a fixed path.
func Static[Req any](path string) Path[Req] {
	return Path[Req]{static: path}
}

// Resolve derives the path from the request, for ids embedded in the path.
func Resolve[Req any](fn func(Req) string) Path[Req] {
	return Path[Req]{resolve: fn}
}

// For returns the path for req.
func (p Path[Req]) For(req Req) string {
	if p.resolve != nil {
		return p.resolve(req)
	}
	return p.static
}

// Endpoint declares one API operation.
type Endpoint[Req, Resp any] struct {
	// Name identifies the endpoint in logs and errors.
	Name     string
	Method   string
	Path     Path[Req]
	Request  schema.Schema[Req]
	Response schema.Schema[Resp]
	Profile  transport.Profile
	// Header is added to every request of this endpoint.
	Header http.Header
}

// Call is a compiled endpoint.
type Call[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Mismatch describes a response that did not match its declared schema.
type Mismatch struct {
	Endpoint string
	Err      error
	// Body is the raw response, for callers that want to inspect drift.
	Body []byte
}

// Factory holds what every compiled call shares.
type Factory struct {
	doer       Doer
	logger     *slog.Logger
	onMismatch func(Mismatch)
}

// NewFactory returns a factory sending through doer.
func NewFactory(doer Doer, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{doer: doer, logger: logger}
}

// OnMismatch registers fn to be told about every lenient response.
func (f *Factory) OnMismatch(fn func(Mismatch)) *Factory {
	f.onMismatch = fn
	return f
}

// emptyValuer is implemented by response schemas that give an empty body
// a meaning of its own (see schema.OrEmpty).
type emptyValuer[T any] interface {
	EmptyValue() T
}

// New compiles ep into a Call.
func New[Req, Resp any](f *Factory, ep Endpoint[Req, Resp]) Call[Req, Resp] {
	if ep.Request == nil {
		ep.Request = schema.Any[Req]()
	}
	if ep.Response == nil {
		ep.Response = schema.Any[Resp]()
	}

	return func(ctx context.Context, req Req) (Resp, error) {
		var zero Resp

		if _, isForm := any(req).(*schema.Form); !isForm {
			schema.Normalize(&req)
			if err := ep.Request.Validate(req); err != nil {
				f.logger.Warn("request validation failed", "endpoint", ep.Name, "error", err)
				return zero, newRequestError(ep.Name, err)
			}
		}

		s, err := shape(ep.Method, req)
		if err != nil {
			return zero, fmt.Errorf("%s: shape request: %w", ep.Name, err)
		}

		treq := &transport.Request{
			Method: ep.Method,
			Path:   ep.Path.For(req),
			Query:  s.Query,
			Body:   s.Body,
			Header: ep.Header.Clone(),
		}
		if s.ContentType != "" {
			if treq.Header == nil {
				treq.Header = http.Header{}
			}
			treq.Header.Set("Content-Type", s.ContentType)
		}

		resp, err := f.doer.Do(ctx, ep.Profile, treq)
		if err != nil {
			return zero, fmt.Errorf("%s: %w", ep.Name, err)
		}

		return decode(f, ep, resp.Body), nil
	}
}

func decode[Req, Resp any](f *Factory, ep Endpoint[Req, Resp], body []byte) Resp {
	var out Resp

	switch ep.Response.Kind() {
	case schema.KindVoid:
		return out
	case schema.KindBinary:
		if raw, ok := any(body).(Resp); ok {
			return raw
		}
		f.mismatch(ep.Name, fmt.Errorf("binary response needs a []byte result, have %T", out), body)
		return out
	}

	if len(bytes.TrimSpace(body)) == 0 {
		if e, ok := ep.Response.(emptyValuer[Resp]); ok {
			return e.EmptyValue()
		}
	}

	if err := json.Unmarshal(body, &out); err != nil {
		f.mismatch(ep.Name, fmt.Errorf("decode response: %w", err), body)
		return out
	}
	if err := ep.Response.Validate(out); err != nil {
		f.mismatch(ep.Name, err, body)
	}
	return out
}

func (f *Factory) mismatch(endpoint string, err error, body []byte) {
	f.logger.Warn("response did not match schema, returning it unvalidated",
		"endpoint", endpoint,
		"error", err,
		"body_bytes", len(body),
	)
	if f.onMismatch != nil {
		f.onMismatch(Mismatch{Endpoint: endpoint, Err: err, Body: body})
	}
}
