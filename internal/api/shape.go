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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/bcem/deskconsole/internal/schema"
)

// Target is where a request payload travels.
type Target int

const (
	TargetNone Target = iota
	TargetQuery
	TargetBody
	TargetMultipart
)

func (t Target) String() string {
	switch t {
	case TargetNone:
		return "none"
	case TargetQuery:
		return "query"
	case TargetBody:
		return "body"
	case TargetMultipart:
		return "multipart"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Shaped is the outgoing form of a payload.
type Shaped struct {
	Target      Target
	Query       url.Values
	Body        []byte
	ContentType string
}

type shaper func(payload any) (Shaped, error)

// shapers maps a method to how its payload is carried. Methods not listed
// send a JSON body.
var shapers = map[string]shaper{
	http.MethodGet:    shapeQuery,
	http.MethodDelete: shapeNone,
}

// shape picks the carrier for payload. A form always wins, whatever the method.
func shape(method string, payload any) (Shaped, error) {
	if form := formOf(payload); form != nil {
		return shapeMultipart(form)
	}
	if fn, ok := shapers[strings.ToUpper(method)]; ok {
		return fn(payload)
	}
	return shapeBody(payload)
}

func formOf(payload any) *schema.Form {
	switch p := payload.(type) {
	case *schema.Form:
		return p
	case schema.Multiparter:
		return p.MultipartForm()
	default:
		return nil
	}
}

func shapeNone(any) (Shaped, error) {
	return Shaped{Target: TargetNone}, nil
}

func shapeQuery(payload any) (Shaped, error) {
	if payload == nil {
		return Shaped{Target: TargetQuery}, nil
	}
	values, err := query.Values(payload)
	if err != nil {
		return Shaped{}, fmt.Errorf("encode query: %w", err)
	}
	return Shaped{Target: TargetQuery, Query: values}, nil
}

func shapeBody(payload any) (Shaped, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Shaped{}, fmt.Errorf("encode body: %w", err)
	}
	return Shaped{Target: TargetBody, Body: body, ContentType: "application/json"}, nil
}

func shapeMultipart(form *schema.Form) (Shaped, error) {
	body, contentType, err := form.Encode()
	if err != nil {
		return Shaped{}, fmt.Errorf("encode multipart: %w", err)
	}
	return Shaped{Target: TargetMultipart, Body: body, ContentType: contentType}, nil
}
