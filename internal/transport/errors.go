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

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPError is a non-2xx response. Callers can use errors.As to get at
// the status and the server's message:
//
//	var httpErr *HTTPError
//	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusConflict { ... }
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	// Message is the server's explanation when the body carried one.
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("transport: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsStatus reports whether err is an *HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == status
	}
	return false
}

// errorBody covers the plain {message} shape and ASP.NET problem details.
type errorBody struct {
	Message string `json:"message"`
	Title   string `json:"title"`
	Detail  string `json:"detail"`
}

func newHTTPError(method, path string, status int, body []byte) *HTTPError {
	e := &HTTPError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Body:       body,
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, candidate := range []string{parsed.Message, parsed.Detail, parsed.Title} {
			if strings.TrimSpace(candidate) != "" {
				e.Message = candidate
				break
			}
		}
		return e
	}

	// Plain-text bodies are short enough to surface directly.
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		e.Message = text
	}
	return e
}
