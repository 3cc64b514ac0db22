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
	"errors"
	"fmt"

	"github.com/bcem/deskconsole/internal/schema"
)

// ErrRequestInvalid matches every *RequestError.
var ErrRequestInvalid = errors.New("api: request validation failed")

// RequestError is returned when a payload breaks its schema. The request
// was not sent.
type RequestError struct {
	Endpoint   string
	Violations []schema.Violation
	Err        error
}

func newRequestError(endpoint string, err error) *RequestError {
	return &RequestError{
		Endpoint:   endpoint,
		Violations: schema.ViolationsOf(err),
		Err:        err,
	}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request validation failed: %v", e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRequestInvalid) match.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestInvalid
}
