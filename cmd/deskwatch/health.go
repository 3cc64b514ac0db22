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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/bcem/deskconsole/internal/credential"
)

// pinger is anything whose connection can be checked.
type pinger interface {
	Ping(ctx context.Context) error
}

type healthReport struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// healthHandler reports unhealthy when a connection is down or no
// operator is signed in. queue may be nil.
func healthHandler(conns pinger, queue pinger, session oauth2.TokenSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "healthy"}
		code := http.StatusOK

		if err := conns.Ping(r.Context()); err != nil {
			report = healthReport{Status: "unhealthy", Reason: err.Error()}
			code = http.StatusServiceUnavailable
		} else if queue != nil {
			if err := queue.Ping(r.Context()); err != nil {
				report = healthReport{Status: "unhealthy", Reason: "queue: " + err.Error()}
				code = http.StatusServiceUnavailable
			}
		}
		if code == http.StatusOK {
			if _, err := session.Token(); errors.Is(err, credential.ErrSignedOut) {
				report = healthReport{Status: "signed_out"}
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}
