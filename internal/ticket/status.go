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

// Package ticket derives the operator-facing reply state of a ticket from
// its raw API fields. Classify is the only place that mapping lives: list
// filters, badges and the watcher all go through it.
package ticket

import (
	"errors"
	"fmt"

	"github.com/bcem/deskconsole/internal/models"
)

// ReplyState is the closed set of semantic states a ticket can be in.
type ReplyState int

const (
	// NeedsReplyUrgent: open and the sender expects an answer.
	NeedsReplyUrgent ReplyState = iota + 1
	// NeedsReply: open, no answer explicitly expected.
	NeedsReply
	// Answered: completed.
	Answered
)

func (s ReplyState) String() string {
	switch s {
	case NeedsReplyUrgent:
		return "needs_reply_urgent"
	case NeedsReply:
		return "needs_reply"
	case Answered:
		return "answered"
	default:
		return fmt.Sprintf("reply_state(%d)", int(s))
	}
}

// ParseReplyState is the inverse of String.
func ParseReplyState(s string) (ReplyState, error) {
	switch s {
	case "needs_reply_urgent":
		return NeedsReplyUrgent, nil
	case "needs_reply":
		return NeedsReply, nil
	case "answered":
		return Answered, nil
	default:
		return 0, fmt.Errorf("unknown reply state %q", s)
	}
}

// ErrUnknownStatus matches every *UnknownStatusError.
var ErrUnknownStatus = errors.New("ticket: unhandled status")

// UnknownStatusError reports a raw status Classify has no mapping for.
type UnknownStatusError struct {
	TicketID int
	Status   int
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("ticket %d: unhandled status %d", e.TicketID, e.Status)
}

// Is lets errors.Is(err, ErrUnknownStatus) match.
func (e *UnknownStatusError) Is(target error) bool {
	return target == ErrUnknownStatus
}

// Classify maps a ticket to its reply state:
//
//	status 2                      -> Answered
//	status 1, shouldBeAnswered    -> NeedsReplyUrgent
//	status 1, !shouldBeAnswered   -> NeedsReply
//
// Any other status, including 0, is rejected with *UnknownStatusError.
func Classify(t models.Ticket) (ReplyState, error) {
	switch t.Status {
	case models.StatusCompleted:
		return Answered, nil
	case models.StatusOpen:
		if t.ShouldBeAnswered {
			return NeedsReplyUrgent, nil
		}
		return NeedsReply, nil
	default:
		return 0, &UnknownStatusError{TicketID: t.ID, Status: t.Status}
	}
}

// AwaitsReply reports whether the state still wants an operator reply.
func (s ReplyState) AwaitsReply() bool {
	return s == NeedsReplyUrgent || s == NeedsReply
}
