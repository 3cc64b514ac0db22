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

package ticket

import (
	"fmt"

	"github.com/bcem/deskconsole/internal/models"
)

// Filter keeps the tickets whose reply state is one of states, in order.
// With no states every ticket is kept, but each is still classified so a
// bad status surfaces here rather than in whatever renders the result.
func Filter(tickets []models.Ticket, states ...ReplyState) ([]models.Ticket, error) {
	want := make(map[ReplyState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	out := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		state, err := Classify(t)
		if err != nil {
			return nil, fmt.Errorf("filter tickets: %w", err)
		}
		if len(want) == 0 || want[state] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Counts holds the number of tickets per reply state.
type Counts struct {
	NeedsReplyUrgent int
	NeedsReply       int
	Answered         int
}

// Total is the number of tickets counted.
func (t Counts) Total() int {
	return t.NeedsReplyUrgent + t.NeedsReply + t.Answered
}

// Tally classifies every ticket and counts the results.
func Tally(tickets []models.Ticket) (Counts, error) {
	var tally Counts
	for _, t := range tickets {
		state, err := Classify(t)
		if err != nil {
			return Counts{}, fmt.Errorf("count tickets: %w", err)
		}
		switch state {
		case NeedsReplyUrgent:
			tally.NeedsReplyUrgent++
		case NeedsReply:
			tally.NeedsReply++
		case Answered:
			tally.Answered++
		}
	}
	return tally, nil
}
