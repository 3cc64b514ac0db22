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

// Package models defines the data structures shared across the console:
// tickets and users as the inbox API returns them, and the operator
// credential held by the credential store.
package models

// Raw ticket status values as stored by the inbox API.
const (
	StatusUnknown   = 0
	StatusOpen      = 1
	StatusCompleted = 2
)

// Ticket represents one inbound support message.
//
// Content is HTML produced by the mail-ingestion service. It is passed
// through untouched; rendering surfaces are responsible for treating it
// as untrusted markup.
type Ticket struct {
	ID               int      `json:"id" validate:"gte=0"`
	Subject          string   `json:"subject"`
	From             string   `json:"from" validate:"required"`
	To               string   `json:"to"`
	Content          string   `json:"content"`
	Date             string   `json:"date" validate:"required"`
	Status           int      `json:"status" validate:"gte=0"`
	ShouldBeAnswered bool     `json:"shouldBeAnswered"`
	TicketAnswer     string   `json:"ticketAnswer,omitempty"`
	Attachments      []string `json:"attachments,omitempty"`
	IsDeleted        bool     `json:"isDeleted"`
}

// Answered reports whether the ticket carries the text of a prior reply.
func (t Ticket) Answered() bool {
	return t.TicketAnswer != ""
}
