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

package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/ticket"
)

// SignInRequest is the body of POST /Auth.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Normalize lower-cases the email and trims the password.
func (r *SignInRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Password = strings.TrimSpace(r.Password)
}

// SignInResponse is the canonical /Auth response.
type SignInResponse struct {
	AccessToken string `json:"accessToken" validate:"required"`
	Role        string `json:"role"`
}

// TicketQuery holds the list filters for GET /Ticket.
type TicketQuery struct {
	Page     int    `json:"page" url:"page" validate:"min=1"`
	Amount   int    `json:"amount" url:"amount" validate:"min=1,max=500"`
	FromDate string `json:"fromDate,omitempty" url:"fromDate,omitempty" validate:"omitempty,isodate"`
	ToDate   string `json:"toDate,omitempty" url:"toDate,omitempty" validate:"omitempty,isodate"`
	From     string `json:"from,omitempty" url:"from,omitempty" validate:"omitempty,max=320"`
	Status   *int   `json:"status,omitempty" url:"status,omitempty" validate:"omitempty,oneof=0 1 2"`
}

// TicketPage is one page of tickets.
//
// The API has been observed returning either a bare array or a
// {tickets, totalItems} envelope; both decode into this type.
type TicketPage struct {
	Tickets    []models.Ticket `json:"tickets" validate:"dive"`
	TotalItems int             `json:"totalItems" validate:"gte=0"`
}

// UnmarshalJSON accepts both list shapes.
func (p *TicketPage) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var tickets []models.Ticket
		err := json.Unmarshal(trimmed, &tickets)
		p.Tickets = tickets
		p.TotalItems = len(tickets)
		return err
	}

	type envelope TicketPage
	var env envelope
	err := json.Unmarshal(trimmed, &env)
	*p = TicketPage(env)
	return err
}

// ReplyRequest is a reply submission. With files it is sent as multipart
// (TicketId, Content, File...); without files as JSON {id, content}.
type ReplyRequest struct {
	ID      int    `json:"id" validate:"min=1"`
	Content string `json:"content" validate:"required"`
	Files   []File `json:"-" validate:"dive"`
}

// Normalize trims surrounding whitespace from the reply text.
func (r *ReplyRequest) Normalize() {
	r.Content = strings.TrimSpace(r.Content)
}

// MultipartForm implements Multiparter.
func (r ReplyRequest) MultipartForm() *Form {
	if len(r.Files) == 0 {
		return nil
	}
	form := NewForm().
		Add("TicketId", strconv.Itoa(r.ID)).
		Add("Content", r.Content)
	for _, f := range r.Files {
		form.Attach("File", f)
	}
	return form
}

// ReplyResult is the reply endpoint's outcome. Success=false is a domain
// rejection (for example an already answered ticket), not a transport error.
// A reply answered with no content counts as accepted.
type ReplyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserQuery holds paging for GET /User.
type UserQuery struct {
	Page   int `json:"page" url:"page" validate:"min=1"`
	Amount int `json:"amount" url:"amount" validate:"min=1,max=500"`
}

// CreateUserRequest is the body of POST /User.
type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// Normalize lower-cases the email and trims names.
func (r *CreateUserRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

// UpdateUserRequest is the full user object sent with PUT /User.
type UpdateUserRequest struct {
	ID        int    `json:"id" validate:"min=1"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	IsAdmin   bool   `json:"isAdmin"`
	IsDeleted bool   `json:"isDeleted"`
}

// Normalize lower-cases the email and trims names.
func (r *UpdateUserRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

// UpdateFromUser builds an update payload from a listed user.
func UpdateFromUser(u models.User) UpdateUserRequest {
	return UpdateUserRequest{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsAdmin:   u.IsAdmin,
		IsDeleted: u.IsDeleted,
	}
}

// DeleteUserRequest identifies the user whose soft-delete flag is toggled.
// The id travels in the path.
type DeleteUserRequest struct {
	ID int `json:"-" validate:"min=1"`
}

// AttachmentRequest names a file for GET /Attachment.
type AttachmentRequest struct {
	FileName string `json:"fileName" url:"fileName" validate:"required"`
}

// Normalize strips the cid: prefix that inline attachments carry.
func (r *AttachmentRequest) Normalize() {
	r.FileName = ticket.StripCID(r.FileName)
}

// Registered shapes. Every endpoint definition picks its schemas from here.
var (
	SignInRequestSchema  = Struct[SignInRequest]()
	SignInResponseSchema = Struct[SignInResponse]()

	TicketQuerySchema  = Struct[TicketQuery]()
	TicketPageSchema   = Struct[TicketPage]()
	TicketSchema       = Struct[models.Ticket]()
	ReplyRequestSchema = Struct[ReplyRequest]()
	ReplyResultSchema  = OrEmpty(Struct[ReplyResult](), ReplyResult{Success: true})
	AttachmentSchema   = Struct[AttachmentRequest]()

	UserQuerySchema         = Struct[UserQuery]()
	UserSchema              = Struct[models.User]()
	UserListSchema          = List(UserSchema)
	CreateUserRequestSchema = Struct[CreateUserRequest]()
	UpdateUserRequestSchema = Struct[UpdateUserRequest]()
	DeleteUserRequestSchema = Struct[DeleteUserRequest]()
)
