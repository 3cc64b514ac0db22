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
	"net/http"
	"strconv"

	"github.com/bcem/deskconsole/internal/models"
	"github.com/bcem/deskconsole/internal/schema"
	"github.com/bcem/deskconsole/internal/transport"
)

const (
	authPath       = "/Auth"
	ticketPath     = "/Ticket"
	userPath       = "/User"
	attachmentPath = "/Attachment"
)

// Client is the full inbox API surface.
type Client struct {
	SignIn             Call[schema.SignInRequest, schema.SignInResponse]
	ListTickets        Call[schema.TicketQuery, schema.TicketPage]
	ReplyToTicket      Call[schema.ReplyRequest, schema.ReplyResult]
	ListUsers          Call[schema.UserQuery, []models.User]
	CreateUser         Call[schema.CreateUserRequest, schema.Empty]
	UpdateUser         Call[schema.UpdateUserRequest, schema.Empty]
	DeleteUser         Call[schema.DeleteUserRequest, schema.Empty]
	DownloadAttachment Call[schema.AttachmentRequest, []byte]
}

// NewClient compiles every endpoint with f.
func NewClient(f *Factory) *Client {
	return &Client{
		SignIn: New(f, Endpoint[schema.SignInRequest, schema.SignInResponse]{
			Name:     "sign_in",
			Method:   http.MethodPost,
			Path:     Static[schema.SignInRequest](authPath),
			Request:  schema.SignInRequestSchema,
			Response: schema.SignInResponseSchema,
			Profile:  transport.Public,
		}),
		ListTickets: New(f, Endpoint[schema.TicketQuery, schema.TicketPage]{
			Name:     "list_tickets",
			Method:   http.MethodGet,
			Path:     Static[schema.TicketQuery](ticketPath),
			Request:  schema.TicketQuerySchema,
			Response: schema.TicketPageSchema,
			Profile:  transport.Private,
		}),
		ReplyToTicket: New(f, Endpoint[schema.ReplyRequest, schema.ReplyResult]{
			Name:     "reply_to_ticket",
			Method:   http.MethodPost,
			Path:     Static[schema.ReplyRequest](ticketPath),
			Request:  schema.ReplyRequestSchema,
			Response: schema.ReplyResultSchema,
			Profile:  transport.Private,
		}),
		ListUsers: New(f, Endpoint[schema.UserQuery, []models.User]{
			Name:     "list_users",
			Method:   http.MethodGet,
			Path:     Static[schema.UserQuery](userPath),
			Request:  schema.UserQuerySchema,
			Response: schema.UserListSchema,
			Profile:  transport.Private,
		}),
		CreateUser: New(f, Endpoint[schema.CreateUserRequest, schema.Empty]{
			Name:     "create_user",
			Method:   http.MethodPost,
			Path:     Static[schema.CreateUserRequest](userPath),
			Request:  schema.CreateUserRequestSchema,
			Response: schema.Void(),
			Profile:  transport.Private,
		}),
		UpdateUser: New(f, Endpoint[schema.UpdateUserRequest, schema.Empty]{
			Name:     "update_user",
			Method:   http.MethodPut,
			Path:     Static[schema.UpdateUserRequest](userPath),
			Request:  schema.UpdateUserRequestSchema,
			Response: schema.Void(),
			Profile:  transport.Private,
		}),
		DeleteUser: New(f, Endpoint[schema.DeleteUserRequest, schema.Empty]{
			Name:   "delete_user",
			Method: http.MethodDelete,
			Path: Resolve(func(r schema.DeleteUserRequest) string {
				return userPath + "/" + strconv.Itoa(r.ID)
			}),
			Request:  schema.DeleteUserRequestSchema,
			Response: schema.Void(),
			Profile:  transport.Private,
		}),
		DownloadAttachment: New(f, Endpoint[schema.AttachmentRequest, []byte]{
			Name:     "download_attachment",
			Method:   http.MethodGet,
			Path:     Static[schema.AttachmentRequest](attachmentPath),
			Request:  schema.AttachmentSchema,
			Response: schema.Binary(),
			Profile:  transport.Private,
		}),
	}
}
