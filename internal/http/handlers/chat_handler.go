package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/utils"
)

//
// DTOs
//

// CreateChatRequest opens (or reopens) the chat between a client and a
// business. ClientID defaults to the caller; a business owner sets it to
// start a chat with one of their clients.
type CreateChatRequest struct {
	BusinessID string `json:"businessId" binding:"required" example:"b_42"`
	ClientID   string `json:"clientId,omitempty" example:"user123"`
}

// SendMessageRequest is the payload for a new chat message.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required" example:"Is the screen replacement available today?"`
}

// MessagesResponse lists a chat's messages oldest first.
type MessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// ChatsResponse lists chat sessions, most recently active first.
type ChatsResponse struct {
	Chats []domain.ChatSession `json:"chats"`
}

// InboxResponse lists an owner's chats with the client names resolved.
type InboxResponse struct {
	Entries []domain.InboxEntry `json:"entries"`
}

// counterpart is the participant of chat that is not uid.
func counterpart(chat *domain.ChatSession, uid string) string {
	if uid == chat.ClientID {
		return chat.OwnerID
	}
	return chat.ClientID
}

// participantChat loads chatID and checks that uid takes part in it,
// writing 404 or 403 otherwise.
func (h *Handlers) participantChat(c *gin.Context, uid string) (*domain.ChatSession, bool) {
	chat, found := h.Chats.GetChat(c.Request.Context(), c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		return nil, false
	}
	if uid != chat.ClientID && uid != chat.OwnerID {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this chat")
		return nil, false
	}
	return chat, true
}

//
// Handlers
//

// CreateChat godoc
// @ID          createChat
// @Summary     Get or create a chat
// @Description Returns the single chat between a client and a business, creating it on first contact. The chat id is {clientId}_{businessId}.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateChatRequest  true  "Participants"
// @Success     200   {object}  domain.ChatSession
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403   {object}  handlers.ErrorResponse  "Caller is neither the client nor the owner"
// @Failure     404   {object}  handlers.ErrorResponse  "Business not found"
// @Router      /chats [post]
func (h *Handlers) CreateChat(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.BusinessID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "businessId required")
		return
	}
	ctx := c.Request.Context()

	b, found := h.Businesses.Get(ctx, req.BusinessID)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "business not found")
		return
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = uid
	}
	if clientID != uid && b.OwnerID != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the business owner may open a chat for a client")
		return
	}

	chat, err := h.Chats.GetOrCreateChat(ctx, clientID, b.ID, b.OwnerID)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusOK, chat)
}

// GetChat godoc
// @ID          getChat
// @Summary     Get a chat
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Chat ID"  example(user123_b_42)
// @Success     200  {object}  domain.ChatSession
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id} [get]
func (h *Handlers) GetChat(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	if chat, found := h.participantChat(c, uid); found {
		ok(c, http.StatusOK, chat)
	}
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List chat messages
// @Description Returns the chat's messages oldest first. With limit, only the latest messages are returned.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       id     path      string  true   "Chat ID"
// @Param       limit  query     int     false  "Return only the last N messages"  minimum(1) maximum(500)
// @Success     200    {object}  handlers.MessagesResponse
// @Failure     403    {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404    {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	chat, found := h.participantChat(c, uid)
	if !found {
		return
	}
	msgs := h.Chats.FetchMessagesOnce(c.Request.Context(), chat.ChatID)
	if n := utils.AtoiDefault(c.Query("limit"), 0); n > 0 {
		n = utils.Clamp(n, 1, 500)
		if len(msgs) > n {
			msgs = msgs[len(msgs)-n:]
		}
	}
	ok(c, http.StatusOK, MessagesResponse{Messages: msgs})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a chat message
// @Description Appends a message from the caller to the other participant and refreshes the chat summary.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                       true  "Chat ID"
// @Param       body  body      handlers.SendMessageRequest  true  "Message"
// @Success     201   {object}  domain.Message
// @Failure     400   {object}  handlers.ErrorResponse  "Empty text"
// @Failure     403   {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404   {object}  handlers.ErrorResponse  "Chat not found"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	chat, found := h.participantChat(c, uid)
	if !found {
		return
	}
	m, err := h.Chats.SendMessage(c.Request.Context(), chat.ChatID, uid, counterpart(chat, uid), req.Text)
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}
	ok(c, http.StatusCreated, m)
}

// OwnerChats godoc
// @ID          ownerChats
// @Summary     List the caller's business chats
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ChatsResponse
// @Router      /me/chats [get]
func (h *Handlers) OwnerChats(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	ok(c, http.StatusOK, ChatsResponse{Chats: h.Chats.FetchChatsForOwnerOnce(c.Request.Context(), uid)})
}

// Inbox godoc
// @ID          inbox
// @Summary     Owner inbox with client names
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.InboxResponse
// @Router      /me/inbox [get]
func (h *Handlers) Inbox(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	ok(c, http.StatusOK, InboxResponse{Entries: h.Chats.Inbox(c.Request.Context(), uid)})
}

// ClientChats godoc
// @ID          clientChats
// @Summary     List the caller's chats as a client
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ChatsResponse
// @Router      /me/client-chats [get]
func (h *Handlers) ClientChats(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	ok(c, http.StatusOK, ChatsResponse{Chats: h.Chats.ListChatsForClient(c.Request.Context(), uid)})
}
