package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/http/middleware"
	"github.com/tbourn/go-repair-backend/internal/services"
)

// latest is a one-slot mailbox: a new value replaces one not yet taken, so a
// slow reader only ever sees the newest snapshot.
type latest[T any] struct{ ch chan T }

func newLatest[T any]() latest[T] { return latest[T]{ch: make(chan T, 1)} }

func (l latest[T]) put(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

// sseRetryMillis is sent once per stream; browsers reconnect after it when
// the server ends the stream.
const sseRetryMillis = 3000

// streamSSE relays every snapshot from subscribe as an SSE event named
// event, with a comment line every heartbeat. It returns when the client
// goes away or the subscription ends; the last snapshot is always flushed
// first.
func streamSSE[T any](c *gin.Context, heartbeat time.Duration, event string,
	subscribe func(ctx context.Context, onUpdate func([]T)) *services.Subscription) {
	middleware.MarkStream(c)
	ctx := c.Request.Context()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	_, _ = c.Writer.WriteString("retry: " + strconv.Itoa(sseRetryMillis) + "\n\n")
	c.Writer.Flush()

	box := newLatest[[]T]()
	sub := subscribe(ctx, box.put)
	defer sub.Stop()

	tick := time.NewTicker(heartbeat)
	defer tick.Stop()

	send := func(items []T) {
		c.SSEvent(event, items)
		c.Writer.Flush()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case items := <-box.ch:
			send(items)
		case <-tick.C:
			_, _ = c.Writer.WriteString(": ping\n\n")
			c.Writer.Flush()
		case <-sub.Done():
			select {
			case items := <-box.ch:
				send(items)
			default:
			}
			return
		}
	}
}

// StreamOwnerChats godoc
// @ID          streamOwnerChats
// @Summary     Stream the caller's business chats
// @Description Server-Sent Events. Every "chats" event carries the full list, most recently active first. Comment lines keep the connection alive.
// @Tags        Me
// @Produce     text/event-stream
// @Security    BearerAuth
// @Success     200  {array}  domain.ChatSession
// @Router      /me/chats/stream [get]
func (h *Handlers) StreamOwnerChats(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	streamSSE(c, h.SSEHeartbeat, "chats", func(ctx context.Context, on func([]domain.ChatSession)) *services.Subscription {
		return h.Chats.ListenChatsForOwner(ctx, uid, on)
	})
}

// StreamInvoices godoc
// @ID          streamInvoices
// @Summary     Stream the caller's invoices
// @Description Server-Sent Events. Every "invoices" event carries the full list, newest first.
// @Tags        Me
// @Produce     text/event-stream
// @Security    BearerAuth
// @Success     200  {array}  domain.Invoice
// @Router      /me/invoices/stream [get]
func (h *Handlers) StreamInvoices(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	streamSSE(c, h.SSEHeartbeat, "invoices", func(ctx context.Context, on func([]domain.Invoice)) *services.Subscription {
		return h.Invoices.ListenInvoicesForClient(ctx, uid, on)
	})
}

//
// WebSocket
//

// WSFrame is a server-to-client WebSocket frame.
type WSFrame struct {
	Type     string           `json:"type" example:"messages"`
	Messages []domain.Message `json:"messages,omitempty"`
	Message  *domain.Message  `json:"message,omitempty"`
	Code     string           `json:"code,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// WSInbound is a client-to-server WebSocket frame: a message to send.
type WSInbound struct {
	Text string `json:"text"`
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.AllowedOrigins))
	for _, o := range h.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 4 << 10,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			_, found := allowed[origin]
			return found
		},
	}
}

// ChatSocket godoc
// @ID          chatSocket
// @Summary     Live chat over WebSocket
// @Description Pushes {"type":"messages"} frames with the full message list on every change; clients send {"text":"..."} frames. Browsers pass the bearer token as access_token.
// @Tags        Chats
// @Security    BearerAuth
// @Param       id  path  string  true  "Chat ID"
// @Success     101 {object} handlers.WSFrame
// @Failure     403 {object} handlers.ErrorResponse "Not a participant"
// @Failure     404 {object} handlers.ErrorResponse "Chat not found"
// @Router      /chats/{id}/ws [get]
func (h *Handlers) ChatSocket(c *gin.Context) {
	uid, authed := callerID(c)
	if !authed {
		return
	}
	chat, found := h.participantChat(c, uid)
	if !found {
		return
	}
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		middleware.LoggerFrom(c).Warn().Err(err).Str("chat_id", chat.ChatID).Msg("websocket upgrade failed")
		return
	}
	middleware.MarkStream(c)
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	lg := middleware.LoggerFrom(c).With().Str("chat_id", chat.ChatID).Logger()

	out := make(chan WSFrame, 8)
	box := newLatest[[]domain.Message]()
	sub := h.Chats.ListenMessages(ctx, chat.ChatID, box.put)
	defer sub.Stop()

	// reader: inbound frames become messages; any read error ends the session
	go func() {
		defer cancel()
		for {
			var in WSInbound
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			m, err := h.Chats.SendMessage(ctx, chat.ChatID, uid, counterpart(chat, uid), in.Text)
			frame := WSFrame{Type: "sent", Message: m}
			if err != nil {
				frame = WSFrame{Type: "error", Code: ErrCodeSendFailed, Error: err.Error()}
				if errors.Is(err, services.ErrEmptyMessage) || errors.Is(err, services.ErrMessageTooLong) {
					frame.Code = ErrCodeBadRequest
				}
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(h.SSEHeartbeat)
	defer ping.Stop()

	write := func(f WSFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(h.WSWriteTimeout))
		if err := conn.WriteJSON(f); err != nil {
			lg.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msgs := <-box.ch:
			if !write(WSFrame{Type: "messages", Messages: msgs}) {
				return
			}
		case f := <-out:
			if !write(f) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.WSWriteTimeout)); err != nil {
				return
			}
		case <-sub.Done():
			select {
			case msgs := <-box.ch:
				write(WSFrame{Type: "messages", Messages: msgs})
			default:
			}
			write(WSFrame{Type: "error", Code: ErrCodeInternal, Error: "message stream ended"})
			return
		}
	}
}
