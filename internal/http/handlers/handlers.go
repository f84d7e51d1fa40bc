package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/http/middleware"
	"github.com/tbourn/go-repair-backend/internal/services"
)

//
// Service contracts
//

// ChatService is the chat engine consumed by the chat endpoints.
type ChatService interface {
	GetOrCreateChat(ctx context.Context, clientID, businessID, ownerID string) (*domain.ChatSession, error)
	GetChat(ctx context.Context, chatID string) (*domain.ChatSession, bool)
	SendMessage(ctx context.Context, chatID, senderID, receiverID, text string) (*domain.Message, error)
	FetchMessagesOnce(ctx context.Context, chatID string) []domain.Message
	ListenMessages(ctx context.Context, chatID string, onUpdate func([]domain.Message)) *services.Subscription
	FetchChatsForOwnerOnce(ctx context.Context, ownerID string) []domain.ChatSession
	ListenChatsForOwner(ctx context.Context, ownerID string, onUpdate func([]domain.ChatSession)) *services.Subscription
	Inbox(ctx context.Context, ownerID string) []domain.InboxEntry
	ListChatsForClient(ctx context.Context, clientID string) []domain.ChatSession
}

// NameService resolves display names for users and businesses.
type NameService interface {
	ResolveDisplayName(ctx context.Context, uid string) (string, bool)
	ResolveUserInfo(ctx context.Context, uid string) (*domain.UserInfo, bool)
	ResolveBusinessName(ctx context.Context, businessID string) (string, bool)
}

// OrderService manages repair orders.
type OrderService interface {
	CreateOrderAndInvoice(ctx context.Context, draft domain.OrderDraft, scheduledAtMillis int64) (*domain.OrderReceipt, bool)
	UpdateOrderWithErr(ctx context.Context, orderID string, u domain.OrderUpdate, expectedVersion int64) (*domain.RepairOrder, error)
	SetOrderStatus(ctx context.Context, orderID, status string, expectedVersion int64) (*domain.RepairOrder, error)
	DeleteOrder(ctx context.Context, orderID string) bool
	GetOrder(ctx context.Context, orderID string) (*domain.RepairOrder, bool)
	ListOrdersForOwner(ctx context.Context, ownerID string) []domain.RepairOrder
}

// InvoiceService reads a client's invoices.
type InvoiceService interface {
	FetchInvoicesOnce(ctx context.Context, clientID string) []domain.Invoice
	ListenInvoicesForClient(ctx context.Context, clientID string, onUpdate func([]domain.Invoice)) *services.Subscription
	GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, bool)
}

// PaymentService runs the checkout flow.
type PaymentService interface {
	Checkout(ctx context.Context, invoiceID string) (string, error)
	Pay(ctx context.Context, invoiceID string) (*domain.Invoice, error)
}

// BusinessService lists and searches businesses.
type BusinessService interface {
	Create(ctx context.Context, ownerID string, b domain.Business) (*domain.Business, error)
	Get(ctx context.Context, id string) (*domain.Business, bool)
	Search(ctx context.Context, q string) []domain.Business
}

// RequestService handles service requests.
type RequestService interface {
	Create(ctx context.Context, r domain.ServiceRequest) (*domain.ServiceRequest, error)
	Get(ctx context.Context, id string) (*domain.ServiceRequest, bool)
	ListForBusiness(ctx context.Context, businessID string) []domain.ServiceRequest
	ListForOwner(ctx context.Context, ownerID string) []domain.ServiceRequest
	UpdateStatus(ctx context.Context, id, status string) (*domain.ServiceRequest, error)
}

// UserService writes user profiles.
type UserService interface {
	UpsertProfile(ctx context.Context, uid, nombre, email string) error
}

// StatsFunc returns the number of documents in a list and their latest
// update time, for ETags.
type StatsFunc func(ctx context.Context, id string) (count int64, maxUpdatedAt *time.Time, err error)

//
// Handler wiring
//

// Deps are the collaborators of Handlers. InvoiceStats is optional; without
// it /me/invoices sends no ETag.
type Deps struct {
	Chats      ChatService
	Names      NameService
	Orders     OrderService
	Invoices   InvoiceService
	Payments   PaymentService
	Businesses BusinessService
	Requests   RequestService
	Users      UserService

	InvoiceStats StatsFunc

	// SSEHeartbeat spaces keep-alive comments on event streams.
	SSEHeartbeat time.Duration
	// WSWriteTimeout bounds each WebSocket write.
	WSWriteTimeout time.Duration
	// AllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Handlers groups every API endpoint.
type Handlers struct {
	Deps
}

// New returns Handlers with defaults applied to zero durations.
func New(d Deps) *Handlers {
	if d.SSEHeartbeat <= 0 {
		d.SSEHeartbeat = 25 * time.Second
	}
	if d.WSWriteTimeout <= 0 {
		d.WSWriteTimeout = 10 * time.Second
	}
	return &Handlers{Deps: d}
}

// callerID returns the authenticated user or writes 401.
func callerID(c *gin.Context) (string, bool) {
	uid, found := middleware.UserID(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return "", false
	}
	return uid, true
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}
