// Package domain defines the records of the repair marketplace: chat
// sessions and messages, repair orders, invoices, service requests and
// businesses. The JSON tags are the persisted document shape, so field names
// must stay stable across releases.
package domain

import "time"

// Collection names in the document store.
const (
	CollectionBusinesses   = "businesses"
	CollectionRequests     = "requests"
	CollectionChats        = "chats"
	CollectionMessages     = "messages"
	CollectionRepairOrders = "repairOrders"
	CollectionInvoices     = "invoices"
	CollectionUsers        = "users"
	CollectionLegacyUsers  = "usuarios"
)

// MessageKindText is the default message kind.
const MessageKindText = "text"

// Repair order statuses.
const (
	OrderPendingApproval = "pending_approval"
	OrderPendingPayment  = "pending_payment"
	OrderPaid            = "paid"
	OrderCompleted       = "completed"
	OrderCancelled       = "cancelled"
)

// Invoice statuses. "paid" is terminal.
const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
)

// Service request statuses.
const (
	RequestPending   = "pending"
	RequestAccepted  = "accepted"
	RequestRejected  = "rejected"
	RequestCompleted = "completed"
)

// LaborItemDescription is the description of the synthetic invoice line
// created for a non-zero labor cost.
const LaborItemDescription = "Labor"

// ChatSession is the single conversation between a client and a business.
//
// Fields:
//   - ChatID: DeriveChatID(ClientID, BusinessID); never random.
//   - BusinessID / ClientID / OwnerID: participants.
//   - LastMessage / UpdatedAt: denormalized summary of the latest message,
//     best-effort and eventually consistent with the messages collection.
type ChatSession struct {
	ChatID      string    `json:"chatId"`
	BusinessID  string    `json:"businessId"`
	ClientID    string    `json:"clientUid"`
	OwnerID     string    `json:"ownerUid"`
	LastMessage string    `json:"lastMessage"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is an immutable chat entry, ordered by SentAt within a chat.
type Message struct {
	MessageID  string    `json:"messageId"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderUid"`
	ReceiverID string    `json:"receiverUid"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"timestamp"`
	Kind       string    `json:"type"`
}

// Part is one itemized part of a repair order. Price is in integer currency units.
type Part struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// RepairOrder is the vendor's itemized quote for a repair.
//
// Fields:
//   - PartsTotal / TotalCost: derived from Parts and LaborCost by
//     ComputeTotals; never taken from client input.
//   - ScheduledAt: optional agreed visit time.
//   - Version: store revision, used for optimistic updates. Not persisted
//     in the document body.
type RepairOrder struct {
	OrderID         string     `json:"orderId"`
	BusinessID      string     `json:"businessId"`
	OwnerID         string     `json:"ownerId"`
	ClientID        string     `json:"clientUid"`
	ClientName      string     `json:"clientName"`
	ClientEmail     string     `json:"clientEmail"`
	DeviceType      string     `json:"deviceType"`
	ProblemReported string     `json:"problemReported"`
	Diagnosis       string     `json:"diagnosis"`
	LaborCost       int64      `json:"laborCost"`
	Parts           []Part     `json:"parts"`
	PartsTotal      int64      `json:"partsTotal"`
	TotalCost       int64      `json:"totalCost"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	ScheduledAt     *time.Time `json:"scheduledDate"`
	Version         int64      `json:"-"`
}

// InvoiceItem is one invoice line.
type InvoiceItem struct {
	Description string `json:"desc"`
	Price       int64  `json:"price"`
}

// Invoice is a point-in-time snapshot of a repair order's charges. Later
// edits to the order are not propagated.
type Invoice struct {
	InvoiceID     string        `json:"invoiceId"`
	RepairOrderID string        `json:"repairOrderId"`
	ClientID      string        `json:"clientUid"`
	ClientName    string        `json:"clientName"`
	ClientEmail   string        `json:"clientEmail"`
	Items         []InvoiceItem `json:"items"`
	Total         int64         `json:"total"`
	Status        string        `json:"status"`
	CheckoutURL   *string       `json:"checkoutUrl"`
	CreatedAt     time.Time     `json:"createdAt"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
}

// ServiceRequest is a client's intake request to a business, preceding a
// repair order.
type ServiceRequest struct {
	ID            string    `json:"id"`
	BusinessID    string    `json:"businessId"`
	ClientID      string    `json:"clientUid"`
	ClientName    string    `json:"clientName"`
	ClientEmail   string    `json:"clientEmail"`
	Description   string    `json:"description"`
	PreferredDate string    `json:"preferredDate"`
	CreatedAt     time.Time `json:"createdAt"`
	Status        string    `json:"status"`
}

// Business is a repair shop listed in the marketplace.
type Business struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Rating        float64   `json:"rating"`
	Address       string    `json:"address"`
	Phone         string    `json:"phone"`
	Services      []string  `json:"services"`
	PriceStarting int64     `json:"priceStarting"`
	OwnerID       string    `json:"ownerId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UserProfile is the subset of a user document this service writes.
// Other writers may use displayName, name or username instead of nombre.
type UserProfile struct {
	UID    string `json:"uid"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
}

// UserInfo is the resolved name and email of a user.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// InboxEntry is a chat session paired with the client's resolved name.
type InboxEntry struct {
	Chat       ChatSession `json:"chat"`
	ClientName string      `json:"clientName"`
}

// OrderReceipt carries the ids produced by a successful order creation.
type OrderReceipt struct {
	OrderID   string `json:"orderId"`
	InvoiceID string `json:"invoiceId"`
}
