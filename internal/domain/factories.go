package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxAmount is the largest price, labor cost or total accepted, in currency
// units. Larger integers do not survive JSON clients exactly.
const MaxAmount int64 = 1<<53 - 1

var (
	// ErrInvalidAmount is the parent of every amount validation error.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeAmount is returned when a part price or labor cost is below zero.
	ErrNegativeAmount = fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	// ErrAmountTooLarge is returned when a price, the labor cost or the
	// resulting total exceeds MaxAmount.
	ErrAmountTooLarge = fmt.Errorf("%w: must not exceed %d", ErrInvalidAmount, MaxAmount)
)

// DeriveChatID returns the chat identity for a (client, business) pair.
// Every code path that needs a chat id must go through this function.
func DeriveChatID(clientID, businessID string) string {
	return clientID + "_" + businessID
}

// SplitChatID reverses DeriveChatID. Client ids may contain underscores, so
// the split happens at the last one.
func SplitChatID(chatID string) (clientID, businessID string, ok bool) {
	i := strings.LastIndex(chatID, "_")
	if i <= 0 || i == len(chatID)-1 {
		return "", "", false
	}
	return chatID[:i], chatID[i+1:], true
}

// NewChatSession builds an empty session for a (client, business) pair.
func NewChatSession(clientID, businessID, ownerID string, at time.Time) ChatSession {
	return ChatSession{
		ChatID:     DeriveChatID(clientID, businessID),
		BusinessID: businessID,
		ClientID:   clientID,
		OwnerID:    ownerID,
		UpdatedAt:  at,
	}
}

// NewMessage builds a text message.
func NewMessage(id, chatID, senderID, receiverID, text string, at time.Time) Message {
	return Message{
		MessageID:  id,
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		SentAt:     at,
		Kind:       MessageKindText,
	}
}

// ComputeTotals returns the parts subtotal and the grand total.
func ComputeTotals(parts []Part, laborCost int64) (partsTotal, totalCost int64) {
	for _, p := range parts {
		partsTotal += p.Price
	}
	return partsTotal, partsTotal + laborCost
}

// ValidateAmounts rejects negative amounts and any price, labor cost or
// total above MaxAmount, so ComputeTotals cannot overflow afterwards.
func ValidateAmounts(parts []Part, laborCost int64) error {
	if laborCost < 0 {
		return ErrNegativeAmount
	}
	if laborCost > MaxAmount {
		return ErrAmountTooLarge
	}
	total := laborCost
	for _, p := range parts {
		if p.Price < 0 {
			return ErrNegativeAmount
		}
		if p.Price > MaxAmount-total {
			return ErrAmountTooLarge
		}
		total += p.Price
	}
	return nil
}

// OrderDraft is the vendor-supplied input for a new repair order. Totals are
// not part of it.
type OrderDraft struct {
	BusinessID      string `json:"businessId"`
	OwnerID         string `json:"ownerId"`
	ClientID        string `json:"clientUid"`
	ClientName      string `json:"clientName"`
	ClientEmail     string `json:"clientEmail"`
	DeviceType      string `json:"deviceType"`
	ProblemReported string `json:"problemReported"`
	Diagnosis       string `json:"diagnosis"`
	LaborCost       int64  `json:"laborCost"`
	Parts           []Part `json:"parts"`
}

// NewRepairOrder builds a pending order from a draft with computed totals.
// A scheduledAtMillis of zero or less means no scheduled visit.
func NewRepairOrder(d OrderDraft, id string, createdAt time.Time, scheduledAtMillis int64) RepairOrder {
	parts := append([]Part{}, d.Parts...)
	partsTotal, total := ComputeTotals(parts, d.LaborCost)

	var scheduled *time.Time
	if scheduledAtMillis > 0 {
		t := time.UnixMilli(scheduledAtMillis).UTC()
		scheduled = &t
	}

	return RepairOrder{
		OrderID:         id,
		BusinessID:      d.BusinessID,
		OwnerID:         d.OwnerID,
		ClientID:        d.ClientID,
		ClientName:      d.ClientName,
		ClientEmail:     d.ClientEmail,
		DeviceType:      d.DeviceType,
		ProblemReported: d.ProblemReported,
		Diagnosis:       d.Diagnosis,
		LaborCost:       d.LaborCost,
		Parts:           parts,
		PartsTotal:      partsTotal,
		TotalCost:       total,
		Status:          OrderPendingApproval,
		CreatedAt:       createdAt,
		ScheduledAt:     scheduled,
	}
}

// InvoiceItems lists one line per part plus a labor line when labor is
// non-zero. The lines always sum to the order's TotalCost.
func InvoiceItems(o RepairOrder) []InvoiceItem {
	items := make([]InvoiceItem, 0, len(o.Parts)+1)
	for _, p := range o.Parts {
		items = append(items, InvoiceItem{Description: p.Name, Price: p.Price})
	}
	if o.LaborCost > 0 {
		items = append(items, InvoiceItem{Description: LaborItemDescription, Price: o.LaborCost})
	}
	return items
}

// NewInvoice derives a pending invoice from an order.
func NewInvoice(o RepairOrder, id string, createdAt time.Time) Invoice {
	return Invoice{
		InvoiceID:     id,
		RepairOrderID: o.OrderID,
		ClientID:      o.ClientID,
		ClientName:    o.ClientName,
		ClientEmail:   o.ClientEmail,
		Items:         InvoiceItems(o),
		Total:         o.TotalCost,
		Status:        InvoicePending,
		CreatedAt:     createdAt,
	}
}

// ItemsTotal sums invoice lines.
func ItemsTotal(items []InvoiceItem) int64 {
	var n int64
	for _, it := range items {
		n += it.Price
	}
	return n
}

// OrderUpdate is a partial edit of an order. Nil fields are left untouched.
type OrderUpdate struct {
	ClientName      *string `json:"clientName,omitempty"`
	ClientEmail     *string `json:"clientEmail,omitempty"`
	DeviceType      *string `json:"deviceType,omitempty"`
	ProblemReported *string `json:"problemReported,omitempty"`
	Diagnosis       *string `json:"diagnosis,omitempty"`
	LaborCost       *int64  `json:"laborCost,omitempty"`
	Parts           *[]Part `json:"parts,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u OrderUpdate) Empty() bool {
	return u.ClientName == nil && u.ClientEmail == nil && u.DeviceType == nil &&
		u.ProblemReported == nil && u.Diagnosis == nil && u.LaborCost == nil && u.Parts == nil
}

// Apply returns o with the update applied and totals recomputed.
func (u OrderUpdate) Apply(o RepairOrder) RepairOrder {
	if u.ClientName != nil {
		o.ClientName = *u.ClientName
	}
	if u.ClientEmail != nil {
		o.ClientEmail = *u.ClientEmail
	}
	if u.DeviceType != nil {
		o.DeviceType = *u.DeviceType
	}
	if u.ProblemReported != nil {
		o.ProblemReported = *u.ProblemReported
	}
	if u.Diagnosis != nil {
		o.Diagnosis = *u.Diagnosis
	}
	if u.LaborCost != nil {
		o.LaborCost = *u.LaborCost
	}
	if u.Parts != nil {
		o.Parts = append([]Part{}, (*u.Parts)...)
	}
	o.PartsTotal, o.TotalCost = ComputeTotals(o.Parts, o.LaborCost)
	return o
}

var orderTransitions = map[string][]string{
	OrderPendingApproval: {OrderPendingPayment, OrderCancelled},
	OrderPendingPayment:  {OrderPaid, OrderCancelled},
	OrderPaid:            {OrderCompleted},
}

// CanTransitionOrder reports whether an order may move from one status to
// another. Setting the current status again is allowed.
func CanTransitionOrder(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var requestTransitions = map[string][]string{
	RequestPending:  {RequestAccepted, RequestRejected},
	RequestAccepted: {RequestCompleted},
}

// CanTransitionRequest is CanTransitionOrder for service requests.
func CanTransitionRequest(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range requestTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
