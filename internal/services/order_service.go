// Package services – OrderService
//
// OrderService creates repair orders together with their invoice and keeps
// order totals derived from parts and labor on every edit. Creation writes
// the order, then the invoice, then posts a notification into the
// client/business chat. Only the first two writes decide the outcome; the
// notification is best-effort.
//
// The invoice is a point-in-time snapshot: later order edits do not touch
// it. Concurrent edits are last-write-wins unless the caller passes the
// order version it based the edit on.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/observability"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

// InvoiceNotificationText is posted to the chat when an invoice is created.
const InvoiceNotificationText = "An invoice was created for your account. Please review it."

// statusAttempts bounds the read-check-write loop of SetOrderStatus.
const statusAttempts = 3

var orderStatuses = map[string]struct{}{
	domain.OrderPendingApproval: {},
	domain.OrderPendingPayment:  {},
	domain.OrderPaid:            {},
	domain.OrderCompleted:       {},
	domain.OrderCancelled:       {},
}

// Notifier posts a chat message. *ChatService implements it.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, senderID, receiverID, text string) (*domain.Message, error)
}

// OrderService manages repair orders and their invoices.
type OrderService struct {
	Store    docstore.Store
	Notifier Notifier
	Names    *NameResolver
}

// NewOrderService constructs an OrderService.
func NewOrderService(st docstore.Store, n Notifier, names *NameResolver) *OrderService {
	return &OrderService{Store: st, Notifier: n, Names: names}
}

// CreateOrderAndInvoice persists a pending order built from draft with
// computed totals, then its invoice, then notifies the client in chat. A
// scheduledAtMillis of zero means no scheduled visit. It returns false when
// the order or the invoice could not be written; when only the invoice
// fails the order is deleted again. A notification failure is only logged.
func (s *OrderService) CreateOrderAndInvoice(ctx context.Context, draft domain.OrderDraft, scheduledAtMillis int64) (*domain.OrderReceipt, bool) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "CreateOrderAndInvoice",
		trace.WithAttributes(
			attribute.String("business.id", draft.BusinessID),
			attribute.String("client.id", draft.ClientID),
			attribute.Int("parts", len(draft.Parts)),
		),
	)
	defer span.End()

	lg := logFrom(ctx).With().Str("business_id", draft.BusinessID).Str("client_id", draft.ClientID).Logger()
	fail := func(step string, err error) (*domain.OrderReceipt, bool) {
		observability.OrderFailures.WithLabelValues(step).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, step)
		lg.Error().Err(err).Str("step", step).Msg("order creation failed")
		return nil, false
	}

	if err := domain.ValidateAmounts(draft.Parts, draft.LaborCost); err != nil {
		return fail("validate", err)
	}

	order := domain.NewRepairOrder(draft, s.Store.NewID(), s.Store.Now(), scheduledAtMillis)
	if err := repo.CreateOrder(ctx, s.Store, order); err != nil {
		return fail("order", err)
	}

	invoice := domain.NewInvoice(order, s.Store.NewID(), s.Store.Now())
	if err := repo.CreateInvoice(ctx, s.Store, invoice); err != nil {
		lg = lg.With().Str("order_id", order.OrderID).Logger()
		// Best effort: an order without its invoice is not left behind.
		if derr := repo.DeleteOrder(context.WithoutCancel(ctx), s.Store, order.OrderID); derr != nil {
			lg.Error().Err(derr).Msg("orphan order cleanup failed")
		}
		return fail("invoice", err)
	}

	if s.Notifier != nil {
		chatID := domain.DeriveChatID(order.ClientID, order.BusinessID)
		if _, err := s.Notifier.SendMessage(ctx, chatID, order.OwnerID, order.ClientID, InvoiceNotificationText); err != nil {
			lg.Warn().Err(err).Str("chat_id", chatID).Msg("invoice notification failed")
		}
	}

	observability.OrdersCreated.Inc()
	lg.Info().Str("order_id", order.OrderID).Str("invoice_id", invoice.InvoiceID).Int64("total", order.TotalCost).Msg("order and invoice created")
	return &domain.OrderReceipt{OrderID: order.OrderID, InvoiceID: invoice.InvoiceID}, true
}

// UpdateOrder applies u to the order and recomputes its totals. It reports
// whether the edit was stored.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, u domain.OrderUpdate, expectedVersion int64) bool {
	if _, err := s.UpdateOrderWithErr(ctx, orderID, u, expectedVersion); err != nil {
		logFrom(ctx).Warn().Err(err).Str("order_id", orderID).Msg("order update failed")
		return false
	}
	return true
}

// UpdateOrderWithErr is UpdateOrder returning the stored order or a reason:
// ErrOrderNotFound, ErrVersionConflict, ErrInvalidAmount or ErrEmptyUpdate.
// expectedVersion zero disables the version check.
func (s *OrderService) UpdateOrderWithErr(ctx context.Context, orderID string, u domain.OrderUpdate, expectedVersion int64) (*domain.RepairOrder, error) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "UpdateOrder",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int64("expected_version", expectedVersion),
		),
	)
	defer span.End()

	if u.Empty() {
		return nil, ErrEmptyUpdate
	}

	cur, err := repo.GetOrder(ctx, s.Store, orderID)
	if err != nil {
		return nil, orderErr(err)
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	updated := u.Apply(*cur)
	if err := domain.ValidateAmounts(updated.Parts, updated.LaborCost); err != nil {
		return nil, ErrInvalidAmount
	}
	if err := repo.SaveOrderEdits(ctx, s.Store, updated, expectedVersion); err != nil {
		return nil, orderErr(err)
	}

	if fresh, err := repo.GetOrder(ctx, s.Store, orderID); err == nil {
		return fresh, nil
	}
	updated.Version = 0
	return &updated, nil
}

// SetOrderStatus moves an order to status if the workflow allows it.
// expectedVersion zero disables the caller's version check; the transition
// itself is always checked against the stored status.
func (s *OrderService) SetOrderStatus(ctx context.Context, orderID, status string, expectedVersion int64) (*domain.RepairOrder, error) {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "SetOrderStatus",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("status", status),
		),
	)
	defer span.End()

	if _, ok := orderStatuses[status]; !ok {
		return nil, ErrInvalidStatus
	}

	for attempt := 0; attempt < statusAttempts; attempt++ {
		cur, err := repo.GetOrder(ctx, s.Store, orderID)
		if err != nil {
			return nil, orderErr(err)
		}
		if expectedVersion > 0 && cur.Version != expectedVersion {
			return nil, ErrVersionConflict
		}
		if !domain.CanTransitionOrder(cur.Status, status) {
			return nil, ErrInvalidStatus
		}
		if cur.Status == status {
			return cur, nil
		}
		err = repo.SetOrderStatus(ctx, s.Store, orderID, status, cur.Version)
		if errors.Is(err, repo.ErrConflict) {
			if expectedVersion > 0 {
				return nil, ErrVersionConflict
			}
			continue
		}
		if err != nil {
			return nil, orderErr(err)
		}
		cur.Status = status
		cur.Version++
		return cur, nil
	}
	return nil, ErrVersionConflict
}

// DeleteOrder removes the order. The linked invoice is left untouched.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) bool {
	tr := otel.Tracer("services/OrderService")
	ctx, span := tr.Start(ctx, "DeleteOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if err := repo.DeleteOrder(ctx, s.Store, orderID); err != nil {
		logFrom(ctx).Warn().Err(err).Str("order_id", orderID).Msg("order delete failed")
		return false
	}
	return true
}

// GetOrder returns the order with its current version.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.RepairOrder, bool) {
	o, err := repo.GetOrder(ctx, s.Store, orderID)
	if err != nil {
		if !repo.IsNotFound(err) {
			logFrom(ctx).Warn().Err(err).Str("order_id", orderID).Msg("order lookup failed")
		}
		return nil, false
	}
	return o, true
}

// ListOrdersForOwner returns an owner's orders newest first, or an empty
// list when the store fails.
func (s *OrderService) ListOrdersForOwner(ctx context.Context, ownerID string) []domain.RepairOrder {
	docs, err := s.Store.Query(ctx, repo.OrdersForOwnerQuery(ownerID))
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("owner_id", ownerID).Msg("order query failed")
		return []domain.RepairOrder{}
	}
	orders := repo.DecodeOrders(docs)
	repo.SortOrdersNewestFirst(orders)
	return orders
}

// ListenOrdersForOwner streams an owner's orders newest first; on a store
// error it delivers an empty list and ends.
func (s *OrderService) ListenOrdersForOwner(ctx context.Context, ownerID string, onUpdate func([]domain.RepairOrder)) *Subscription {
	return follow(ctx, s.Store, repo.OrdersForOwnerQuery(ownerID), "owner_orders",
		func(docs []docstore.Document) {
			orders := repo.DecodeOrders(docs)
			repo.SortOrdersNewestFirst(orders)
			onUpdate(orders)
		},
		func(error) { onUpdate([]domain.RepairOrder{}) },
	)
}

// ResolveUserInfo returns the name and email of a user, used to prefill the
// client fields of the order form.
func (s *OrderService) ResolveUserInfo(ctx context.Context, uid string) (*domain.UserInfo, bool) {
	if s.Names == nil {
		return nil, false
	}
	return s.Names.ResolveUserInfo(ctx, uid)
}

func orderErr(err error) error {
	switch {
	case repo.IsNotFound(err):
		return ErrOrderNotFound
	case errors.Is(err, repo.ErrConflict):
		return ErrVersionConflict
	default:
		return err
	}
}
