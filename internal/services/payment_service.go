package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-repair-backend/internal/domain"
)

// PaymentProvider opens a checkout session for an invoice.
type PaymentProvider interface {
	CheckoutURL(ctx context.Context, inv domain.Invoice) (string, error)
}

// MockCheckout simulates a payment session: it waits Delay and returns
// BaseURL.
type MockCheckout struct {
	Delay   time.Duration
	BaseURL string
}

// CheckoutURL implements PaymentProvider.
func (m MockCheckout) CheckoutURL(ctx context.Context, _ domain.Invoice) (string, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return m.BaseURL, nil
}

// PaymentService runs the checkout flow over an invoice.
type PaymentService struct {
	Invoices *InvoiceService
	Orders   *OrderService
	Provider PaymentProvider
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(inv *InvoiceService, orders *OrderService, p PaymentProvider) *PaymentService {
	return &PaymentService{Invoices: inv, Orders: orders, Provider: p}
}

// Checkout returns the invoice's checkout URL, opening a session with the
// provider when the invoice has none yet.
func (s *PaymentService) Checkout(ctx context.Context, invoiceID string) (string, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Checkout", trace.WithAttributes(attribute.String("invoice.id", invoiceID)))
	defer span.End()

	inv, ok := s.Invoices.GetInvoice(ctx, invoiceID)
	if !ok {
		return "", ErrInvoiceNotFound
	}
	if inv.CheckoutURL != nil && *inv.CheckoutURL != "" {
		return *inv.CheckoutURL, nil
	}
	url, err := s.Provider.CheckoutURL(ctx, *inv)
	if err != nil {
		return "", err
	}
	if !s.Invoices.AttachCheckoutURL(ctx, invoiceID, url) {
		logFrom(ctx).Warn().Str("invoice_id", invoiceID).Msg("checkout url not stored")
	}
	return url, nil
}

// Pay completes the mocked payment: it opens the checkout session, marks
// the invoice paid and moves the linked order to paid when its workflow
// allows. Paying a paid invoice returns it unchanged.
func (s *PaymentService) Pay(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	tr := otel.Tracer("services/PaymentService")
	ctx, span := tr.Start(ctx, "Pay", trace.WithAttributes(attribute.String("invoice.id", invoiceID)))
	defer span.End()

	inv, ok := s.Invoices.GetInvoice(ctx, invoiceID)
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status == domain.InvoicePaid {
		return inv, nil
	}
	if _, err := s.Checkout(ctx, invoiceID); err != nil {
		return nil, err
	}
	if !s.Invoices.MarkAsPaid(ctx, invoiceID) {
		return nil, ErrInvoiceNotFound
	}

	if s.Orders != nil && inv.RepairOrderID != "" {
		if _, err := s.Orders.SetOrderStatus(ctx, inv.RepairOrderID, domain.OrderPaid, 0); err != nil {
			logFrom(ctx).Info().Err(err).Str("order_id", inv.RepairOrderID).Msg("order status left unchanged after payment")
		}
	}

	paid, ok := s.Invoices.GetInvoice(ctx, invoiceID)
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return paid, nil
}
