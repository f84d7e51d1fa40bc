// Package services – InvoiceService
//
// InvoiceService feeds a client's invoice list. The query filters on the
// client only and the newest-first order is applied here, so no composite
// index is needed. Status moves pending → paid once; marking an invoice
// paid again is a no-op.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
	"github.com/tbourn/go-repair-backend/internal/observability"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

// InvoiceService reads and updates invoices.
type InvoiceService struct {
	Store docstore.Store
}

// NewInvoiceService constructs an InvoiceService.
func NewInvoiceService(st docstore.Store) *InvoiceService {
	return &InvoiceService{Store: st}
}

// ListenInvoicesForClient streams a client's invoices newest first. When
// the listener fails with a missing-index error the list is fetched once
// instead; any other error delivers an empty list. The stream ends after an
// error either way.
func (s *InvoiceService) ListenInvoicesForClient(ctx context.Context, clientID string, onUpdate func([]domain.Invoice)) *Subscription {
	return follow(ctx, s.Store, repo.InvoicesForClientQuery(clientID), "client_invoices",
		func(docs []docstore.Document) { onUpdate(sortedInvoices(docs)) },
		func(err error) {
			if docstore.IsIndexError(err) {
				observability.ListenerFallbacks.WithLabelValues("client_invoices").Inc()
				onUpdate(s.FetchInvoicesOnce(ctx, clientID))
				return
			}
			onUpdate([]domain.Invoice{})
		},
	)
}

// FetchInvoicesOnce returns a client's invoices newest first, or an empty
// list when the store fails.
func (s *InvoiceService) FetchInvoicesOnce(ctx context.Context, clientID string) []domain.Invoice {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "FetchInvoicesOnce", trace.WithAttributes(attribute.String("client.id", clientID)))
	defer span.End()

	docs, err := s.Store.Query(ctx, repo.InvoicesForClientQuery(clientID))
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("client_id", clientID).Msg("invoice fetch failed")
		return []domain.Invoice{}
	}
	return sortedInvoices(docs)
}

// GetInvoice returns the invoice stored under invoiceID.
func (s *InvoiceService) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, bool) {
	inv, err := repo.GetInvoice(ctx, s.Store, invoiceID)
	if err != nil {
		if !repo.IsNotFound(err) {
			logFrom(ctx).Warn().Err(err).Str("invoice_id", invoiceID).Msg("invoice lookup failed")
		}
		return nil, false
	}
	return inv, true
}

// MarkAsPaid sets the invoice status to paid and stamps paidAt. An invoice
// that is already paid is left as is and still reports success. It does not
// check that a payment happened.
func (s *InvoiceService) MarkAsPaid(ctx context.Context, invoiceID string) bool {
	tr := otel.Tracer("services/InvoiceService")
	ctx, span := tr.Start(ctx, "MarkAsPaid", trace.WithAttributes(attribute.String("invoice.id", invoiceID)))
	defer span.End()

	lg := logFrom(ctx).With().Str("invoice_id", invoiceID).Logger()
	inv, err := repo.GetInvoice(ctx, s.Store, invoiceID)
	if err != nil {
		lg.Warn().Err(err).Msg("mark as paid: invoice lookup failed")
		return false
	}
	if inv.Status == domain.InvoicePaid {
		return true
	}
	err = repo.UpdateInvoice(ctx, s.Store, invoiceID, map[string]any{
		"status": domain.InvoicePaid,
		"paidAt": docstore.ServerTimestamp,
	})
	if err != nil {
		lg.Warn().Err(err).Msg("mark as paid failed")
		return false
	}
	observability.InvoicesPaid.Inc()
	return true
}

// AttachCheckoutURL stores the payment session URL on the invoice.
func (s *InvoiceService) AttachCheckoutURL(ctx context.Context, invoiceID, url string) bool {
	if err := repo.UpdateInvoice(ctx, s.Store, invoiceID, map[string]any{"checkoutUrl": url}); err != nil {
		logFrom(ctx).Warn().Err(err).Str("invoice_id", invoiceID).Msg("attach checkout url failed")
		return false
	}
	return true
}

func sortedInvoices(docs []docstore.Document) []domain.Invoice {
	invs := repo.DecodeInvoices(docs)
	repo.SortInvoicesNewestFirst(invs)
	return invs
}
