package repo

import (
	"context"
	"sort"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

// ErrConflict is returned when an optimistic update loses to another writer.
var ErrConflict = docstore.ErrConflict

func setOrderID(o *domain.RepairOrder, id string) {
	if o.OrderID == "" {
		o.OrderID = id
	}
}

func setInvoiceID(i *domain.Invoice, id string) {
	if i.InvoiceID == "" {
		i.InvoiceID = id
	}
}

// CreateOrder stores o under its OrderID.
func CreateOrder(ctx context.Context, st docstore.Store, o domain.RepairOrder) error {
	body, err := toDoc(o)
	if err != nil {
		return err
	}
	_, err = st.Set(ctx, domain.CollectionRepairOrders, o.OrderID, body)
	return err
}

// GetOrder returns the order with its store version, or ErrNotFound.
func GetOrder(ctx context.Context, st docstore.Store, orderID string) (*domain.RepairOrder, error) {
	doc, err := st.Get(ctx, domain.CollectionRepairOrders, orderID)
	if err != nil {
		return nil, err
	}
	o, err := decodeOne(doc, setOrderID)
	if err != nil {
		return nil, err
	}
	o.Version = doc.Version
	return o, nil
}

// SaveOrderEdits writes the editable fields and totals of o. When
// expectedVersion is non-zero the write fails with ErrConflict if the order
// changed since that version.
func SaveOrderEdits(ctx context.Context, st docstore.Store, o domain.RepairOrder, expectedVersion int64) error {
	updates := map[string]any{
		"clientName":      o.ClientName,
		"clientEmail":     o.ClientEmail,
		"deviceType":      o.DeviceType,
		"problemReported": o.ProblemReported,
		"diagnosis":       o.Diagnosis,
		"laborCost":       o.LaborCost,
		"parts":           append([]domain.Part{}, o.Parts...),
		"partsTotal":      o.PartsTotal,
		"totalCost":       o.TotalCost,
	}
	var pre []docstore.Precondition
	if expectedVersion > 0 {
		pre = append(pre, docstore.MatchVersion(expectedVersion))
	}
	_, err := st.Update(ctx, domain.CollectionRepairOrders, o.OrderID, updates, pre...)
	return err
}

// SetOrderStatus overwrites the order status, optionally guarded by version.
func SetOrderStatus(ctx context.Context, st docstore.Store, orderID, status string, expectedVersion int64) error {
	var pre []docstore.Precondition
	if expectedVersion > 0 {
		pre = append(pre, docstore.MatchVersion(expectedVersion))
	}
	_, err := st.Update(ctx, domain.CollectionRepairOrders, orderID, map[string]any{"status": status}, pre...)
	return err
}

// DeleteOrder removes the order document.
func DeleteOrder(ctx context.Context, st docstore.Store, orderID string) error {
	return st.Delete(ctx, domain.CollectionRepairOrders, orderID)
}

// OrdersForOwnerQuery selects an owner's orders without server ordering;
// see SortOrdersNewestFirst.
func OrdersForOwnerQuery(ownerID string) docstore.Query {
	return docstore.From(domain.CollectionRepairOrders).Where("ownerId", ownerID)
}

// DecodeOrders maps order documents, skipping malformed ones. Versions are
// carried over from the documents.
func DecodeOrders(docs []docstore.Document) []domain.RepairOrder {
	out := make([]domain.RepairOrder, 0, len(docs))
	for _, d := range docs {
		o := decodeAll([]docstore.Document{d}, setOrderID)
		if len(o) == 1 {
			o[0].Version = d.Version
			out = append(out, o[0])
		}
	}
	return out
}

// SortOrdersNewestFirst orders by createdAt descending.
func SortOrdersNewestFirst(orders []domain.RepairOrder) {
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
}

// CreateInvoice stores inv under its InvoiceID.
func CreateInvoice(ctx context.Context, st docstore.Store, inv domain.Invoice) error {
	body, err := toDoc(inv)
	if err != nil {
		return err
	}
	_, err = st.Set(ctx, domain.CollectionInvoices, inv.InvoiceID, body)
	return err
}

// GetInvoice returns the invoice or ErrNotFound.
func GetInvoice(ctx context.Context, st docstore.Store, invoiceID string) (*domain.Invoice, error) {
	doc, err := st.Get(ctx, domain.CollectionInvoices, invoiceID)
	if err != nil {
		return nil, err
	}
	return decodeOne(doc, setInvoiceID)
}

// UpdateInvoice merges fields into an existing invoice.
func UpdateInvoice(ctx context.Context, st docstore.Store, invoiceID string, updates map[string]any) error {
	_, err := st.Update(ctx, domain.CollectionInvoices, invoiceID, updates)
	return err
}

// InvoicesForClientQuery selects a client's invoices with an equality
// filter only, so no composite index is needed. Sort with
// SortInvoicesNewestFirst.
func InvoicesForClientQuery(clientID string) docstore.Query {
	return docstore.From(domain.CollectionInvoices).Where("clientUid", clientID)
}

// DecodeInvoices maps invoice documents, skipping malformed ones.
func DecodeInvoices(docs []docstore.Document) []domain.Invoice {
	return decodeAll(docs, setInvoiceID)
}

// SortInvoicesNewestFirst orders by createdAt descending.
func SortInvoicesNewestFirst(invs []domain.Invoice) {
	sort.SliceStable(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
}
