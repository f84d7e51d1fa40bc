package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-repair-backend/internal/docstore"
	"github.com/tbourn/go-repair-backend/internal/domain"
)

// InvoicesStats returns aggregate metadata for a client's invoices: the
// number of documents and the latest update time among them. It is used to
// build ETags for the invoice list. When the client has no invoices, the
// count is 0 and maxUpdatedAt is nil.
func InvoicesStats(ctx context.Context, db *gorm.DB, clientID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return collectionStats(ctx, db, domain.CollectionInvoices, "clientUid", clientID)
}

// OrdersStats is InvoicesStats for an owner's repair orders.
func OrdersStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return collectionStats(ctx, db, domain.CollectionRepairOrders, "ownerId", ownerID)
}

func collectionStats(ctx context.Context, db *gorm.DB, collection, field, value string) (int64, *time.Time, error) {
	scoped := func() *gorm.DB {
		return db.WithContext(ctx).Model(&docstore.Record{}).
			Where("collection = ?", collection).
			Where(datatypes.JSONQuery("data").Equals(value, field))
	}

	var count int64
	if err := scoped().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest update_time (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdateTime time.Time
	}
	if err := scoped().Select("update_time").Order("update_time DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdateTime, nil
}
