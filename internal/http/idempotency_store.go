package httpapi

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-repair-backend/internal/http/middleware"
	"github.com/tbourn/go-repair-backend/internal/repo"
)

// dbIdempotencyStore keeps replayable responses in the idempotency table.
type dbIdempotencyStore struct {
	db *gorm.DB
}

// newIdempotencyStore returns nil without a database, which turns
// idempotency into plain header validation.
func newIdempotencyStore(db *gorm.DB) middleware.IdempotencyStore {
	if db == nil {
		return nil
	}
	return dbIdempotencyStore{db: db}
}

func (s dbIdempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.StoredResponse{Status: rec.Status, Body: []byte(rec.Response)}, nil
}

// Save stores resp. A concurrent save of the same key keeps the first
// result.
func (s dbIdempotencyStore) Save(ctx context.Context, userID, scope, key string, resp middleware.StoredResponse, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, string(resp.Body), resp.Status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
