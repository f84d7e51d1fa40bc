package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the relational row backing one document.
type Record struct {
	Collection string         `gorm:"type:varchar(64);primaryKey"`
	ID         string         `gorm:"type:varchar(191);primaryKey"`
	Data       datatypes.JSON `gorm:"not null"`
	Version    int64          `gorm:"not null"`
	CreateTime time.Time      `gorm:"not null;index:idx_documents_created"`
	UpdateTime time.Time      `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (Record) TableName() string { return "documents" }

// Migrate creates or updates the documents table.
func Migrate(db *gorm.DB) error { return db.AutoMigrate(&Record{}) }

// Options configures a GormStore.
type Options struct {
	// Bus carries change notifications to listeners. Defaults to a LocalBus.
	Bus Bus
	// Indexes are the declared composite indexes.
	Indexes []Index
	// Clock overrides the time source; used by tests.
	Clock func() time.Time
	// Logger receives warnings about skipped documents and change
	// publication. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// GormStore implements Store on a relational database through GORM. Each
// document is one row in the documents table with a JSON body.
type GormStore struct {
	db      *gorm.DB
	bus     Bus
	indexes []Index
	clock   func() time.Time
	log     zerolog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewGormStore returns a store over db. The documents table must exist
// (see Migrate).
func NewGormStore(db *gorm.DB, opts Options) *GormStore {
	s := &GormStore{
		db:      db,
		bus:     opts.Bus,
		indexes: append([]Index{}, opts.Indexes...),
		clock:   opts.Clock,
	}
	if s.bus == nil {
		s.bus = NewLocalBus()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = zerolog.Nop()
	}
	return s
}

// NewID returns a fresh random document id.
func (s *GormStore) NewID() string { return uuid.NewString() }

// Now returns the store clock in UTC. Successive calls are strictly
// increasing so server timestamps order writes made by this process.
func (s *GormStore) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.clock().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Get returns the document or ErrNotFound.
func (s *GormStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc, err := decode(rec)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Query runs q once.
func (s *GormStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(s.indexes); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Model(&Record{}).Where("collection = ?", q.collection)
	for _, f := range q.filters {
		if !f.in {
			tx = tx.Where(datatypes.JSONQuery("data").Equals(f.value, f.field))
			continue
		}
		if len(f.values) == 0 {
			return []Document{}, nil
		}
		exprs := make([]clause.Expression, 0, len(f.values))
		for _, v := range f.values {
			exprs = append(exprs, datatypes.JSONQuery("data").Equals(v, f.field))
		}
		tx = tx.Where(clause.Or(exprs...))
	}
	tx = tx.Order("create_time ASC").Order("id ASC")
	if q.order == nil && q.limit > 0 {
		tx = tx.Limit(q.limit)
	}

	var rows []Record
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		d, err := decode(r)
		if err != nil {
			s.log.Warn().Err(err).Str("collection", r.Collection).Str("id", r.ID).Msg("skipping undecodable document")
			continue
		}
		docs = append(docs, d)
	}
	if q.order != nil {
		q.sortDocs(docs)
		if q.limit > 0 && len(docs) > q.limit {
			docs = docs[:q.limit]
		}
	}
	return docs, nil
}

// Set creates or replaces a document.
func (s *GormStore) Set(ctx context.Context, collection, id string, data any) (WriteResult, error) {
	m, err := ToMap(data)
	if err != nil {
		return WriteResult{}, err
	}
	now := s.Now()
	resolveSentinels(m, now)
	raw, err := json.Marshal(m)
	if err != nil {
		return WriteResult{}, err
	}

	rec := Record{
		Collection: collection,
		ID:         id,
		Data:       datatypes.JSON(raw),
		Version:    1,
		CreateTime: now,
		UpdateTime: now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"data":        gorm.Expr("excluded.data"),
			"version":     gorm.Expr("documents.version + 1"),
			"update_time": gorm.Expr("excluded.update_time"),
		}),
	}).Create(&rec).Error
	if err != nil {
		return WriteResult{}, err
	}

	s.publish(ctx, collection, id)
	return WriteResult{UpdateTime: now}, nil
}

// maxUpdateAttempts bounds retries of the read-merge-write cycle when
// another writer changes the document in between.
const maxUpdateAttempts = 5

// Update merges top-level fields into an existing document. It fails with
// ErrNotFound when the document does not exist and with ErrConflict when a
// MatchVersion precondition does not hold.
func (s *GormStore) Update(ctx context.Context, collection, id string, updates map[string]any, pre ...Precondition) (WriteResult, error) {
	want := int64(0)
	for _, p := range pre {
		want = p.version
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var rec Record
		err := s.db.WithContext(ctx).
			Where("collection = ? AND id = ?", collection, id).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WriteResult{}, ErrNotFound
		}
		if err != nil {
			return WriteResult{}, err
		}
		if want != 0 && rec.Version != want {
			return WriteResult{}, ErrConflict
		}

		m, err := decodeObject(rec.Data)
		if err != nil || m == nil {
			m = map[string]any{}
		}
		for k, v := range updates {
			m[k] = v
		}
		now := s.Now()
		resolveSentinels(m, now)
		raw, err := json.Marshal(m)
		if err != nil {
			return WriteResult{}, err
		}

		res := s.db.WithContext(ctx).Model(&Record{}).
			Where("collection = ? AND id = ? AND version = ?", collection, id, rec.Version).
			Updates(map[string]any{
				"data":        datatypes.JSON(raw),
				"version":     rec.Version + 1,
				"update_time": now,
			})
		if res.Error != nil {
			return WriteResult{}, res.Error
		}
		if res.RowsAffected == 1 {
			s.publish(ctx, collection, id)
			return WriteResult{UpdateTime: now}, nil
		}
		if want != 0 {
			return WriteResult{}, ErrConflict
		}
	}
	return WriteResult{}, ErrConflict
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.publish(ctx, collection, id)
	}
	return nil
}

// publish notifies listeners. The write is already committed, so a bus
// failure is only logged.
func (s *GormStore) publish(ctx context.Context, collection, id string) {
	if err := s.bus.Publish(context.WithoutCancel(ctx), Change{Collection: collection, ID: id}); err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("change publish failed")
	}
}

func decode(r Record) (Document, error) {
	m, err := decodeObject(r.Data)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Collection: r.Collection,
		ID:         r.ID,
		Data:       m,
		Version:    r.Version,
		CreateTime: r.CreateTime,
		UpdateTime: r.UpdateTime,
		raw:        []byte(r.Data),
	}, nil
}
