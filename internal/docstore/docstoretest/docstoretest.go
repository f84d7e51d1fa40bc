// Package docstoretest opens throwaway document stores for tests.
package docstoretest

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-repair-backend/internal/docstore"
)

// OpenDB opens a migrated SQLite database in a temp dir. It is closed when
// the test ends.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("docstore_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection serializes writers and listener reads.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := docstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Open returns a store over a fresh database. Indexes default to
// docstore.DefaultIndexes when opts.Indexes is nil.
func Open(t testing.TB, opts docstore.Options) *docstore.GormStore {
	t.Helper()
	if opts.Indexes == nil {
		opts.Indexes = docstore.DefaultIndexes
	}
	return docstore.NewGormStore(OpenDB(t), opts)
}

// NoIndexes is a non-nil empty index list, for exercising missing-index
// fallbacks.
var NoIndexes = []docstore.Index{}

// Next waits for the next snapshot or fails the test after timeout.
func Next(t testing.TB, l docstore.Listener, timeout time.Duration) docstore.Snapshot {
	t.Helper()
	select {
	case s, ok := <-l.Snapshots():
		if !ok {
			t.Fatalf("listener closed")
		}
		return s
	case <-time.After(timeout):
		t.Fatalf("no snapshot within %s", timeout)
	}
	return docstore.Snapshot{}
}
