package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/Cyvadra/tv-autotrade/internal/database"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB returns a migrated, isolated in-memory sqlite database
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := database.Open("sqlite", dsn, "silent")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
