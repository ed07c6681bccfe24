package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/learnhub/server/internal/database"
	"github.com/learnhub/server/internal/store"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupSyncService(t *testing.T) (*SyncService, *fakeClock) {
	t.Helper()

	db := setupTestDB(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	users := store.NewUserStore(db)
	users.Now = clock.Now

	svc := NewSyncService(users, nil)
	svc.Now = clock.Now
	return svc, clock
}
