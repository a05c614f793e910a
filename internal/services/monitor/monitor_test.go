package monitor

import (
	"io"
	"log"
	"testing"

	"clore-watch/internal/database"
	"clore-watch/internal/models"
	"clore-watch/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func newTestUser(t *testing.T, st *store.Store, externalID int64) *models.User {
	t.Helper()
	user := &models.User{
		ExternalID: externalID,
		Username:   "tester",
		APIKey:     "key",
		IsActive:   true,
	}
	if err := st.Users.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
