// Package testing provides test utilities and database setup for the campaign service
package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB wraps a throwaway SQLite database migrated with the service models
type TestDB struct {
	DB   *gorm.DB
	Path string
	dir  string
}

// AllModels lists every persisted model in dependency order
func AllModels() []any {
	return []any{
		&models.Template{},
		&models.Contact{},
		&models.WhatsAppNumber{},
		&models.Campaign{},
		&models.MessageLog{},
		&models.WebhookEvent{},
		&models.QueueTask{},
		&models.AuditLog{},
	}
}

// SetupTestDB creates a fresh file-backed SQLite database under the OS temp dir
func SetupTestDB() (*TestDB, error) {
	dir, err := os.MkdirTemp("", "orochi-test-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.db", uuid.NewString()))
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// single writer: SQLite serialises writes anyway and this avoids SQLITE_BUSY churn
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(AllModels()...); err != nil {
		sqlDB.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return &TestDB{DB: db, Path: path, dir: dir}, nil
}

// TeardownTestDB closes the connection and removes the database files
func (tdb *TestDB) TeardownTestDB() error {
	if sqlDB, err := tdb.DB.DB(); err == nil {
		sqlDB.Close()
	}
	return os.RemoveAll(tdb.dir)
}

// ClearAllTables deletes every row while keeping the schema
func (tdb *TestDB) ClearAllTables() error {
	all := AllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := tdb.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(all[i]).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", all[i], err)
		}
	}
	return nil
}

// TestWithDB runs testFunc against a fresh database and always tears it down
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return fmt.Errorf("failed to setup test database: %w", err)
	}
	defer testDB.TeardownTestDB()

	return testFunc(testDB)
}

// CreateTestContext returns the base context used by repository and flow tests
func CreateTestContext() context.Context {
	return context.Background()
}
