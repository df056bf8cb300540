// Package dbtest opens the integration test database shared by repository tests.
package dbtest

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
)

// Open connects to the test database and applies the schema.
// The test is skipped under -short or when postgres is unreachable.
func Open(t *testing.T) *db.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := config.DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnv("DB_PORT", "5432"),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "movegh_test"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	database, err := db.Connect(cfg, logger.NewNop())
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
		return nil
	}

	if err := database.EnsureSchema(context.Background()); err != nil {
		database.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { database.Close() })
	return database
}

// UniqueID returns a suffix that keeps rows from parallel runs apart
func UniqueID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
