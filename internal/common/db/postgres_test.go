package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/lib/pq"
)

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func loadTestEnv() {
	if err := godotenv.Load("../../../.env"); err != nil {
		log.Println("WARNING: Could not load .env file from project root. Falling back to defaults:", err)
	}
}

func testConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnv("DB_PORT", "5432"),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "movegh_test"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func TestConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	loadTestEnv()

	db, err := Connect(testConfig(), logger.New("test"))
	if err != nil {
		t.Skipf("Cannot connect to database (expected in CI): %v", err)
		return
	}
	defer db.Close()

	if err := db.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestWithTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db, err := Connect(testConfig(), logger.New("test"))
	if err != nil {
		t.Skipf("Cannot connect to database: %v", err)
		return
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	// Commit path
	err = db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Errorf("Transaction failed: %v", err)
	}

	// Rollback path keeps the error and discards writes
	key := "tx-rollback-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	sentinel := errors.New("boom")
	err = db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (type, status, idempotency_key) VALUES ('payment', 'created', $1)`, key); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected sentinel error, got %v", err)
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE idempotency_key = $1`, key).Scan(&count)
	if count != 0 {
		t.Errorf("Expected rollback to discard insert, found %d rows", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("Expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("Foreign key violation must not be reported as unique violation")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Error("Plain errors are not unique violations")
	}
}

func TestIsInvalidText(t *testing.T) {
	if !IsInvalidText(&pq.Error{Code: "22P02"}) {
		t.Error("Expected 22P02 to be invalid text representation")
	}
	wrapped := fmt.Errorf("lookup failed: %w", &pq.Error{Code: "22P02"})
	if !IsInvalidText(wrapped) {
		t.Error("Expected wrapped 22P02 to be detected")
	}
	if IsInvalidText(&pq.Error{Code: "23505"}) {
		t.Error("Unique violation must not be reported as invalid text")
	}
}
