package storage

import (
	"context"
	"testing"
	"time"

	"github.com/fill-tracker/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// setupTestDB connects to the local test Postgres, skipping the test when
// it is unavailable or when running in short mode.
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "fill_tracker_test",
		User:           "tracker",
		Password:       "tracker_dev_password",
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
		return nil
	}
	t.Cleanup(db.Close)

	truncateAll(t, db)
	return db
}

func truncateAll(t *testing.T, db *PostgresDB) {
	t.Helper()

	ctx := testContext(t)
	for _, table := range []string{
		"traded_tokens", "fill_traders", "fill_values",
		"fills", "events", "transactions", "address_metadata",
	} {
		if _, err := db.Pool().Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to clear table %s: %v", table, err)
		}
	}
}
