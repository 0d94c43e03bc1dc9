//go:build integration

package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"triviaapp/internal/config"
	"triviaapp/internal/database"
	"triviaapp/internal/observability"

	"github.com/stretchr/testify/require"
)

// SharedTestDBSetup connects to the integration test database and truncates
// all application tables so each test starts from a clean slate.
func SharedTestDBSetup(t *testing.T) *sql.DB {
	observabilityLogger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(observabilityLogger)

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Fatal("TEST_DATABASE_URL environment variable must be set for integration tests")
	}

	db, err := dbManager.InitDB(databaseURL)
	require.NoError(t, err)

	CleanupTestDatabase(db, t)

	return db
}

// CleanupTestDatabase truncates all application tables
func CleanupTestDatabase(db *sql.DB, t *testing.T) {
	ctx := context.Background()

	cleanupQueries := []string{
		"TRUNCATE TABLE user_answers CASCADE",
		"TRUNCATE TABLE favorites CASCADE",
		"TRUNCATE TABLE trivia_history CASCADE",
		"TRUNCATE TABLE trivia_questions CASCADE",
		"TRUNCATE TABLE users CASCADE",
	}
	for _, query := range cleanupQueries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			t.Fatalf("failed to clean up test database (%s): %v", query, err)
		}
	}
}
