// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"database/sql"
	"os"

	"triviaapp/internal/database"
	"triviaapp/internal/observability"
	"triviaapp/internal/services"
	contextutils "triviaapp/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(userService *services.UserService, dbManager *database.Manager, logger *observability.Logger, db *sql.DB) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the trivia application.

Available commands:
  stats     - Show database statistics
  migrate   - Run pending database migrations`,
	}

	// Add subcommands
	dbCmd.AddCommand(statsCmd(userService, logger, db))
	dbCmd.AddCommand(migrateCmd(dbManager, logger, db))

	return dbCmd
}

// statsCmd returns the stats command
func statsCmd(userService *services.UserService, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Long:  `Show database statistics including user, question, and answer counts.`,
		RunE:  runStats(userService, logger, db),
	}
}

// migrateCmd returns the migrate command
func migrateCmd(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations",
		Long:  `Apply any pending schema migrations to the database.`,
		RunE:  runMigrate(dbManager, logger, db),
	}
}

// runStats returns a function that shows database statistics
func runStats(userService *services.UserService, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("TRIVIA_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		// Get user statistics
		users, err := userService.GetAllUsers(ctx)
		if err != nil {
			logger.Error(ctx, "Failed to get user statistics", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to get user statistics: %v", err)
		}

		var questionCount, answerCount, favoriteCount int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trivia_questions").Scan(&questionCount); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to count questions: %v", err)
		}
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_answers").Scan(&answerCount); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to count answers: %v", err)
		}
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM favorites").Scan(&favoriteCount); err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to count favorites: %v", err)
		}

		logger.Info(ctx, "Database statistics", map[string]interface{}{
			"total_users":     len(users),
			"total_questions": questionCount,
			"total_answers":   answerCount,
			"total_favorites": favoriteCount,
			"database":        "PostgreSQL",
			"status":          "Connected",
		})

		return nil
	}
}

// runMigrate returns a function that runs pending migrations
func runMigrate(dbManager *database.Manager, logger *observability.Logger, db *sql.DB) func(cmd *cobra.Command, args []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		// Log diagnostic information
		logger.Info(ctx, "Diagnostic info", map[string]interface{}{"config_file": os.Getenv("TRIVIA_CONFIG_FILE"), "database": getDatabaseInfo(db)})

		logger.Info(ctx, "Running database migrations", map[string]interface{}{})

		if err := dbManager.RunMigrations(db); err != nil {
			logger.Error(ctx, "Migrations failed", err, map[string]interface{}{})
			return contextutils.WrapErrorf(contextutils.ErrInternalError, "migrations failed: %v", err)
		}

		logger.Info(ctx, "Database migrations completed successfully", map[string]interface{}{})
		return nil
	}
}
