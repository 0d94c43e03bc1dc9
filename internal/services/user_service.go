package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"triviaapp/internal/config"
	"triviaapp/internal/models"
	"triviaapp/internal/observability"
	contextutils "triviaapp/internal/utils"

	"github.com/lib/pq"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	CreateUserWithPassword(ctx context.Context, username, email, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, userID int, newPassword string) error
	UpdateLastActive(ctx context.Context, userID int) error
	GetAllUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, userID int) error
	EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error
	GetDB() *sql.DB
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// userSelectFields contains all user fields for SELECT queries
const userSelectFields = `id, username, email, password_hash, last_active, created_at, updated_at`

// scanUserFromRow scans a database row into a models.User struct
func (s *UserService) scanUserFromRow(row *sql.Row) (result0 *models.User, err error) {
	user := &models.User{}
	err = row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.LastActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery is a shared method for getting a user by any query
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (result0 *models.User, err error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var user *models.User
	user, err = s.scanUserFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found is not an error here
		}
		return nil, err
	}
	return user, nil
}

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateUserWithPassword creates a new user with a bcrypt-hashed password
func (s *UserService) CreateUserWithPassword(ctx context.Context, username, email, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user_with_password", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	// Validate username is not empty
	if username == "" || len(strings.TrimSpace(username)) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "username cannot be empty")
	}
	if email != "" && !contextutils.IsValidEmail(email) {
		return nil, contextutils.WrapError(contextutils.ErrInvalidFormat, "invalid email address")
	}

	// Hash the password using bcrypt
	var hashedPassword []byte
	hashedPassword, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO users (username, email, password_hash, last_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	now := time.Now()
	var id int
	err = s.db.QueryRowContext(ctx, query, username, toNullString(email), string(hashedPassword), now, now, now).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.ErrRecordExists
		}
		return nil, err
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, "user was created but could not be retrieved from database")
	}

	return user, nil
}

// AuthenticateUser verifies user credentials and returns the user if valid
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)
	// Get user by username
	var user *models.User
	user, err = s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "user not found")
	}

	// Check if password hash exists
	if !user.PasswordHash.Valid {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "user has no password set")
	}

	// Compare provided password with stored hash
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password))
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrInvalidCredentials, "invalid password")
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", attribute.Int("user.id", id))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userSelectFields)
	var user *models.User
	user, err = s.getUserByQuery(ctx, query, id)
	if err != nil {
		s.logger.Error(ctx, "Database error retrieving user", err, map[string]interface{}{"user_id": id})
		return nil, err
	}
	if user == nil {
		s.logger.Debug(ctx, "User not found in database", map[string]interface{}{"user_id": id})
		return nil, nil
	}
	return user, nil
}

// GetUserByUsername retrieves a user by their username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, username)
}

// GetUserByEmail retrieves a user by their email address
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_email")
	defer observability.FinishSpan(span, &err)
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userSelectFields)
	return s.getUserByQuery(ctx, query, email)
}

// UpdateUserPassword updates a user's password hash
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3",
		string(hashedPassword), time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update password")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check update result")
	}
	if rowsAffected == 0 {
		return contextutils.ErrRecordNotFound
	}
	return nil
}

// UpdateLastActive updates the user's last activity timestamp
func (s *UserService) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_last_active", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, "UPDATE users SET last_active = $1 WHERE id = $2", time.Now(), userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to update last active")
	}
	return nil
}

// GetAllUsers returns all users ordered by username
func (s *UserService) GetAllUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_all_users")
	defer observability.FinishSpan(span, &err)

	query := "SELECT id, username, email, last_active, created_at, updated_at FROM users ORDER BY username"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.LastActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating users")
	}
	return users, nil
}

// DeleteUser removes a user and all their trivia data
func (s *UserService) DeleteUser(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_user", attribute.Int("user.id", userID))
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseTransaction, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn(ctx, "Failed to rollback transaction", map[string]interface{}{"error": rbErr.Error()})
			}
		}
	}()

	// Child rows first, then the user row
	for _, table := range []string{"user_answers", "favorites", "trivia_history", "trivia_questions"} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", table), userID); err != nil {
			return contextutils.WrapErrorf(err, "failed to delete rows from %s", table)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete user")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check delete result")
	}
	if rowsAffected == 0 {
		err = contextutils.ErrRecordNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseTransaction, "failed to commit transaction")
	}
	return nil
}

// EnsureAdminUserExists creates the admin user if it does not already exist
func (s *UserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists", attribute.String("user.username", adminUsername))
	defer observability.FinishSpan(span, &err)

	if adminUsername == "" || adminPassword == "" {
		return contextutils.WrapError(contextutils.ErrMissingRequired, "admin username and password must be configured")
	}

	existing, err := s.GetUserByUsername(ctx, adminUsername)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	_, err = s.CreateUserWithPassword(ctx, adminUsername, "", adminPassword)
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrRecordExists) {
			// Lost a race with another instance, fine
			return nil
		}
		return err
	}

	s.logger.Info(ctx, "Admin user created", map[string]interface{}{"username": adminUsername})
	return nil
}

// GetDB returns the underlying database connection
func (s *UserService) GetDB() *sql.DB {
	return s.db
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isDuplicateKeyError checks for a PostgreSQL unique constraint violation
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 23505 is unique_violation
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}
