// Package models defines data structures used throughout the trivia application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// User represents a user in the system
type User struct {
	ID           int            `json:"id" yaml:"id"`
	Username     string         `json:"username" yaml:"username"`
	Email        sql.NullString `json:"email" yaml:"email"`
	PasswordHash sql.NullString `json:"-" yaml:"-"` // Omit from JSON responses
	LastActive   sql.NullTime   `json:"last_active" yaml:"last_active"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for User to handle sql.NullString and sql.NullTime properly
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int        `json:"id"`
		Username   string     `json:"username"`
		Email      *string    `json:"email"`
		LastActive *time.Time `json:"last_active"`
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
	}{
		ID:         u.ID,
		Username:   u.Username,
		Email:      nullStringToPointer(u.Email),
		LastActive: nullTimeToPointer(u.LastActive),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// TriviaQuestion represents a generated multiple-choice trivia question
type TriviaQuestion struct {
	ID         int       `json:"id"`
	UserID     int       `json:"user_id"`
	Question   string    `json:"question"`
	Choices    []string  `json:"choices"` // 4 strings labeled "A:" through "D:"
	Answer     string    `json:"answer"`  // "A", "B", "C" or "D"
	Difficulty int       `json:"difficulty"`
	Category   string    `json:"category"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalChoicesToJSON converts the choices slice to a JSON string for database storage
func (q *TriviaQuestion) MarshalChoicesToJSON() (result0 string, err error) {
	data, err := json.Marshal(q.Choices)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalChoicesFromJSON parses a JSON string from the database into the choices slice
func (q *TriviaQuestion) UnmarshalChoicesFromJSON(data string) error {
	return json.Unmarshal([]byte(data), &q.Choices)
}

// UserAnswer represents a user's recorded answer to a trivia question.
// One row per (user, question); re-answering overwrites the previous row.
type UserAnswer struct {
	ID             int       `json:"id"`
	UserID         int       `json:"user_id"`
	TriviaID       int       `json:"trivia_id"`
	SelectedAnswer string    `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Favorite marks a trivia question as favorited by a user
type Favorite struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	TriviaID  int       `json:"trivia_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry records that a question was generated for a user. The
// rolling generation quota is computed over these rows.
type HistoryEntry struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	TriviaID  int       `json:"trivia_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryItem is a history entry joined with its question and the user's
// answer state, as returned by the history listing.
type HistoryItem struct {
	Question       TriviaQuestion `json:"question"`
	SelectedAnswer *string        `json:"selected_answer"`
	IsCorrect      *bool          `json:"is_correct"`
	Favorited      bool           `json:"favorited"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// GenerationRequest captures the user-supplied constraints for trivia generation
type GenerationRequest struct {
	Categories    []string `json:"categories"`
	MinDifficulty int      `json:"min_difficulty"`
	MaxDifficulty int      `json:"max_difficulty"`
}

// TriviaCandidate is a generated question before persistence
type TriviaCandidate struct {
	Question   string   `json:"question"`
	Choices    []string `json:"choices"`
	Answer     string   `json:"answer"`
	Difficulty int      `json:"difficulty"`
	Category   string   `json:"category"`
}

// AnswerRequest is the payload for submitting an answer
type AnswerRequest struct {
	TriviaID       int    `json:"trivia_id" binding:"required"`
	SelectedAnswer string `json:"selected_answer" binding:"required"`
}

// AnswerResult reports the outcome of an answer submission
type AnswerResult struct {
	IsCorrect     bool        `json:"is_correct"`
	CorrectAnswer string      `json:"correct_answer"`
	SavedAnswer   *UserAnswer `json:"saved_answer"`
}

// FavoriteRequest is the payload for toggling or checking a favorite
type FavoriteRequest struct {
	TriviaID int `json:"trivia_id" binding:"required"`
}

// FavoriteStatus reports whether a question is currently favorited
type FavoriteStatus struct {
	TriviaID  int  `json:"trivia_id"`
	Favorited bool `json:"favorited"`
}

// QuotaStatus reports the user's generation quota state for the rolling window
type QuotaStatus struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}
