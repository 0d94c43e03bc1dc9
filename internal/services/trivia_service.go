package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"triviaapp/internal/config"
	"triviaapp/internal/models"
	"triviaapp/internal/observability"
	contextutils "triviaapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// TriviaServiceInterface defines the interface for trivia persistence and
// answer/favorite operations.
type TriviaServiceInterface interface {
	CountRecentGenerations(ctx context.Context, userID int) (int, error)
	GetQuotaStatus(ctx context.Context, userID int) (*models.QuotaStatus, error)
	SaveGeneratedQuestions(ctx context.Context, userID int, candidates []models.TriviaCandidate) ([]models.TriviaQuestion, error)
	GetQuestionByID(ctx context.Context, id int) (*models.TriviaQuestion, error)
	SubmitAnswer(ctx context.Context, userID int, req *models.AnswerRequest) (*models.AnswerResult, error)
	ToggleFavorite(ctx context.Context, userID, triviaID int) (*models.FavoriteStatus, error)
	IsFavorited(ctx context.Context, userID, triviaID int) (bool, error)
	ListFavorites(ctx context.Context, userID int) ([]models.HistoryItem, error)
	ListHistory(ctx context.Context, userID int) ([]models.HistoryItem, error)
}

// TriviaService provides persistence for trivia questions, answers, favorites
// and generation history.
type TriviaService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// NewTriviaServiceWithLogger creates a new TriviaService instance with logger
func NewTriviaServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *TriviaService {
	return &TriviaService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// CountRecentGenerations returns the number of history rows for the user
// inside the rolling quota window.
func (s *TriviaService) CountRecentGenerations(ctx context.Context, userID int) (result0 int, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "count_recent_generations",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	windowStart := time.Now().Add(-s.cfg.GetGenerationWindow())
	var count int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trivia_history WHERE user_id = $1 AND created_at >= $2",
		userID, windowStart).Scan(&count)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to count recent generations")
	}
	span.SetAttributes(attribute.Int("generations.count", count))
	return count, nil
}

// GetQuotaStatus returns the user's generation quota for the rolling window.
// ResetsAt is when the oldest in-window generation ages out; with no usage it
// is simply now.
func (s *TriviaService) GetQuotaStatus(ctx context.Context, userID int) (result0 *models.QuotaStatus, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "get_quota_status",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	window := s.cfg.GetGenerationWindow()
	limit := s.cfg.GetGenerationLimit()
	windowStart := time.Now().Add(-window)

	var used int
	var oldest sql.NullTime
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(created_at) FROM trivia_history WHERE user_id = $1 AND created_at >= $2",
		userID, windowStart).Scan(&used, &oldest)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query quota status")
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	resetsAt := time.Now()
	if oldest.Valid {
		resetsAt = oldest.Time.Add(window)
	}

	return &models.QuotaStatus{
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetsAt:  resetsAt,
	}, nil
}

// SaveGeneratedQuestions persists generated candidates for the user. Each
// question insert is paired with a history row; a failure on either drops
// that candidate and moves on, so the returned slice may be a subset.
func (s *TriviaService) SaveGeneratedQuestions(ctx context.Context, userID int, candidates []models.TriviaCandidate) (result0 []models.TriviaQuestion, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "save_generated_questions",
		observability.AttributeUserID(userID),
		observability.AttributeBatchSize(len(candidates)),
	)
	defer observability.FinishSpan(span, &err)

	var saved []models.TriviaQuestion
	for _, candidate := range candidates {
		question := models.TriviaQuestion{
			UserID:     userID,
			Question:   candidate.Question,
			Choices:    candidate.Choices,
			Answer:     candidate.Answer,
			Difficulty: candidate.Difficulty,
			Category:   candidate.Category,
		}

		choicesJSON, marshalErr := question.MarshalChoicesToJSON()
		if marshalErr != nil {
			s.logger.Warn(ctx, "Dropping question with unmarshalable choices", map[string]interface{}{
				"error": marshalErr.Error(),
			})
			continue
		}

		insertErr := s.db.QueryRowContext(ctx,
			`INSERT INTO trivia_questions (user_id, question, choices, answer, difficulty, category, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
			userID, question.Question, choicesJSON, question.Answer, question.Difficulty, question.Category, time.Now(),
		).Scan(&question.ID, &question.CreatedAt)
		if insertErr != nil {
			s.logger.Error(ctx, "Failed to insert generated question", insertErr, map[string]interface{}{
				"user_id":  userID,
				"category": question.Category,
			})
			continue
		}

		if _, historyErr := s.db.ExecContext(ctx,
			"INSERT INTO trivia_history (user_id, trivia_id, created_at) VALUES ($1, $2, $3)",
			userID, question.ID, time.Now()); historyErr != nil {
			s.logger.Error(ctx, "Failed to insert history row", historyErr, map[string]interface{}{
				"user_id":   userID,
				"trivia_id": question.ID,
			})
			continue
		}

		saved = append(saved, question)
	}

	span.SetAttributes(attribute.Int("questions.saved", len(saved)))
	return saved, nil
}

// GetQuestionByID retrieves a trivia question by its ID. Returns
// ErrQuestionNotFound when no row exists.
func (s *TriviaService) GetQuestionByID(ctx context.Context, id int) (result0 *models.TriviaQuestion, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "get_question_by_id",
		observability.AttributeQuestionID(id),
	)
	defer observability.FinishSpan(span, &err)

	question := &models.TriviaQuestion{}
	var choicesJSON string
	err = s.db.QueryRowContext(ctx,
		"SELECT id, user_id, question, choices, answer, difficulty, category, created_at FROM trivia_questions WHERE id = $1",
		id).Scan(&question.ID, &question.UserID, &question.Question, &choicesJSON,
		&question.Answer, &question.Difficulty, &question.Category, &question.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrQuestionNotFound
		}
		return nil, contextutils.WrapError(err, "failed to query question")
	}

	if err = question.UnmarshalChoicesFromJSON(choicesJSON); err != nil {
		return nil, contextutils.WrapError(err, "failed to parse stored choices")
	}
	return question, nil
}

// SubmitAnswer records the user's answer to a question, overwriting any
// previous answer for the same question.
func (s *TriviaService) SubmitAnswer(ctx context.Context, userID int, req *models.AnswerRequest) (result0 *models.AnswerResult, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "submit_answer",
		observability.AttributeUserID(userID),
		observability.AttributeQuestionID(req.TriviaID),
	)
	defer observability.FinishSpan(span, &err)

	question, err := s.GetQuestionByID(ctx, req.TriviaID)
	if err != nil {
		return nil, err
	}

	// Correctness is plain label equality; labels outside the choice set are
	// recorded as incorrect rather than rejected.
	isCorrect := req.SelectedAnswer == question.Answer

	answer := &models.UserAnswer{
		UserID:         userID,
		TriviaID:       req.TriviaID,
		SelectedAnswer: req.SelectedAnswer,
		IsCorrect:      isCorrect,
	}
	now := time.Now()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO user_answers (user_id, trivia_id, selected_answer, is_correct, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, trivia_id)
		 DO UPDATE SET selected_answer = EXCLUDED.selected_answer, is_correct = EXCLUDED.is_correct, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		userID, req.TriviaID, req.SelectedAnswer, isCorrect, now, now,
	).Scan(&answer.ID, &answer.CreatedAt, &answer.UpdatedAt)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to save answer")
	}

	span.SetAttributes(attribute.Bool("answer.correct", isCorrect))
	return &models.AnswerResult{
		IsCorrect:     isCorrect,
		CorrectAnswer: question.Answer,
		SavedAnswer:   answer,
	}, nil
}

// ToggleFavorite flips the favorite state of a question for the user and
// returns the new state.
func (s *TriviaService) ToggleFavorite(ctx context.Context, userID, triviaID int) (result0 *models.FavoriteStatus, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "toggle_favorite",
		observability.AttributeUserID(userID),
		observability.AttributeQuestionID(triviaID),
	)
	defer observability.FinishSpan(span, &err)

	// Verify the question exists so toggles on bogus ids surface as 404s
	if _, err = s.GetQuestionByID(ctx, triviaID); err != nil {
		return nil, err
	}

	favorited, err := s.IsFavorited(ctx, userID, triviaID)
	if err != nil {
		return nil, err
	}

	if favorited {
		if _, err = s.db.ExecContext(ctx,
			"DELETE FROM favorites WHERE user_id = $1 AND trivia_id = $2",
			userID, triviaID); err != nil {
			return nil, contextutils.WrapError(err, "failed to remove favorite")
		}
	} else {
		// The unique index absorbs the read-then-write race
		if _, err = s.db.ExecContext(ctx,
			`INSERT INTO favorites (user_id, trivia_id, created_at) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, trivia_id) DO NOTHING`,
			userID, triviaID, time.Now()); err != nil {
			return nil, contextutils.WrapError(err, "failed to add favorite")
		}
	}

	span.SetAttributes(attribute.Bool("favorite.state", !favorited))
	return &models.FavoriteStatus{TriviaID: triviaID, Favorited: !favorited}, nil
}

// IsFavorited reports whether the user has favorited the question
func (s *TriviaService) IsFavorited(ctx context.Context, userID, triviaID int) (result0 bool, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "is_favorited",
		observability.AttributeUserID(userID),
		observability.AttributeQuestionID(triviaID),
	)
	defer observability.FinishSpan(span, &err)

	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND trivia_id = $2)",
		userID, triviaID).Scan(&exists)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to check favorite state")
	}
	return exists, nil
}

const historyItemSelect = `
	SELECT q.id, q.user_id, q.question, q.choices, q.answer, q.difficulty, q.category, q.created_at,
	       a.selected_answer, a.is_correct,
	       f.id IS NOT NULL AS favorited,
	       h.created_at AS generated_at`

// ListFavorites returns the user's favorited questions, newest favorite first
func (s *TriviaService) ListFavorites(ctx context.Context, userID int) (result0 []models.HistoryItem, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "list_favorites",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := historyItemSelect + `
	FROM favorites f
	JOIN trivia_questions q ON q.id = f.trivia_id
	LEFT JOIN user_answers a ON a.trivia_id = q.id AND a.user_id = f.user_id
	LEFT JOIN trivia_history h ON h.trivia_id = q.id AND h.user_id = f.user_id
	WHERE f.user_id = $1
	ORDER BY f.created_at DESC`

	return s.queryHistoryItems(ctx, query, userID)
}

// ListHistory returns the user's generation history joined with answer and
// favorite state, newest first.
func (s *TriviaService) ListHistory(ctx context.Context, userID int) (result0 []models.HistoryItem, err error) {
	ctx, span := observability.TraceTriviaFunction(ctx, "list_history",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := historyItemSelect + `
	FROM trivia_history h
	JOIN trivia_questions q ON q.id = h.trivia_id
	LEFT JOIN user_answers a ON a.trivia_id = q.id AND a.user_id = h.user_id
	LEFT JOIN favorites f ON f.trivia_id = q.id AND f.user_id = h.user_id
	WHERE h.user_id = $1
	ORDER BY h.created_at DESC`

	return s.queryHistoryItems(ctx, query, userID)
}

// queryHistoryItems runs one of the joined list queries and scans the rows
func (s *TriviaService) queryHistoryItems(ctx context.Context, query string, userID int) ([]models.HistoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query history items")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var items []models.HistoryItem
	for rows.Next() {
		var item models.HistoryItem
		var choicesJSON string
		var selectedAnswer sql.NullString
		var isCorrect sql.NullBool
		var generatedAt sql.NullTime

		if err := rows.Scan(
			&item.Question.ID, &item.Question.UserID, &item.Question.Question, &choicesJSON,
			&item.Question.Answer, &item.Question.Difficulty, &item.Question.Category, &item.Question.CreatedAt,
			&selectedAnswer, &isCorrect, &item.Favorited, &generatedAt,
		); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan history item")
		}

		if err := item.Question.UnmarshalChoicesFromJSON(choicesJSON); err != nil {
			return nil, contextutils.WrapError(err, "failed to parse stored choices")
		}
		if selectedAnswer.Valid {
			item.SelectedAnswer = &selectedAnswer.String
		}
		if isCorrect.Valid {
			item.IsCorrect = &isCorrect.Bool
		}
		if generatedAt.Valid {
			item.GeneratedAt = generatedAt.Time
		} else {
			item.GeneratedAt = item.Question.CreatedAt
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating history items")
	}
	return items, nil
}
