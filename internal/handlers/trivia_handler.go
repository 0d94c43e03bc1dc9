package handlers

import (
	"net/http"
	"strconv"

	"triviaapp/internal/config"
	"triviaapp/internal/middleware"
	"triviaapp/internal/models"
	"triviaapp/internal/observability"
	"triviaapp/internal/services"
	contextutils "triviaapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// TriviaHandler handles trivia generation, answering, favorites and history
type TriviaHandler struct {
	triviaService     services.TriviaServiceInterface
	generationService services.GenerationServiceInterface
	config            *config.Config
	logger            *observability.Logger
}

// NewTriviaHandler creates a new TriviaHandler instance
func NewTriviaHandler(triviaService services.TriviaServiceInterface, generationService services.GenerationServiceInterface, cfg *config.Config, logger *observability.Logger) *TriviaHandler {
	return &TriviaHandler{
		triviaService:     triviaService,
		generationService: generationService,
		config:            cfg,
		logger:            logger,
	}
}

// GenerateTrivia generates a batch of trivia questions for the authenticated
// user, subject to the rolling generation quota.
func (h *TriviaHandler) GenerateTrivia(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "generate_trivia")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	// Parse query parameters
	categories := c.QueryArray("categories")

	minDifficulty := config.MinDifficulty
	if raw := c.Query("min_difficulty"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			HandleValidationError(c, "min_difficulty", raw, "must be an integer")
			return
		}
		minDifficulty = parsed
	}

	maxDifficulty := config.MaxDifficulty
	if raw := c.Query("max_difficulty"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			HandleValidationError(c, "max_difficulty", raw, "must be an integer")
			return
		}
		maxDifficulty = parsed
	}

	if minDifficulty < config.MinDifficulty || maxDifficulty > config.MaxDifficulty || minDifficulty > maxDifficulty {
		HandleValidationError(c, "difficulty range", strconv.Itoa(minDifficulty)+"-"+strconv.Itoa(maxDifficulty), "must be within 1-10 with min <= max")
		return
	}

	span.SetAttributes(
		attribute.StringSlice("trivia.categories", categories),
		attribute.Int("trivia.min_difficulty", minDifficulty),
		attribute.Int("trivia.max_difficulty", maxDifficulty),
	)

	// Quota gate: nothing is generated or persisted when the user is over
	used, err := h.triviaService.CountRecentGenerations(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking generation quota", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}
	limit := h.config.GetGenerationLimit()
	if used >= limit {
		span.SetAttributes(attribute.Bool("trivia.quota_exceeded", true), observability.AttributeLimit(limit))
		HandleAppError(c, contextutils.ErrGenerationLimitReached)
		return
	}

	candidates, err := h.generationService.GenerateQuestions(c.Request.Context(), &models.GenerationRequest{
		Categories:    categories,
		MinDifficulty: minDifficulty,
		MaxDifficulty: maxDifficulty,
	})
	if err != nil {
		h.logger.Error(c.Request.Context(), "Trivia generation failed", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}

	saved, err := h.triviaService.SaveGeneratedQuestions(c.Request.Context(), userID, candidates)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save generated questions", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}

	if saved == nil {
		saved = []models.TriviaQuestion{}
	}
	span.SetAttributes(attribute.Int("trivia.questions_saved", len(saved)))
	c.JSON(http.StatusOK, gin.H{
		"questions": saved,
	})
}

// GetQuota returns the user's generation quota for the rolling window
func (h *TriviaHandler) GetQuota(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_quota")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	quota, err := h.triviaService.GetQuotaStatus(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error reading quota status", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	c.JSON(http.StatusOK, quota)
}

// SubmitAnswer records the user's answer to a trivia question
func (h *TriviaHandler) SubmitAnswer(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_answer")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	span.SetAttributes(observability.AttributeQuestionID(req.TriviaID))

	result, err := h.triviaService.SubmitAnswer(c.Request.Context(), userID, &req)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Answer submission rejected", map[string]interface{}{
			"user_id":   userID,
			"trivia_id": req.TriviaID,
			"error":     err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("answer.correct", result.IsCorrect))
	c.JSON(http.StatusOK, result)
}

// ToggleFavorite flips the favorite state of a question for the user
func (h *TriviaHandler) ToggleFavorite(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "toggle_favorite")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	var req models.FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	span.SetAttributes(observability.AttributeQuestionID(req.TriviaID))

	status, err := h.triviaService.ToggleFavorite(c.Request.Context(), userID, req.TriviaID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Bool("favorite.state", status.Favorited))
	c.JSON(http.StatusOK, status)
}

// GetFavoriteStatus reports whether a single question is favorited
func (h *TriviaHandler) GetFavoriteStatus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_favorite_status")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	raw := c.Query("trivia_id")
	triviaID, err := strconv.Atoi(raw)
	if err != nil || triviaID <= 0 {
		HandleValidationError(c, "trivia_id", raw, "must be a positive integer")
		return
	}

	span.SetAttributes(observability.AttributeQuestionID(triviaID))

	favorited, err := h.triviaService.IsFavorited(c.Request.Context(), userID, triviaID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.FavoriteStatus{TriviaID: triviaID, Favorited: favorited})
}

// ListFavorites returns the user's favorited questions
func (h *TriviaHandler) ListFavorites(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_favorites")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	items, err := h.triviaService.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if items == nil {
		items = []models.HistoryItem{}
	}
	span.SetAttributes(attribute.Int("favorites.count", len(items)))
	c.JSON(http.StatusOK, gin.H{"favorites": items})
}

// ListHistory returns the user's generation history
func (h *TriviaHandler) ListHistory(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_history")
	defer observability.FinishSpan(span, nil)

	userID := c.GetInt(middleware.UserIDKey)
	span.SetAttributes(observability.AttributeUserID(userID))

	items, err := h.triviaService.ListHistory(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if items == nil {
		items = []models.HistoryItem{}
	}
	span.SetAttributes(attribute.Int("history.count", len(items)))
	c.JSON(http.StatusOK, gin.H{"history": items})
}

// GetCategories returns the configured category catalog
func (h *TriviaHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.config.GetCategories()})
}
