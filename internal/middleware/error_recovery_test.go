package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contextutils "triviaapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestErrorRecoveryMiddleware_RecoversFromPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestErrorRecoveryMiddleware_PassesThroughSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil))
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorRecoveryMiddleware_CircuitBreakerOpens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(&ErrorRecoveryConfig{
		EnableCircuitBreaker:    true,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   30 * time.Second,
	}))
	router.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}

	// Circuit is now open, requests are shed
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "SERVICE_UNAVAILABLE")
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		code   contextutils.ErrorCode
		status int
	}{
		{"generation limit", contextutils.ErrorCodeGenerationLimitReached, http.StatusTooManyRequests},
		{"question not found", contextutils.ErrorCodeQuestionNotFound, http.StatusNotFound},
		{"invalid input", contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{"unauthorized", contextutils.ErrorCodeUnauthorized, http.StatusUnauthorized},
		{"invalid credentials", contextutils.ErrorCodeInvalidCredentials, http.StatusUnauthorized},
		{"record exists", contextutils.ErrorCodeRecordExists, http.StatusConflict},
		{"ai request failed", contextutils.ErrorCodeAIRequestFailed, http.StatusBadGateway},
		{"ai response invalid", contextutils.ErrorCodeAIResponseInvalid, http.StatusBadGateway},
		{"ai provider unavailable", contextutils.ErrorCodeAIProviderUnavailable, http.StatusServiceUnavailable},
		{"database query", contextutils.ErrorCodeDatabaseQuery, http.StatusInternalServerError},
		{"unknown", contextutils.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestHandleAppError_PlainError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleAppError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestHandleAppError_AppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleAppError(c, contextutils.ErrGenerationLimitReached)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "GENERATION_LIMIT_REACHED")
}
