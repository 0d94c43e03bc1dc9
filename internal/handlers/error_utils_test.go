package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "triviaapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorCodeToHTTPStatus_TriviaCodes(t *testing.T) {
	cases := []struct {
		code contextutils.ErrorCode
		want int
	}{
		{contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{contextutils.ErrorCodeQuestionNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeGenerationLimitReached, http.StatusTooManyRequests},
		{contextutils.ErrorCodeAIRequestFailed, http.StatusBadGateway},
		{contextutils.ErrorCodeAIResponseInvalid, http.StatusBadGateway},
		{contextutils.ErrorCodeAIProviderUnavailable, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeUnauthorized, http.StatusUnauthorized},
		{contextutils.ErrorCodeInvalidCredentials, http.StatusUnauthorized},
		{contextutils.ErrorCodeRecordExists, http.StatusConflict},
		{contextutils.ErrorCodeInternalError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.want, mapErrorCodeToHTTPStatus(tc.code))
		})
	}
}

func TestHandleAppError_AppError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleAppError(c, contextutils.ErrGenerationLimitReached)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, string(contextutils.ErrorCodeGenerationLimitReached), response["code"])
	assert.Contains(t, response, "retryable")
}

func TestHandleAppError_PlainError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleAppError(c, errors.New("something broke"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, string(contextutils.ErrorCodeInternalError), response["code"])
}

func TestHandleValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleValidationError(c, "trivia_id", "abc", "must be a positive integer")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Invalid trivia_id", response["message"])
	assert.Contains(t, response["details"], "abc")
}

func TestStandardizeHTTPError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	StandardizeHTTPError(c, http.StatusTooManyRequests, "Generation limit reached", "try again later")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, string(contextutils.ErrorCodeGenerationLimitReached), response["code"])
}
