package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"triviaapp/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserIDFromSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	store := cookie.NewStore([]byte("test-session-secret"))
	router.Use(sessions.Sessions("test_session", store))

	router.GET("/seed", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(middleware.UserIDKey, 42)
		if err := session.Save(); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	router.GET("/whoami", func(c *gin.Context) {
		id, ok := GetUserIDFromSession(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok})
	})

	t.Run("no session", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/whoami", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id": 0, "ok": false}`, w.Body.String())
	})

	t.Run("with session", func(t *testing.T) {
		seedReq, _ := http.NewRequest("GET", "/seed", nil)
		seedW := httptest.NewRecorder()
		router.ServeHTTP(seedW, seedReq)
		require.Equal(t, http.StatusOK, seedW.Code)

		req, _ := http.NewRequest("GET", "/whoami", nil)
		for _, c := range seedW.Result().Cookies() {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id": 42, "ok": true}`, w.Body.String())
	})
}
