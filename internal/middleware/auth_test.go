package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuthRouter(sessionValues map[string]interface{}) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))

	// Seeds the session before the protected route runs
	router.GET("/seed", func(c *gin.Context) {
		session := sessions.Default(c)
		for k, v := range sessionValues {
			session.Set(k, v)
		}
		if err := session.Save(); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	protected := router.Group("/protected")
	protected.Use(RequireAuth())
	protected.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetInt(UserIDKey),
			"username": c.GetString(UsernameKey),
		})
	})
	return router
}

func TestRequireAuth_NoSession(t *testing.T) {
	router := setupAuthRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
}

func TestRequireAuth_ValidSession(t *testing.T) {
	router := setupAuthRouter(map[string]interface{}{
		UserIDKey:   42,
		UsernameKey: "testuser",
	})

	// Seed the session and capture the cookie
	seedW := httptest.NewRecorder()
	seedReq := httptest.NewRequest(http.MethodGet, "/seed", nil)
	router.ServeHTTP(seedW, seedReq)
	require.Equal(t, http.StatusOK, seedW.Code)
	cookies := seedW.Result().Cookies()
	require.NotEmpty(t, cookies)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
	assert.Contains(t, w.Body.String(), `"username":"testuser"`)
}

func TestRequireAuth_MissingUsername(t *testing.T) {
	router := setupAuthRouter(map[string]interface{}{
		UserIDKey: 42,
	})

	seedW := httptest.NewRecorder()
	seedReq := httptest.NewRequest(http.MethodGet, "/seed", nil)
	router.ServeHTTP(seedW, seedReq)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range seedW.Result().Cookies() {
		req.AddCookie(c)
	}
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_FloatUserID(t *testing.T) {
	router := setupAuthRouter(map[string]interface{}{
		UserIDKey:   float64(7),
		UsernameKey: "floatuser",
	})

	seedW := httptest.NewRecorder()
	seedReq := httptest.NewRequest(http.MethodGet, "/seed", nil)
	router.ServeHTTP(seedW, seedReq)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range seedW.Result().Cookies() {
		req.AddCookie(c)
	}
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":7`)
}
