package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"triviaapp/internal/config"
	"triviaapp/internal/models"
	"triviaapp/internal/observability"
	contextutils "triviaapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUserService implements services.UserServiceInterface with overridable
// function fields. Unset methods return zero values.
type fakeUserService struct {
	createFn          func(ctx context.Context, username, email, password string) (*models.User, error)
	getByIDFn         func(ctx context.Context, id int) (*models.User, error)
	getByUsernameFn   func(ctx context.Context, username string) (*models.User, error)
	getByEmailFn      func(ctx context.Context, email string) (*models.User, error)
	authenticateFn    func(ctx context.Context, username, password string) (*models.User, error)
	updateLastActives int
}

func (f *fakeUserService) CreateUserWithPassword(ctx context.Context, username, email, password string) (*models.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, username, email, password)
	}
	return nil, contextutils.ErrInternalError
}

func (f *fakeUserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if f.getByUsernameFn != nil {
		return f.getByUsernameFn(ctx, username)
	}
	return nil, nil
}

func (f *fakeUserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return nil, nil
}

func (f *fakeUserService) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	if f.authenticateFn != nil {
		return f.authenticateFn(ctx, username, password)
	}
	return nil, contextutils.ErrInvalidCredentials
}

func (f *fakeUserService) UpdateUserPassword(_ context.Context, _ int, _ string) error { return nil }

func (f *fakeUserService) UpdateLastActive(_ context.Context, _ int) error {
	f.updateLastActives++
	return nil
}

func (f *fakeUserService) GetAllUsers(_ context.Context) ([]models.User, error) { return nil, nil }

func (f *fakeUserService) DeleteUser(_ context.Context, _ int) error { return nil }

func (f *fakeUserService) EnsureAdminUserExists(_ context.Context, _, _ string) error { return nil }

func (f *fakeUserService) GetDB() *sql.DB { return nil }

func testUser(id int, username string) *models.User {
	return &models.User{
		ID:        id,
		Username:  username,
		Email:     sql.NullString{String: username + "@example.com", Valid: true},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func newAuthTestRouter(userService *fakeUserService, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	handler := NewAuthHandler(userService, cfg, logger)

	router := gin.New()
	store := cookie.NewStore([]byte("test-session-secret"))
	router.Use(sessions.Sessions("test_session", store))

	router.POST("/v1/auth/login", handler.Login)
	router.POST("/v1/auth/logout", handler.Logout)
	router.GET("/v1/auth/status", handler.Status)
	router.POST("/v1/auth/signup", handler.Signup)
	router.GET("/v1/auth/signup/status", handler.SignupStatus)

	return router
}

func TestLogin_Success(t *testing.T) {
	userService := &fakeUserService{
		authenticateFn: func(_ context.Context, username, password string) (*models.User, error) {
			assert.Equal(t, "alice", username)
			assert.Equal(t, "correct-horse", password)
			return testUser(1, "alice"), nil
		},
	}

	router := newAuthTestRouter(userService, &config.Config{})

	body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "correct-horse"})
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Result().Cookies(), "login should set a session cookie")
	assert.Equal(t, 1, userService.updateLastActives)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])

	user, ok := response["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password_hash")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	userService := &fakeUserService{
		authenticateFn: func(_ context.Context, _, _ string) (*models.User, error) {
			return nil, contextutils.ErrInvalidCredentials
		},
	}

	router := newAuthTestRouter(userService, &config.Config{})

	body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "wrong"})
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, string(contextutils.ErrorCodeInvalidCredentials), response["code"])
}

func TestLogin_MissingFields(t *testing.T) {
	router := newAuthTestRouter(&fakeUserService{}, &config.Config{})

	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBufferString(`{"username": "alice"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginLogoutStatus_Flow(t *testing.T) {
	user := testUser(5, "bob")
	userService := &fakeUserService{
		authenticateFn: func(_ context.Context, _, _ string) (*models.User, error) { return user, nil },
		getByIDFn: func(_ context.Context, id int) (*models.User, error) {
			if id == 5 {
				return user, nil
			}
			return nil, nil
		},
	}

	router := newAuthTestRouter(userService, &config.Config{})

	// Login
	body, _ := json.Marshal(LoginRequest{Username: "bob", Password: "some-password"})
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Status with the session cookie
	req, _ = http.NewRequest("GET", "/v1/auth/status", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["authenticated"])

	// Logout
	req, _ = http.NewRequest("POST", "/v1/auth/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	loggedOutCookies := w.Result().Cookies()

	// Status after logout reports unauthenticated
	req, _ = http.NewRequest("GET", "/v1/auth/status", nil)
	for _, c := range loggedOutCookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, false, status["authenticated"])
}

func TestStatus_NoSession(t *testing.T) {
	router := newAuthTestRouter(&fakeUserService{}, &config.Config{})

	req, _ := http.NewRequest("GET", "/v1/auth/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, false, status["authenticated"])
	assert.Nil(t, status["user"])
}

func TestSignup_Success(t *testing.T) {
	userService := &fakeUserService{
		createFn: func(_ context.Context, username, email, password string) (*models.User, error) {
			assert.Equal(t, "new_user", username)
			assert.Equal(t, "new@example.com", email)
			assert.Equal(t, "longenough", password)
			return testUser(9, username), nil
		},
	}

	router := newAuthTestRouter(userService, &config.Config{})

	body, _ := json.Marshal(SignupRequest{Username: "new_user", Email: "New@Example.com", Password: "longenough"})
	req, _ := http.NewRequest("POST", "/v1/auth/signup", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Result().Cookies(), "signup should log the user in")
}

func TestSignup_Validation(t *testing.T) {
	router := newAuthTestRouter(&fakeUserService{}, &config.Config{})

	cases := []struct {
		name string
		req  SignupRequest
	}{
		{"short username", SignupRequest{Username: "ab", Email: "a@example.com", Password: "longenough"}},
		{"invalid username characters", SignupRequest{Username: "bad user!", Email: "a@example.com", Password: "longenough"}},
		{"short password", SignupRequest{Username: "gooduser", Email: "a@example.com", Password: "short"}},
		{"invalid email", SignupRequest{Username: "gooduser", Email: "not-an-email", Password: "longenough"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.req)
			req, _ := http.NewRequest("POST", "/v1/auth/signup", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSignup_UsernameTaken(t *testing.T) {
	userService := &fakeUserService{
		getByUsernameFn: func(_ context.Context, username string) (*models.User, error) {
			return testUser(3, username), nil
		},
	}

	router := newAuthTestRouter(userService, &config.Config{})

	body, _ := json.Marshal(SignupRequest{Username: "taken", Email: "a@example.com", Password: "longenough"})
	req, _ := http.NewRequest("POST", "/v1/auth/signup", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignup_Disabled(t *testing.T) {
	cfg := &config.Config{
		System: &config.SystemConfig{
			Auth: config.AuthConfig{SignupsDisabled: true},
		},
	}

	router := newAuthTestRouter(&fakeUserService{}, cfg)

	body, _ := json.Marshal(SignupRequest{Username: "gooduser", Email: "a@example.com", Password: "longenough"})
	req, _ := http.NewRequest("POST", "/v1/auth/signup", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSignup_DisabledWithAllowlist(t *testing.T) {
	cfg := &config.Config{
		System: &config.SystemConfig{
			Auth: config.AuthConfig{
				SignupsDisabled: true,
				AllowedDomains:  []string{"example.org"},
			},
		},
	}

	userService := &fakeUserService{
		createFn: func(_ context.Context, username, _, _ string) (*models.User, error) {
			return testUser(11, username), nil
		},
	}
	router := newAuthTestRouter(userService, cfg)

	t.Run("allowlisted domain may register", func(t *testing.T) {
		body, _ := json.Marshal(SignupRequest{Username: "gooduser", Email: "a@example.org", Password: "longenough"})
		req, _ := http.NewRequest("POST", "/v1/auth/signup", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("other domains are rejected", func(t *testing.T) {
		body, _ := json.Marshal(SignupRequest{Username: "gooduser", Email: "a@example.com", Password: "longenough"})
		req, _ := http.NewRequest("POST", "/v1/auth/signup", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestSignupStatus(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		router := newAuthTestRouter(&fakeUserService{}, &config.Config{})

		req, _ := http.NewRequest("GET", "/v1/auth/signup/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"signups_disabled": false}`, w.Body.String())
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := &config.Config{
			System: &config.SystemConfig{
				Auth: config.AuthConfig{SignupsDisabled: true},
			},
		}
		router := newAuthTestRouter(&fakeUserService{}, cfg)

		req, _ := http.NewRequest("GET", "/v1/auth/signup/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"signups_disabled": true}`, w.Body.String())
	})
}
