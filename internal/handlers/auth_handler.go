package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"triviaapp/internal/config"
	"triviaapp/internal/middleware"
	"triviaapp/internal/observability"
	"triviaapp/internal/services"
	contextutils "triviaapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// LoginRequest is the payload for login requests
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignupRequest is the payload for signup requests
type SignupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	userService services.UserServiceInterface
	config      *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		config:      cfg,
		logger:      logger,
	}
}

// Login handles user login requests
func (h *AuthHandler) Login(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req LoginRequest
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

	span.SetAttributes(
		attribute.String("auth.username", req.Username),
		attribute.Bool("auth.password_provided", req.Password != ""),
	)

	// Authenticate user against database
	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Authentication failed for user", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	if user == nil {
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.username", user.Username),
	)

	// Update last active
	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		// Log error but don't fail login
		h.logger.Warn(c.Request.Context(), "Failed to update last active for user", map[string]interface{}{"user_id": user.ID, "error": err.Error()})
	}

	// Create session
	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)

	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session", err, map[string]interface{}{"error": err.Error()})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"user":    user,
	})
}

// Logout handles user logout requests
func (h *AuthHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	// Get user info before clearing session for tracing
	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)
	username := session.Get(middleware.UsernameKey)

	if userID != nil {
		if id, ok := userID.(int); ok {
			span.SetAttributes(attribute.Int("user.id", id))
		}
	}
	if username != nil {
		if name, ok := username.(string); ok {
			span.SetAttributes(attribute.String("user.username", name))
		}
	}

	session.Clear()

	if err := session.Save(); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logout successful",
	})
}

// Status returns the current authentication status
func (h *AuthHandler) Status(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "status")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)

	if userID == nil {
		span.SetAttributes(attribute.Bool("auth.authenticated", false))
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"user":          nil,
		})
		return
	}

	id, ok := userID.(int)
	if !ok {
		span.SetAttributes(attribute.Bool("auth.authenticated", false))
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"user":          nil,
		})
		return
	}

	span.SetAttributes(
		attribute.Bool("auth.authenticated", true),
		attribute.Int("user.id", id),
	)

	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error getting user by ID", err, map[string]interface{}{"user_id": id})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	if user == nil {
		// User not found, clear session
		session.Clear()
		if err := session.Save(); err != nil {
			h.logger.Error(c.Request.Context(), "Error saving session", err, map[string]interface{}{"error": err.Error()})
		}
		span.SetAttributes(attribute.Bool("auth.user_found", false))
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"user":          nil,
		})
		return
	}

	span.SetAttributes(
		attribute.Bool("auth.user_found", true),
		attribute.String("user.username", user.Username),
	)

	// Update last active timestamp
	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		h.logger.Error(c.Request.Context(), "Error updating last active", err, map[string]interface{}{"user_id": user.ID})
		// Don't fail the request for this error
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          user,
	})
}

// Check is a lightweight auth-check endpoint intended for reverse proxy auth_request.
// It requires authentication via middleware and returns 204 when authenticated.
// Unauthenticated requests are rejected by the RequireAuth middleware with 401.
func (h *AuthHandler) Check(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Signup handles user registration requests
func (h *AuthHandler) Signup(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "signup")
	defer observability.FinishSpan(span, nil)

	var req SignupRequest
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

	span.SetAttributes(
		attribute.String("signup.username", req.Username),
		attribute.Bool("signup.password_provided", req.Password != ""),
		attribute.Bool("signup.email_provided", req.Email != ""),
	)

	// Validate username format (3-50 characters, alphanumeric + underscore)
	if len(req.Username) < 3 || len(req.Username) > 50 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}
	if !usernameRegex.MatchString(req.Username) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	// Validate password (minimum 8 characters)
	if len(req.Password) < 8 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if !contextutils.IsValidEmail(req.Email) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	// Normalize email to lowercase
	email := strings.ToLower(req.Email)

	// When signups are disabled, allowlisted emails and domains may still register
	if h.config != nil && !h.config.IsSignupAllowed(email) {
		span.SetAttributes(attribute.Bool("auth.signups_disabled", true))
		HandleAppError(c, contextutils.ErrForbidden)
		return
	}

	h.logger.Info(c.Request.Context(), "Attempting signup for user", map[string]interface{}{"username": req.Username, "email": email})

	// Check if username already exists
	existingUser, err := h.userService.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking username uniqueness", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}
	if existingUser != nil {
		span.SetAttributes(attribute.Bool("signup.username_exists", true))
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	// Check if email already exists
	existingUserByEmail, err := h.userService.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking email uniqueness", err, map[string]interface{}{"email": email})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}
	if existingUserByEmail != nil {
		span.SetAttributes(attribute.Bool("signup.email_exists", true))
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	user, err := h.userService.CreateUserWithPassword(c.Request.Context(), req.Username, email, req.Password)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating user", err, map[string]interface{}{"username": req.Username, "email": email})
		HandleAppError(c, contextutils.WrapError(err, "failed to create user account"))
		return
	}

	// Log the new user in immediately
	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)
	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session after signup", err, map[string]interface{}{"user_id": user.ID})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	span.SetAttributes(attribute.Int("user.id", user.ID))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Signup successful",
		"user":    user,
	})
}

// SignupStatus reports whether signups are currently enabled
func (h *AuthHandler) SignupStatus(c *gin.Context) {
	disabled := h.config != nil && h.config.IsSignupDisabled()
	c.JSON(http.StatusOK, gin.H{
		"signups_disabled": disabled,
	})
}
