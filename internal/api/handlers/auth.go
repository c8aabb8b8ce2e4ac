// auth.go implements the login endpoint: password check against the stored
// bcrypt hash and issuance of a session token carrying identity claims only.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
)

// LoginStore is the slice of the user repository login reads through.
type LoginStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthHandlers serves the public authentication endpoints.
type AuthHandlers struct {
	users    LoginStore
	tokenTTL time.Duration
	log      *slog.Logger
}

// NewAuthHandlers creates AuthHandlers.
func NewAuthHandlers(users LoginStore, tokenTTL time.Duration, log *slog.Logger) *AuthHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandlers{users: users, tokenTTL: tokenTTL, log: log}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/login. The failure response is identical for an
// unknown email, a wrong password, and a deactivated account, so the endpoint
// cannot be used to probe which addresses exist.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.log.Error("login lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if user == nil || !user.Active || !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, h.tokenTTL)
	if err != nil {
		h.log.Error("token issuance failed", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.log.Info("user logged in", "user_id", user.ID, "tier", user.Tier)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.tokenTTL.Seconds()),
		"user":       userToResponse(user),
	})
}
