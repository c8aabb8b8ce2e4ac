// users.go implements user management inside a tenant: account creation with
// tier assignment and quota enforcement, plus listing. Passwords are hashed
// here; the plaintext never reaches the repository layer.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// UserStore is the slice of the user repository the handlers use.
type UserStore interface {
	CreateUser(ctx context.Context, scope tenant.Scope, user *models.User) error
	ListUsers(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*models.User, error)
	CountUsersInOrg(ctx context.Context, orgID string) (int, error)
}

// UserHandlers serves user management endpoints.
type UserHandlers struct {
	users UserStore
	orgs  OrganizationStore
	log   *slog.Logger
}

// NewUserHandlers creates UserHandlers.
func NewUserHandlers(users UserStore, orgs OrganizationStore, log *slog.Logger) *UserHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &UserHandlers{users: users, orgs: orgs, log: log}
}

type createUserRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Name           string `json:"name" binding:"required"`
	Password       string `json:"password" binding:"required,min=8"`
	Tier           string `json:"tier" binding:"required"`
	OrganizationID string `json:"organization_id"`
}

// Create handles POST /api/v1/users. Subscriber admins create users inside
// their own organization; system owners may target any organization and are
// the only callers allowed to mint further system owners.
func (h *UserHandlers) Create(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email, name, tier, and a password of at least 8 characters are required"})
		return
	}

	tier := models.Tier(req.Tier)
	if !models.ValidTier(tier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tier: " + req.Tier})
		return
	}
	if tier == models.TierSystemOwner && !p.IsSystemOwner {
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "Insufficient permissions",
			"reason": "insufficient_tier",
		})
		return
	}

	orgID := req.OrganizationID
	if orgID == "" {
		orgID = p.OrganizationID
	}
	if orgID == "" && tier != models.TierSystemOwner {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id is required"})
		return
	}

	var orgPtr *string
	if orgID != "" {
		org, err := h.orgs.GetByID(c.Request.Context(), scope, orgID)
		if err != nil {
			respondError(c, err)
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}
		if !org.Active {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Organization is deactivated"})
			return
		}
		if org.MaxUsers > 0 {
			count, err := h.users.CountUsersInOrg(c.Request.Context(), orgID)
			if err != nil {
				respondError(c, err)
				return
			}
			if count >= org.MaxUsers {
				c.JSON(http.StatusConflict, gin.H{"error": "Organization user quota reached"})
				return
			}
		}
		orgPtr = &orgID
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	user := &models.User{
		OrganizationID: orgPtr,
		Email:          req.Email,
		Name:           req.Name,
		PasswordHash:   hash,
		Tier:           tier,
		Active:         true,
	}
	if err := h.users.CreateUser(c.Request.Context(), scope, user); err != nil {
		respondError(c, err)
		return
	}

	h.log.Info("user created", "user_id", user.ID, "tier", user.Tier, "organization_id", orgID)
	c.JSON(http.StatusCreated, userToResponse(user))
}

// List handles GET /api/v1/users.
func (h *UserHandlers) List(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	users, err := h.users.ListUsers(c.Request.Context(), scope, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToResponse(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "limit": limit, "offset": offset})
}
