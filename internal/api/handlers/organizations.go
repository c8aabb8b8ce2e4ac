// organizations.go implements tenant administration. All three routes sit
// behind RequireSystemOwner in the router; the repository re-checks the scope
// on writes so a miswired route still cannot create or deactivate a tenant.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// OrganizationStore is the slice of the organization repository the handlers use.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, scope tenant.Scope, org *models.Organization) error
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Organization, error)
	List(ctx context.Context, scope tenant.Scope) ([]*models.Organization, error)
	Deactivate(ctx context.Context, scope tenant.Scope, id string) error
}

// OrganizationHandlers serves tenant management endpoints.
type OrganizationHandlers struct {
	orgs OrganizationStore
	log  *slog.Logger
}

// NewOrganizationHandlers creates OrganizationHandlers.
func NewOrganizationHandlers(orgs OrganizationStore, log *slog.Logger) *OrganizationHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &OrganizationHandlers{orgs: orgs, log: log}
}

type createOrganizationRequest struct {
	Name         string   `json:"name" binding:"required"`
	DisplayName  string   `json:"display_name"`
	MaxUsers     int      `json:"max_users"`
	MaxCourses   int      `json:"max_courses"`
	MaxStorageMB int      `json:"max_storage_mb"`
	Features     []string `json:"features"`
}

// Create handles POST /api/v1/organizations.
func (h *OrganizationHandlers) Create(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Organization name is required"})
		return
	}
	if req.MaxUsers < 0 || req.MaxCourses < 0 || req.MaxStorageMB < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quotas must not be negative"})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}

	org := &models.Organization{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Active:       true,
		MaxUsers:     req.MaxUsers,
		MaxCourses:   req.MaxCourses,
		MaxStorageMB: req.MaxStorageMB,
		Features:     req.Features,
	}
	if err := h.orgs.CreateOrganization(c.Request.Context(), scope, org); err != nil {
		respondError(c, err)
		return
	}

	h.log.Info("organization created", "organization_id", org.ID, "name", org.Name)
	c.JSON(http.StatusCreated, organizationToResponse(org))
}

// List handles GET /api/v1/organizations.
func (h *OrganizationHandlers) List(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	orgs, err := h.orgs.List(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]organizationResponse, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, organizationToResponse(org))
	}
	c.JSON(http.StatusOK, gin.H{"organizations": out})
}

// Deactivate handles DELETE /api/v1/organizations/:id. The tenant is soft
// deactivated: users can no longer act, but audit entries and certificates
// stay retrievable for the regulatory retention window.
func (h *OrganizationHandlers) Deactivate(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.orgs.Deactivate(c.Request.Context(), scope, id); err != nil {
		respondError(c, err)
		return
	}

	h.log.Info("organization deactivated", "organization_id", id)
	c.Status(http.StatusNoContent)
}
