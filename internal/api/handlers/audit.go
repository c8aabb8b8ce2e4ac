// audit.go serves the compliance ledger query endpoint: filtered, paginated,
// read-only. There is no write surface here; the only path that appends
// entries is the ledger itself.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/db/repositories"
	"github.com/edledger/edledger/internal/tenant"
)

// AuditLog is the query slice of the audit repository.
type AuditLog interface {
	ListEntries(ctx context.Context, scope tenant.Scope, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditEntry, int, error)
}

// AuditHandlers serves ledger query endpoints.
type AuditHandlers struct {
	audits AuditLog
	log    *slog.Logger
}

// NewAuditHandlers creates AuditHandlers.
func NewAuditHandlers(audits AuditLog, log *slog.Logger) *AuditHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &AuditHandlers{audits: audits, log: log}
}

// List handles GET /api/v1/audit. Supported filters: user_id, class_id,
// action, start_date, end_date (RFC 3339).
func (h *AuditHandlers) List(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	filters := repositories.AuditFilters{}
	if v := c.Query("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := c.Query("class_id"); v != "" {
		filters.ClassID = &v
	}
	if v := c.Query("action"); v != "" {
		action := models.AuditAction(v)
		if !models.ValidAuditAction(action) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action: " + v})
			return
		}
		filters.Action = &action
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC 3339"})
			return
		}
		filters.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC 3339"})
			return
		}
		filters.EndDate = &t
	}
	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date precedes start_date"})
		return
	}

	limit, offset := pagination(c)
	entries, total, err := h.audits.ListEntries(c.Request.Context(), scope, filters, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditEntryToResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": out,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
