// errors.go maps domain errors onto HTTP responses. Handlers call respondError
// instead of switching on errors themselves so the mapping stays in one place:
// not-found style errors are 404, conflicts with existing state are 409,
// transitions the lifecycle does not admit are 422, and cross-tenant writes
// surface as the same 403 shape the authorization middleware produces.
package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/db/repositories"
	"github.com/edledger/edledger/internal/enrollment"
	"github.com/edledger/edledger/internal/ledger"
	"github.com/edledger/edledger/internal/tenant"
)

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tenant.ErrCrossTenantWrite):
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "Insufficient permissions",
			"reason": "cross_tenant_access",
		})

	case errors.Is(err, enrollment.ErrCourseNotFound),
		errors.Is(err, enrollment.ErrEnrollmentNotFound),
		errors.Is(err, ledger.ErrCertificateNotFound),
		errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})

	case errors.Is(err, enrollment.ErrAlreadyEnrolled),
		errors.Is(err, enrollment.ErrEnrollmentFull),
		errors.Is(err, ledger.ErrDuplicateCertificate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, enrollment.ErrInvalidTransition),
		errors.Is(err, enrollment.ErrAssessmentNotPassed),
		errors.Is(err, enrollment.ErrSelfEnrollmentClosed),
		errors.Is(err, ledger.ErrCertificateNotActive),
		errors.Is(err, repositories.ErrInstructorOrgMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})

	case errors.Is(err, enrollment.ErrInvalidProgress),
		errors.Is(err, ledger.ErrInvalidEntry):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
