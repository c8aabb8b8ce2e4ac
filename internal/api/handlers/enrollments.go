// enrollments.go translates HTTP into enrollment state machine operations.
// The route-level gates admit both the self-service grant (enroll-self) and
// the staff grants; when the caller holds only the self-service grant, the
// handlers here narrow the operation to the caller's own enrollment.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/db/repositories"
	"github.com/edledger/edledger/internal/enrollment"
	"github.com/edledger/edledger/internal/tenant"
)

// EnrollmentStore is the read slice of the enrollment repository the handlers
// use. All writes go through the state machine.
type EnrollmentStore interface {
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Enrollment, error)
	List(ctx context.Context, scope tenant.Scope, filters repositories.EnrollmentFilters, limit, offset int) ([]*models.Enrollment, error)
}

// EnrollmentHandlers serves the enrollment lifecycle endpoints.
type EnrollmentHandlers struct {
	machine     *enrollment.Machine
	enrollments EnrollmentStore
	policies    *auth.PolicyRef
	log         *slog.Logger
}

// NewEnrollmentHandlers creates EnrollmentHandlers.
func NewEnrollmentHandlers(machine *enrollment.Machine, enrollments EnrollmentStore, policies *auth.PolicyRef, log *slog.Logger) *EnrollmentHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &EnrollmentHandlers{machine: machine, enrollments: enrollments, policies: policies, log: log}
}

func (h *EnrollmentHandlers) allowed(p auth.Principal, action auth.Action) bool {
	return auth.Authorize(p, action, p.OrganizationID, h.policies.Table()).Allowed
}

type enrollRequest struct {
	UserID string `json:"user_id"`
}

// Enroll handles POST /api/v1/courses/:id/enroll. An empty or self-referential
// user_id is a self-enrollment; enrolling someone else requires the
// manage-enrollments grant on top of the route gate.
func (h *EnrollmentHandlers) Enroll(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req enrollRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	courseID := c.Param("id")
	target := req.UserID
	self := target == "" || target == p.UserID
	if self {
		target = p.UserID
	}

	canManage := h.allowed(p, auth.ActionManageEnrollments)
	if !self && !canManage {
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "Insufficient permissions",
			"reason": "insufficient_tier",
		})
		return
	}

	// Staff enrollments may target unpublished courses; a student enrolling
	// themselves requires the course to be open.
	selfEnroll := self && !canManage
	e, err := h.machine.Enroll(c.Request.Context(), scope, target, courseID, selfEnroll)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, enrollmentToResponse(e))
}

// ownEnrollment loads the enrollment and enforces the "own resource" rule:
// principals holding none of staffActions may only touch their own enrollment.
func (h *EnrollmentHandlers) ownEnrollment(c *gin.Context, p auth.Principal, scope tenant.Scope, id string, staffActions ...auth.Action) bool {
	for _, action := range staffActions {
		if h.allowed(p, action) {
			return true
		}
	}

	e, err := h.enrollments.GetByID(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, err)
		return false
	}
	if e == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return false
	}
	if e.UserID != p.UserID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "Insufficient permissions",
			"reason": "insufficient_tier",
		})
		return false
	}
	return true
}

type progressRequest struct {
	CompletedItems int `json:"completed_items"`
	MinutesDelta   int `json:"minutes_delta"`
}

// Progress handles POST /api/v1/enrollments/:id/progress. The request reports
// what was done (items completed, minutes spent); the percent is derived by
// the state machine from the course's required-item total.
func (h *EnrollmentHandlers) Progress(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id := c.Param("id")
	if !h.ownEnrollment(c, p, scope, id, auth.ActionGrade, auth.ActionManageEnrollments) {
		return
	}

	e, err := h.machine.RecordProgress(c.Request.Context(), scope, id, req.CompletedItems, req.MinutesDelta)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollmentToResponse(e))
}

type assessmentRequest struct {
	Score float64 `json:"score"`
}

// SubmitAssessment handles POST /api/v1/enrollments/:id/assessment.
func (h *EnrollmentHandlers) SubmitAssessment(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Score < 0 || req.Score > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score must be between 0 and 100"})
		return
	}

	id := c.Param("id")
	if !h.ownEnrollment(c, p, scope, id, auth.ActionGrade, auth.ActionManageEnrollments) {
		return
	}

	passed, attempts, err := h.machine.SubmitAssessment(c.Request.Context(), scope, id, req.Score)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"passed": passed, "attempts": attempts})
}

// Complete handles POST /api/v1/enrollments/:id/complete. The response carries
// the issued certificate when the course awards one; repeating the call on a
// completed enrollment returns the same certificate.
func (h *EnrollmentHandlers) Complete(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	e, cert, err := h.machine.Complete(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"enrollment": enrollmentToResponse(e)}
	if cert != nil {
		resp["certificate"] = certificateToResponse(cert)
	}
	c.JSON(http.StatusOK, resp)
}

// Drop handles POST /api/v1/enrollments/:id/drop.
func (h *EnrollmentHandlers) Drop(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if !h.ownEnrollment(c, p, scope, id, auth.ActionManageEnrollments) {
		return
	}

	if err := h.machine.Drop(c.Request.Context(), scope, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Suspend handles POST /api/v1/enrollments/:id/suspend.
func (h *EnrollmentHandlers) Suspend(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	if err := h.machine.Suspend(c.Request.Context(), scope, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resume handles POST /api/v1/enrollments/:id/resume.
func (h *EnrollmentHandlers) Resume(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	if err := h.machine.Resume(c.Request.Context(), scope, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /api/v1/enrollments. Principals without view-org-analytics
// see their own enrollments regardless of the requested filter.
func (h *EnrollmentHandlers) List(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	filters := repositories.EnrollmentFilters{}
	if v := c.Query("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := c.Query("course_id"); v != "" {
		filters.CourseID = &v
	}
	if v := c.Query("status"); v != "" {
		status := models.EnrollmentStatus(v)
		switch status {
		case models.EnrollmentEnrolled, models.EnrollmentInProgress, models.EnrollmentCompleted,
			models.EnrollmentFailed, models.EnrollmentDropped, models.EnrollmentSuspended:
			filters.Status = &status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + v})
			return
		}
	}

	if !h.allowed(p, auth.ActionViewOrgAnalytics) {
		own := p.UserID
		filters.UserID = &own
	}

	limit, offset := pagination(c)
	enrollments, err := h.enrollments.List(c.Request.Context(), scope, filters, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]enrollmentResponse, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, enrollmentToResponse(e))
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": out, "limit": limit, "offset": offset})
}
