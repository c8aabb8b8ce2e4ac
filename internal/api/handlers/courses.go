// courses.go implements course management and the catalog views. Unpublished
// courses are visible only to principals granted course-management or content
// editing; to everyone else they are indistinguishable from absent.
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

// CourseStore is the slice of the course repository the handlers use.
type CourseStore interface {
	CreateCourse(ctx context.Context, scope tenant.Scope, course *models.Course) error
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Course, error)
	List(ctx context.Context, scope tenant.Scope, publishedOnly bool, limit, offset int) ([]*models.Course, error)
	CountCoursesInOrg(ctx context.Context, orgID string) (int, error)
}

// CourseHandlers serves course management and catalog endpoints.
type CourseHandlers struct {
	courses  CourseStore
	orgs     OrganizationStore
	policies *auth.PolicyRef
	log      *slog.Logger
}

// NewCourseHandlers creates CourseHandlers.
func NewCourseHandlers(courses CourseStore, orgs OrganizationStore, policies *auth.PolicyRef, log *slog.Logger) *CourseHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &CourseHandlers{courses: courses, orgs: orgs, policies: policies, log: log}
}

type createCourseRequest struct {
	Title                 string  `json:"title" binding:"required"`
	Description           string  `json:"description"`
	InstructorID          string  `json:"instructor_id" binding:"required"`
	OrganizationID        string  `json:"organization_id"`
	RequiresEnrollment    bool    `json:"requires_enrollment"`
	RequiresAssessment    bool    `json:"requires_assessment"`
	MinimumPassingScore   float64 `json:"minimum_passing_score"`
	MaxAssessmentAttempts int     `json:"max_assessment_attempts"`
	MaxStudents           int     `json:"max_students"`
	TotalRequiredItems    int     `json:"total_required_items"`
	CPECredits            float64 `json:"cpe_credits"`
	GenerateCertificate   bool    `json:"generate_certificate"`
	Published             bool    `json:"published"`
}

// Create handles POST /api/v1/courses.
func (h *CourseHandlers) Create(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and instructor_id are required"})
		return
	}
	if req.MinimumPassingScore < 0 || req.MinimumPassingScore > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minimum_passing_score must be between 0 and 100"})
		return
	}
	if req.CPECredits < 0 || req.MaxStudents < 0 || req.MaxAssessmentAttempts < 0 || req.TotalRequiredItems < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Numeric course fields must not be negative"})
		return
	}

	orgID := req.OrganizationID
	if orgID == "" {
		orgID = p.OrganizationID
	}
	if orgID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_id is required"})
		return
	}

	org, err := h.orgs.GetByID(c.Request.Context(), scope, orgID)
	if err != nil {
		respondError(c, err)
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}
	if org.MaxCourses > 0 {
		count, err := h.courses.CountCoursesInOrg(c.Request.Context(), orgID)
		if err != nil {
			respondError(c, err)
			return
		}
		if count >= org.MaxCourses {
			c.JSON(http.StatusConflict, gin.H{"error": "Organization course quota reached"})
			return
		}
	}

	course := &models.Course{
		OrganizationID:        orgID,
		InstructorID:          req.InstructorID,
		Title:                 req.Title,
		Description:           req.Description,
		RequiresEnrollment:    req.RequiresEnrollment,
		RequiresAssessment:    req.RequiresAssessment,
		MinimumPassingScore:   req.MinimumPassingScore,
		MaxAssessmentAttempts: req.MaxAssessmentAttempts,
		MaxStudents:           req.MaxStudents,
		TotalRequiredItems:    req.TotalRequiredItems,
		CPECredits:            req.CPECredits,
		GenerateCertificate:   req.GenerateCertificate,
		Published:             req.Published,
	}
	if err := h.courses.CreateCourse(c.Request.Context(), scope, course); err != nil {
		respondError(c, err)
		return
	}

	h.log.Info("course created", "course_id", course.ID, "organization_id", orgID, "title", course.Title)
	c.JSON(http.StatusCreated, courseToResponse(course))
}

// List handles GET /api/v1/courses. Principals without content-management
// grants see the published catalog only.
func (h *CourseHandlers) List(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	courses, err := h.courses.List(c.Request.Context(), scope, !h.contentStaff(p), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]courseResponse, 0, len(courses))
	for _, course := range courses {
		out = append(out, courseToResponse(course))
	}
	c.JSON(http.StatusOK, gin.H{"courses": out, "limit": limit, "offset": offset})
}

// Get handles GET /api/v1/courses/:id.
func (h *CourseHandlers) Get(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	course, err := h.courses.GetByID(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if course == nil || (!course.Published && !h.contentStaff(p)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	c.JSON(http.StatusOK, courseToResponse(course))
}

// contentStaff reports whether the principal may see unpublished courses.
func (h *CourseHandlers) contentStaff(p auth.Principal) bool {
	table := h.policies.Table()
	return auth.Authorize(p, auth.ActionManageCourses, p.OrganizationID, table).Allowed ||
		auth.Authorize(p, auth.ActionEditOwnCourseContent, p.OrganizationID, table).Allowed
}
