// course_repository.go implements CourseRepository, providing database queries for
// courses within a tenant, including the instructor/organization invariant check.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// ErrInstructorOrgMismatch is returned when a course's instructor belongs to a
// different organization than the course itself.
var ErrInstructorOrgMismatch = errors.New("repositories: instructor belongs to a different organization")

// CourseRepository handles database operations for courses
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new CourseRepository
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, organization_id, instructor_id, title, description, requires_enrollment, requires_assessment,
		minimum_passing_score, max_assessment_attempts, max_students, total_required_items, cpe_credits,
		generate_certificate, published, archived_at, created_at, updated_at`

// CreateCourse creates a course inside the scope's organization. The
// instructor must belong to the course's organization unless the scope is a
// system owner acting on the organization's behalf.
func (r *CourseRepository) CreateCourse(ctx context.Context, scope tenant.Scope, course *models.Course) error {
	if err := scope.CheckWrite(course.OrganizationID); err != nil {
		return err
	}

	if !scope.SystemOwner() {
		var instructorOrg sql.NullString
		err := r.db.QueryRowContext(ctx,
			`SELECT organization_id FROM users WHERE id = $1 AND archived_at IS NULL`,
			course.InstructorID,
		).Scan(&instructorOrg)
		if err == sql.ErrNoRows {
			return ErrInstructorOrgMismatch
		}
		if err != nil {
			return fmt.Errorf("failed to look up instructor: %w", err)
		}
		if !instructorOrg.Valid || instructorOrg.String != course.OrganizationID {
			return ErrInstructorOrgMismatch
		}
	}

	course.ID = uuid.New().String()
	course.CreatedAt = time.Now()
	course.UpdatedAt = time.Now()

	query := `
		INSERT INTO courses (id, organization_id, instructor_id, title, description, requires_enrollment,
			requires_assessment, minimum_passing_score, max_assessment_attempts, max_students,
			total_required_items, cpe_credits, generate_certificate, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		course.ID,
		course.OrganizationID,
		course.InstructorID,
		course.Title,
		course.Description,
		course.RequiresEnrollment,
		course.RequiresAssessment,
		course.MinimumPassingScore,
		course.MaxAssessmentAttempts,
		course.MaxStudents,
		course.TotalRequiredItems,
		course.CPECredits,
		course.GenerateCertificate,
		course.Published,
		course.CreatedAt,
		course.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}

	return nil
}

// GetByID retrieves a course by ID if it is visible to the scope. Cross-tenant
// lookups return nil rather than an error so callers cannot distinguish
// "exists elsewhere" from "does not exist".
func (r *CourseRepository) GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 AND archived_at IS NULL`

	course := &models.Course{}
	err := r.db.GetContext(ctx, course, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	if !scope.CanRead(course.OrganizationID) {
		return nil, nil
	}

	return course, nil
}

// List retrieves courses visible to the scope, newest first. publishedOnly
// restricts to published courses (the student-facing view).
func (r *CourseRepository) List(ctx context.Context, scope tenant.Scope, publishedOnly bool, limit, offset int) ([]*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE archived_at IS NULL`
	args := make([]interface{}, 0, 3)

	clause, scopeArgs := scope.ReadFilter("organization_id", len(args)+1)
	query += clause
	args = append(args, scopeArgs...)

	if publishedOnly {
		query += ` AND published = TRUE`
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	courses := make([]*models.Course, 0)
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	return courses, nil
}

// CountCoursesInOrg returns the number of non-archived courses in an
// organization, used to enforce the max_courses quota.
func (r *CourseRepository) CountCoursesInOrg(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM courses WHERE organization_id = $1 AND archived_at IS NULL`
	if err := r.db.QueryRowContext(ctx, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return count, nil
}

// Archive soft-archives a course. Enrollments and audit entries that reference
// it are untouched.
func (r *CourseRepository) Archive(ctx context.Context, scope tenant.Scope, id string) error {
	course, err := r.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}
	if course == nil {
		return sql.ErrNoRows
	}
	if err := scope.CheckWrite(course.OrganizationID); err != nil {
		return err
	}

	query := `UPDATE courses SET archived_at = NOW(), updated_at = NOW() WHERE id = $1 AND archived_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to archive course: %w", err)
	}
	return nil
}
