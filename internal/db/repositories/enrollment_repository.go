// enrollment_repository.go implements EnrollmentRepository. Lifecycle fields
// (status, progress, completed_at) are only ever written through the
// compare-and-set statements below, each of which names the states it may be
// applied from. The enrollment state machine is the sole caller of the
// mutating methods; handlers go through the machine, never through this type.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// EnrollmentRepository handles database operations for enrollments
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new EnrollmentRepository
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, organization_id, user_id, course_id, status, suspended_from, progress, completed_items,
		time_spent_minutes, overall_score, assessment_attempts, completed_at, archived_at, created_at, updated_at`

// CreateEnrollment inserts a new enrollment in the enrolled state. The unique
// (user_id, course_id) constraint rejects duplicates; callers check existence
// first for a friendly error, the constraint backstops races.
func (r *EnrollmentRepository) CreateEnrollment(ctx context.Context, scope tenant.Scope, e *models.Enrollment) error {
	if err := scope.CheckWrite(e.OrganizationID); err != nil {
		return err
	}

	e.ID = uuid.New().String()
	e.Status = models.EnrollmentEnrolled
	e.CreatedAt = time.Now()
	e.UpdatedAt = time.Now()

	query := `
		INSERT INTO enrollments (id, organization_id, user_id, course_id, status, progress, completed_items,
			time_spent_minutes, assessment_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, 0, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.OrganizationID,
		e.UserID,
		e.CourseID,
		e.Status,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	return nil
}

// GetByID retrieves an enrollment visible to the scope. Cross-tenant lookups
// return nil, indistinguishable from absence.
func (r *EnrollmentRepository) GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 AND archived_at IS NULL`

	e := &models.Enrollment{}
	err := r.db.GetContext(ctx, e, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	if !scope.CanRead(e.OrganizationID) {
		return nil, nil
	}

	return e, nil
}

// GetByUserAndCourse retrieves the enrollment for a (student, course) pair.
func (r *EnrollmentRepository) GetByUserAndCourse(ctx context.Context, scope tenant.Scope, userID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2 AND archived_at IS NULL`

	e := &models.Enrollment{}
	err := r.db.GetContext(ctx, e, query, userID, courseID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	if !scope.CanRead(e.OrganizationID) {
		return nil, nil
	}

	return e, nil
}

// EnrollmentFilters narrows List results.
type EnrollmentFilters struct {
	UserID   *string
	CourseID *string
	Status   *models.EnrollmentStatus
}

// List retrieves enrollments visible to the scope with optional filters.
func (r *EnrollmentRepository) List(ctx context.Context, scope tenant.Scope, filters EnrollmentFilters, limit, offset int) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE archived_at IS NULL`
	args := make([]interface{}, 0, 5)

	clause, scopeArgs := scope.ReadFilter("organization_id", len(args)+1)
	query += clause
	args = append(args, scopeArgs...)

	if filters.UserID != nil {
		query += fmt.Sprintf(` AND user_id = $%d`, len(args)+1)
		args = append(args, *filters.UserID)
	}
	if filters.CourseID != nil {
		query += fmt.Sprintf(` AND course_id = $%d`, len(args)+1)
		args = append(args, *filters.CourseID)
	}
	if filters.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, len(args)+1)
		args = append(args, *filters.Status)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	enrollments := make([]*models.Enrollment, 0)
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	return enrollments, nil
}

// CountActiveByCourse returns the number of seats taken in a course. Dropped
// and failed enrollments free their seat.
func (r *EnrollmentRepository) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM enrollments
		WHERE course_id = $1 AND archived_at IS NULL AND status NOT IN ('dropped', 'failed')
	`
	if err := r.db.QueryRowContext(ctx, query, courseID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return count, nil
}

// ApplyProgress applies a monotonic progress update in a single atomic
// statement. GREATEST conditions the write on progress never decreasing, so
// two concurrent reporters (say 40 and 60) converge on the maximum regardless
// of arrival order. The first content interaction also moves enrolled →
// in_progress. Returns the row as stored after the update, or nil if the
// enrollment was not in a state that accepts progress.
func (r *EnrollmentRepository) ApplyProgress(ctx context.Context, id string, progress, completedItems, minutesDelta int) (*models.Enrollment, error) {
	query := `
		UPDATE enrollments
		SET progress = GREATEST(progress, $2),
		    completed_items = GREATEST(completed_items, $3),
		    time_spent_minutes = time_spent_minutes + $4,
		    status = CASE WHEN status = 'enrolled' THEN 'in_progress' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('enrolled', 'in_progress') AND archived_at IS NULL
		RETURNING ` + enrollmentColumns

	e := &models.Enrollment{}
	err := r.db.GetContext(ctx, e, query, id, progress, completedItems, minutesDelta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply progress: %w", err)
	}

	return e, nil
}

// RecordAssessment stores the latest assessment score and increments the
// attempt counter. Returns the updated attempt count, or applied=false when
// the enrollment is not accepting assessments.
func (r *EnrollmentRepository) RecordAssessment(ctx context.Context, id string, score float64) (attempts int, applied bool, err error) {
	query := `
		UPDATE enrollments
		SET overall_score = $2, assessment_attempts = assessment_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ('enrolled', 'in_progress') AND archived_at IS NULL
		RETURNING assessment_attempts
	`

	err = r.db.QueryRowContext(ctx, query, id, score).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to record assessment: %w", err)
	}

	return attempts, true, nil
}

// MarkCompleted transitions an in-flight enrollment to completed, setting
// completed_at exactly once. The completed_at IS NULL condition makes the
// statement idempotent under concurrent invocation: exactly one caller
// observes applied=true.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, id string) (completedAt time.Time, applied bool, err error) {
	query := `
		UPDATE enrollments
		SET status = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('enrolled', 'in_progress') AND completed_at IS NULL AND archived_at IS NULL
		RETURNING completed_at
	`

	err = r.db.QueryRowContext(ctx, query, id).Scan(&completedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to mark completed: %w", err)
	}

	return completedAt, true, nil
}

// markTerminal applies a terminal status from the named source states.
func (r *EnrollmentRepository) markTerminal(ctx context.Context, id string, to models.EnrollmentStatus, from []string) (bool, error) {
	query := `
		UPDATE enrollments
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3) AND archived_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, to, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("failed to set status %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed transitions an in-flight enrollment to failed.
func (r *EnrollmentRepository) MarkFailed(ctx context.Context, id string) (bool, error) {
	return r.markTerminal(ctx, id, models.EnrollmentFailed, []string{"enrolled", "in_progress"})
}

// MarkDropped transitions a non-terminal enrollment to dropped.
func (r *EnrollmentRepository) MarkDropped(ctx context.Context, id string) (bool, error) {
	return r.markTerminal(ctx, id, models.EnrollmentDropped, []string{"enrolled", "in_progress", "suspended"})
}

// Suspend pauses a non-terminal enrollment, remembering the state to resume
// into.
func (r *EnrollmentRepository) Suspend(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE enrollments
		SET suspended_from = status, status = 'suspended', updated_at = NOW()
		WHERE id = $1 AND status IN ('enrolled', 'in_progress') AND archived_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to suspend enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Resume returns a suspended enrollment to the state it was suspended from.
func (r *EnrollmentRepository) Resume(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE enrollments
		SET status = suspended_from, suspended_from = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'suspended' AND suspended_from IS NOT NULL AND archived_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to resume enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Archive soft-archives an enrollment. Used instead of deletion once ledger
// entries reference the enrollment.
func (r *EnrollmentRepository) Archive(ctx context.Context, scope tenant.Scope, id string) error {
	e, err := r.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}
	if e == nil {
		return sql.ErrNoRows
	}
	if err := scope.CheckWrite(e.OrganizationID); err != nil {
		return err
	}

	query := `UPDATE enrollments SET archived_at = NOW(), updated_at = NOW() WHERE id = $1 AND archived_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to archive enrollment: %w", err)
	}
	return nil
}
