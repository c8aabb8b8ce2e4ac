// Package enrollment implements the enrollment lifecycle state machine:
//
//	enrolled → in_progress → {completed | failed | dropped}
//
// plus an orthogonal suspended state reachable from any non-terminal state and
// resuming to the state it was entered from. Every status, progress, and
// completion write funnels through the operations here; the conditional
// UPDATE statements in the repository carry the actual state predicates, so a
// transition that lost a race reports applied=false instead of clobbering the
// winner.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/ledger"
	"github.com/edledger/edledger/internal/telemetry"
	"github.com/edledger/edledger/internal/tenant"
)

var (
	// ErrCourseNotFound is returned when the course does not exist or is not
	// visible to the caller's scope.
	ErrCourseNotFound = errors.New("enrollment: course not found")
	// ErrEnrollmentNotFound is returned when the enrollment does not exist or
	// is not visible to the caller's scope.
	ErrEnrollmentNotFound = errors.New("enrollment: enrollment not found")
	// ErrAlreadyEnrolled is returned when the student already has an
	// enrollment for the course.
	ErrAlreadyEnrolled = errors.New("enrollment: student is already enrolled in this course")
	// ErrEnrollmentFull is returned when the course has no free seats.
	ErrEnrollmentFull = errors.New("enrollment: course is at capacity")
	// ErrSelfEnrollmentClosed is returned when a student self-enrolls in an
	// unpublished course. Staff can still enroll students directly.
	ErrSelfEnrollmentClosed = errors.New("enrollment: course is not open for self-enrollment")
	// ErrAssessmentNotPassed is returned when completing a course that
	// requires an assessment without a passing score on record.
	ErrAssessmentNotPassed = errors.New("enrollment: required assessment has not been passed")
	// ErrInvalidTransition is returned when the enrollment's current state
	// does not admit the requested transition.
	ErrInvalidTransition = errors.New("enrollment: transition not allowed from current state")
	// ErrInvalidProgress is returned when a progress report carries a negative
	// completed-item count or time delta.
	ErrInvalidProgress = errors.New("enrollment: completed items and minutes must not be negative")
)

// EnrollmentStore is the repository surface the machine drives. Each mutating
// method embeds its own state predicate and reports applied=false (or a nil
// row) when the enrollment was not in an accepting state.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, scope tenant.Scope, e *models.Enrollment) error
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Enrollment, error)
	GetByUserAndCourse(ctx context.Context, scope tenant.Scope, userID, courseID string) (*models.Enrollment, error)
	CountActiveByCourse(ctx context.Context, courseID string) (int, error)
	ApplyProgress(ctx context.Context, id string, progress, completedItems, minutesDelta int) (*models.Enrollment, error)
	RecordAssessment(ctx context.Context, id string, score float64) (int, bool, error)
	MarkCompleted(ctx context.Context, id string) (time.Time, bool, error)
	MarkFailed(ctx context.Context, id string) (bool, error)
	MarkDropped(ctx context.Context, id string) (bool, error)
	Suspend(ctx context.Context, id string) (bool, error)
	Resume(ctx context.Context, id string) (bool, error)
}

// CourseStore resolves the course an enrollment belongs to.
type CourseStore interface {
	GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Course, error)
}

// Recorder is the slice of the compliance ledger the machine emits to.
type Recorder interface {
	RecordAudit(ctx context.Context, entry *models.AuditEntry) error
	IssueCertificate(ctx context.Context, scope tenant.Scope, req ledger.IssueRequest) (*models.Certificate, error)
	ActiveCertificate(ctx context.Context, userID, classID string) (*models.Certificate, error)
}

// Machine coordinates enrollment lifecycle transitions and their ledger
// side effects.
type Machine struct {
	enrollments EnrollmentStore
	courses     CourseStore
	recorder    Recorder
	log         *slog.Logger
}

// NewMachine creates a Machine.
func NewMachine(enrollments EnrollmentStore, courses CourseStore, recorder Recorder, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{enrollments: enrollments, courses: courses, recorder: recorder, log: log}
}

func transition(from, to models.EnrollmentStatus) {
	telemetry.EnrollmentTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// Enroll creates an enrollment in the enrolled state. selfEnroll marks the
// student enrolling themselves, which additionally requires the course to be
// published; staff enrolling on a student's behalf can target unpublished
// courses. Capacity is checked against seats currently held (dropped and
// failed enrollments free theirs).
func (m *Machine) Enroll(ctx context.Context, scope tenant.Scope, userID, courseID string, selfEnroll bool) (*models.Enrollment, error) {
	course, err := m.courses.GetByID(ctx, scope, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	if selfEnroll && !course.Published {
		return nil, ErrSelfEnrollmentClosed
	}

	existing, err := m.enrollments.GetByUserAndCourse(ctx, scope, userID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyEnrolled
	}

	if course.MaxStudents > 0 {
		taken, err := m.enrollments.CountActiveByCourse(ctx, courseID)
		if err != nil {
			return nil, err
		}
		if taken >= course.MaxStudents {
			return nil, ErrEnrollmentFull
		}
	}

	e := &models.Enrollment{
		OrganizationID: course.OrganizationID,
		UserID:         userID,
		CourseID:       courseID,
	}
	if err := m.enrollments.CreateEnrollment(ctx, scope, e); err != nil {
		return nil, err
	}
	transition("", models.EnrollmentEnrolled)
	m.log.Info("student enrolled", "enrollment_id", e.ID, "user_id", userID, "course_id", courseID)

	if err := m.recorder.RecordAudit(ctx, &models.AuditEntry{
		OrganizationID: course.OrganizationID,
		UserID:         userID,
		ClassID:        courseID,
		Action:         models.AuditEnrollment,
	}); err != nil {
		return nil, fmt.Errorf("enrollment created but ledger entry failed: %w", err)
	}

	return e, nil
}

// RecordProgress applies a monotonic progress report. The stored percent is
// derived here from the completed-item count against the course's required
// total, never taken from the caller, so an enrollment can only reach 100%
// through the items actually completed. The repository's GREATEST update
// guarantees two concurrent reports converge on the maximum; the first report
// also moves enrolled → in_progress.
func (m *Machine) RecordProgress(ctx context.Context, scope tenant.Scope, id string, completedItems, minutesDelta int) (*models.Enrollment, error) {
	if completedItems < 0 || minutesDelta < 0 {
		return nil, ErrInvalidProgress
	}

	before, err := m.enrollments.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, ErrEnrollmentNotFound
	}

	course, err := m.courses.GetByID(ctx, scope, before.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	// A course with no tracked items is fully progressed by its first report.
	progress := 100
	if course.TotalRequiredItems > 0 {
		if completedItems > course.TotalRequiredItems {
			completedItems = course.TotalRequiredItems
		}
		progress = completedItems * 100 / course.TotalRequiredItems
	}

	updated, err := m.enrollments.ApplyProgress(ctx, id, progress, completedItems, minutesDelta)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrInvalidTransition
	}

	if before.Status == models.EnrollmentEnrolled && updated.Status == models.EnrollmentInProgress {
		transition(models.EnrollmentEnrolled, models.EnrollmentInProgress)
	}

	return updated, nil
}

// SubmitAssessment records an assessment attempt. When the score fails and the
// attempt limit is exhausted the enrollment transitions to failed.
func (m *Machine) SubmitAssessment(ctx context.Context, scope tenant.Scope, id string, score float64) (passed bool, attempts int, err error) {
	e, err := m.enrollments.GetByID(ctx, scope, id)
	if err != nil {
		return false, 0, err
	}
	if e == nil {
		return false, 0, ErrEnrollmentNotFound
	}

	course, err := m.courses.GetByID(ctx, scope, e.CourseID)
	if err != nil {
		return false, 0, err
	}
	if course == nil {
		return false, 0, ErrCourseNotFound
	}

	attempts, applied, err := m.enrollments.RecordAssessment(ctx, id, score)
	if err != nil {
		return false, 0, err
	}
	if !applied {
		return false, 0, ErrInvalidTransition
	}

	passed = score >= course.MinimumPassingScore
	if !passed && course.MaxAssessmentAttempts > 0 && attempts >= course.MaxAssessmentAttempts {
		failed, err := m.enrollments.MarkFailed(ctx, id)
		if err != nil {
			return false, attempts, err
		}
		if failed {
			transition(e.Status, models.EnrollmentFailed)
			m.log.Info("enrollment failed, attempts exhausted",
				"enrollment_id", id, "attempts", attempts, "score", score)
		}
	}

	return passed, attempts, nil
}

// Complete transitions an enrollment to completed, appends the completion
// ledger entry, and issues a certificate when the course awards one.
// Completion requires full progress and, when the course demands it, a
// passing assessment score. The operation is idempotent: repeating it on a
// completed enrollment returns the existing state and certificate without
// writing anything.
func (m *Machine) Complete(ctx context.Context, scope tenant.Scope, id string) (*models.Enrollment, *models.Certificate, error) {
	e, err := m.enrollments.GetByID(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		return nil, nil, ErrEnrollmentNotFound
	}

	if e.Status == models.EnrollmentCompleted {
		cert, err := m.recorder.ActiveCertificate(ctx, e.UserID, e.CourseID)
		if err != nil {
			return nil, nil, err
		}
		return e, cert, nil
	}
	if e.Status.Terminal() || e.Status == models.EnrollmentSuspended {
		return nil, nil, ErrInvalidTransition
	}

	course, err := m.courses.GetByID(ctx, scope, e.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if course == nil {
		return nil, nil, ErrCourseNotFound
	}

	if e.Progress < 100 {
		return nil, nil, fmt.Errorf("%w: progress is %d%%", ErrInvalidTransition, e.Progress)
	}
	if course.RequiresAssessment {
		if e.OverallScore == nil || *e.OverallScore < course.MinimumPassingScore {
			return nil, nil, ErrAssessmentNotPassed
		}
	}

	fromStatus := e.Status
	completedAt, applied, err := m.enrollments.MarkCompleted(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !applied {
		// Lost the race to a concurrent completion: re-read and fall back to
		// the idempotent path.
		current, err := m.enrollments.GetByID(ctx, scope, id)
		if err != nil {
			return nil, nil, err
		}
		if current == nil || current.Status != models.EnrollmentCompleted {
			return nil, nil, ErrInvalidTransition
		}
		cert, err := m.recorder.ActiveCertificate(ctx, e.UserID, e.CourseID)
		if err != nil {
			return nil, nil, err
		}
		return current, cert, nil
	}

	transition(fromStatus, models.EnrollmentCompleted)
	e.Status = models.EnrollmentCompleted
	e.CompletedAt = &completedAt
	m.log.Info("enrollment completed",
		"enrollment_id", id, "user_id", e.UserID, "course_id", e.CourseID)

	if err := m.recorder.RecordAudit(ctx, &models.AuditEntry{
		OrganizationID:   e.OrganizationID,
		UserID:           e.UserID,
		ClassID:          e.CourseID,
		Action:           models.AuditCompletion,
		CPECreditsEarned: course.CPECredits,
		CompletionDate:   &completedAt,
		AssessmentScore:  e.OverallScore,
		TimeSpentMinutes: e.TimeSpentMinutes,
	}); err != nil {
		return nil, nil, fmt.Errorf("enrollment completed but ledger entry failed: %w", err)
	}

	var cert *models.Certificate
	if course.GenerateCertificate {
		cert, err = m.recorder.IssueCertificate(ctx, scope, ledger.IssueRequest{
			OrganizationID: e.OrganizationID,
			UserID:         e.UserID,
			ClassID:        e.CourseID,
			CPECredits:     course.CPECredits,
			IssueDate:      completedAt,
		})
		if errors.Is(err, ledger.ErrDuplicateCertificate) {
			// A concurrent completion issued it first; return that one.
			cert, err = m.recorder.ActiveCertificate(ctx, e.UserID, e.CourseID)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	return e, cert, nil
}

// Fail moves an in-flight enrollment to failed.
func (m *Machine) Fail(ctx context.Context, scope tenant.Scope, id string) error {
	return m.simpleTransition(ctx, scope, id, models.EnrollmentFailed, m.enrollments.MarkFailed)
}

// Drop withdraws a non-terminal enrollment, freeing its seat.
func (m *Machine) Drop(ctx context.Context, scope tenant.Scope, id string) error {
	return m.simpleTransition(ctx, scope, id, models.EnrollmentDropped, m.enrollments.MarkDropped)
}

// Suspend pauses a non-terminal enrollment. The prior state is remembered so
// Resume can restore it.
func (m *Machine) Suspend(ctx context.Context, scope tenant.Scope, id string) error {
	return m.simpleTransition(ctx, scope, id, models.EnrollmentSuspended, m.enrollments.Suspend)
}

// Resume returns a suspended enrollment to the state it was suspended from.
func (m *Machine) Resume(ctx context.Context, scope tenant.Scope, id string) error {
	e, err := m.enrollments.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrEnrollmentNotFound
	}

	applied, err := m.enrollments.Resume(ctx, id)
	if err != nil {
		return err
	}
	if !applied {
		return ErrInvalidTransition
	}

	if e.SuspendedFrom != nil {
		transition(models.EnrollmentSuspended, *e.SuspendedFrom)
	}
	return nil
}

func (m *Machine) simpleTransition(ctx context.Context, scope tenant.Scope, id string, to models.EnrollmentStatus, apply func(context.Context, string) (bool, error)) error {
	e, err := m.enrollments.GetByID(ctx, scope, id)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrEnrollmentNotFound
	}

	applied, err := apply(ctx, id)
	if err != nil {
		return err
	}
	if !applied {
		return ErrInvalidTransition
	}

	transition(e.Status, to)
	m.log.Info("enrollment transition", "enrollment_id", id, "from", e.Status, "to", to)
	return nil
}
