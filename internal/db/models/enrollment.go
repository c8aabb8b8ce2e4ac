// Package models - enrollment.go defines the Enrollment model linking a student to a
// course, with the lifecycle status values owned by the enrollment state machine.
package models

import "time"

// EnrollmentStatus is the lifecycle state of a student's relationship to a course.
// Status values are written exclusively by the enrollment state machine; no
// handler or repository mutates them directly.
type EnrollmentStatus string

const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentFailed     EnrollmentStatus = "failed"
	EnrollmentDropped    EnrollmentStatus = "dropped"
	EnrollmentSuspended  EnrollmentStatus = "suspended"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentCompleted, EnrollmentFailed, EnrollmentDropped:
		return true
	}
	return false
}

// Enrollment links a student to a course. Progress and TimeSpentMinutes are
// monotonically non-decreasing; CompletedAt is set exactly once, at the
// transition into completed. Rows referenced by audit entries are archived,
// never deleted.
type Enrollment struct {
	ID                 string            `db:"id"`
	OrganizationID     string            `db:"organization_id"`
	UserID             string            `db:"user_id"`
	CourseID           string            `db:"course_id"`
	Status             EnrollmentStatus  `db:"status"`
	SuspendedFrom      *EnrollmentStatus `db:"suspended_from"` // state to resume into; set only while suspended
	Progress           int               `db:"progress"`       // 0-100
	CompletedItems     int               `db:"completed_items"`
	TimeSpentMinutes   int               `db:"time_spent_minutes"`
	OverallScore       *float64          `db:"overall_score"`
	AssessmentAttempts int               `db:"assessment_attempts"`
	CompletedAt        *time.Time        `db:"completed_at"`
	ArchivedAt         *time.Time        `db:"archived_at"`
	CreatedAt          time.Time         `db:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at"`
}
