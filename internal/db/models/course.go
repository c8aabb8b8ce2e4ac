// Package models - course.go defines the Course model for instructor-owned classes
// within a tenant, including completion and certification policy fields.
package models

import "time"

// Course represents a class offered within one organization. The owning
// instructor must belong to the same organization unless the course was
// created by a system owner on the organization's behalf.
type Course struct {
	ID                    string     `db:"id"`
	OrganizationID        string     `db:"organization_id"`
	InstructorID          string     `db:"instructor_id"`
	Title                 string     `db:"title"`
	Description           string     `db:"description"`
	RequiresEnrollment    bool       `db:"requires_enrollment"` // false = admin-driven enrollment only
	RequiresAssessment    bool       `db:"requires_assessment"`
	MinimumPassingScore   float64    `db:"minimum_passing_score"`
	MaxAssessmentAttempts int        `db:"max_assessment_attempts"`
	MaxStudents           int        `db:"max_students"` // 0 = unlimited
	TotalRequiredItems    int        `db:"total_required_items"`
	CPECredits            float64    `db:"cpe_credits"`
	GenerateCertificate   bool       `db:"generate_certificate"`
	Published             bool       `db:"published"`
	ArchivedAt            *time.Time `db:"archived_at"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}
