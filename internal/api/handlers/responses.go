// responses.go defines the JSON shapes returned by the API. Models carry only
// db tags; the response structs here control field naming on the wire and keep
// internal columns (password hashes, archive markers) out of responses.
package handlers

import (
	"time"

	"github.com/edledger/edledger/internal/db/models"
)

type userResponse struct {
	ID             string    `json:"id"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Tier           string    `json:"tier"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

func userToResponse(u *models.User) userResponse {
	return userResponse{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Email:          u.Email,
		Name:           u.Name,
		Tier:           string(u.Tier),
		Active:         u.Active,
		CreatedAt:      u.CreatedAt,
	}
}

type organizationResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Active       bool      `json:"active"`
	MaxUsers     int       `json:"max_users"`
	MaxCourses   int       `json:"max_courses"`
	MaxStorageMB int       `json:"max_storage_mb"`
	Features     []string  `json:"features"`
	CreatedAt    time.Time `json:"created_at"`
}

func organizationToResponse(o *models.Organization) organizationResponse {
	features := o.Features
	if features == nil {
		features = []string{}
	}
	return organizationResponse{
		ID:           o.ID,
		Name:         o.Name,
		DisplayName:  o.DisplayName,
		Active:       o.Active,
		MaxUsers:     o.MaxUsers,
		MaxCourses:   o.MaxCourses,
		MaxStorageMB: o.MaxStorageMB,
		Features:     features,
		CreatedAt:    o.CreatedAt,
	}
}

type courseResponse struct {
	ID                    string    `json:"id"`
	OrganizationID        string    `json:"organization_id"`
	InstructorID          string    `json:"instructor_id"`
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	RequiresEnrollment    bool      `json:"requires_enrollment"`
	RequiresAssessment    bool      `json:"requires_assessment"`
	MinimumPassingScore   float64   `json:"minimum_passing_score"`
	MaxAssessmentAttempts int       `json:"max_assessment_attempts"`
	MaxStudents           int       `json:"max_students"`
	TotalRequiredItems    int       `json:"total_required_items"`
	CPECredits            float64   `json:"cpe_credits"`
	GenerateCertificate   bool      `json:"generate_certificate"`
	Published             bool      `json:"published"`
	CreatedAt             time.Time `json:"created_at"`
}

func courseToResponse(course *models.Course) courseResponse {
	return courseResponse{
		ID:                    course.ID,
		OrganizationID:        course.OrganizationID,
		InstructorID:          course.InstructorID,
		Title:                 course.Title,
		Description:           course.Description,
		RequiresEnrollment:    course.RequiresEnrollment,
		RequiresAssessment:    course.RequiresAssessment,
		MinimumPassingScore:   course.MinimumPassingScore,
		MaxAssessmentAttempts: course.MaxAssessmentAttempts,
		MaxStudents:           course.MaxStudents,
		TotalRequiredItems:    course.TotalRequiredItems,
		CPECredits:            course.CPECredits,
		GenerateCertificate:   course.GenerateCertificate,
		Published:             course.Published,
		CreatedAt:             course.CreatedAt,
	}
}

type enrollmentResponse struct {
	ID                 string     `json:"id"`
	OrganizationID     string     `json:"organization_id"`
	UserID             string     `json:"user_id"`
	CourseID           string     `json:"course_id"`
	Status             string     `json:"status"`
	Progress           int        `json:"progress"`
	CompletedItems     int        `json:"completed_items"`
	TimeSpentMinutes   int        `json:"time_spent_minutes"`
	OverallScore       *float64   `json:"overall_score,omitempty"`
	AssessmentAttempts int        `json:"assessment_attempts"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func enrollmentToResponse(e *models.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:                 e.ID,
		OrganizationID:     e.OrganizationID,
		UserID:             e.UserID,
		CourseID:           e.CourseID,
		Status:             string(e.Status),
		Progress:           e.Progress,
		CompletedItems:     e.CompletedItems,
		TimeSpentMinutes:   e.TimeSpentMinutes,
		OverallScore:       e.OverallScore,
		AssessmentAttempts: e.AssessmentAttempts,
		CompletedAt:        e.CompletedAt,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

type certificateResponse struct {
	ID                string     `json:"id"`
	CertificateNumber string     `json:"certificate_number"`
	OrganizationID    string     `json:"organization_id"`
	UserID            string     `json:"user_id"`
	ClassID           string     `json:"class_id"`
	CPECreditsAwarded float64    `json:"cpe_credits_awarded"`
	IssueDate         time.Time  `json:"issue_date"`
	ExpirationDate    *time.Time `json:"expiration_date,omitempty"`
	VerificationHash  string     `json:"verification_hash"`
	DocumentURL       *string    `json:"document_url,omitempty"`
	Status            string     `json:"status"`
	RevokedReason     *string    `json:"revoked_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func certificateToResponse(cert *models.Certificate) certificateResponse {
	return certificateResponse{
		ID:                cert.ID,
		CertificateNumber: cert.CertificateNumber,
		OrganizationID:    cert.OrganizationID,
		UserID:            cert.UserID,
		ClassID:           cert.ClassID,
		CPECreditsAwarded: cert.CPECreditsAwarded,
		IssueDate:         cert.IssueDate,
		ExpirationDate:    cert.ExpirationDate,
		VerificationHash:  cert.VerificationHash,
		DocumentURL:       cert.DocumentURL,
		Status:            string(cert.Status),
		RevokedReason:     cert.RevokedReason,
		CreatedAt:         cert.CreatedAt,
	}
}

type auditEntryResponse struct {
	ID                 string                 `json:"id"`
	OrganizationID     string                 `json:"organization_id"`
	UserID             string                 `json:"user_id"`
	ClassID            string                 `json:"class_id"`
	Action             string                 `json:"action"`
	CPECreditsEarned   float64                `json:"cpe_credits_earned"`
	CompletionDate     *time.Time             `json:"completion_date,omitempty"`
	AssessmentScore    *float64               `json:"assessment_score,omitempty"`
	TimeSpentMinutes   int                    `json:"time_spent_minutes"`
	VerificationStatus string                 `json:"verification_status"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

func auditEntryToResponse(entry *models.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:                 entry.ID,
		OrganizationID:     entry.OrganizationID,
		UserID:             entry.UserID,
		ClassID:            entry.ClassID,
		Action:             string(entry.Action),
		CPECreditsEarned:   entry.CPECreditsEarned,
		CompletionDate:     entry.CompletionDate,
		AssessmentScore:    entry.AssessmentScore,
		TimeSpentMinutes:   entry.TimeSpentMinutes,
		VerificationStatus: string(entry.VerificationStatus),
		Metadata:           entry.Metadata,
		CreatedAt:          entry.CreatedAt,
	}
}
