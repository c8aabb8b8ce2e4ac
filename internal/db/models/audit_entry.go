// Package models - audit_entry.go defines the AuditEntry model for the compliance
// ledger: one immutable record per compliance-relevant action.
package models

import "time"

// AuditAction identifies the compliance-relevant action an entry records.
type AuditAction string

const (
	AuditEnrollment        AuditAction = "enrollment"
	AuditCompletion        AuditAction = "completion"
	AuditCertificateIssued AuditAction = "certificate_issued"
	AuditVerification      AuditAction = "verification"
)

// ValidAuditAction reports whether a is a known ledger action.
func ValidAuditAction(a AuditAction) bool {
	switch a {
	case AuditEnrollment, AuditCompletion, AuditCertificateIssued, AuditVerification:
		return true
	}
	return false
}

// VerificationStatus is the review status recorded on a ledger entry.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// AuditEntry is one append-only record in the compliance ledger. Once written
// no field is ever updated or deleted; corrections are modeled as new
// compensating entries. Entries outlive the owning organization's active
// status to satisfy the multi-year regulatory retention window.
type AuditEntry struct {
	ID                 string                 `db:"id"`
	OrganizationID     string                 `db:"organization_id"`
	UserID             string                 `db:"user_id"`
	ClassID            string                 `db:"class_id"`
	Action             AuditAction            `db:"action"`
	CPECreditsEarned   float64                `db:"cpe_credits_earned"`
	CompletionDate     *time.Time             `db:"completion_date"`
	AssessmentScore    *float64               `db:"assessment_score"`
	TimeSpentMinutes   int                    `db:"time_spent_minutes"`
	VerificationStatus VerificationStatus     `db:"verification_status"`
	Metadata           map[string]interface{} `db:"-"` // JSONB: additional context
	CreatedAt          time.Time              `db:"created_at"`
}
