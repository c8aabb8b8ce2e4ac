// Package models - certificate.go defines the Certificate model for CPE credit
// certification with a tamper-evident verification hash.
package models

import "time"

// CertificateStatus is the issuance state of a certificate. Transitions are
// forward-only: active → revoked or active → expired, never back to active.
type CertificateStatus string

const (
	CertificateActive  CertificateStatus = "active"
	CertificateRevoked CertificateStatus = "revoked"
	CertificateExpired CertificateStatus = "expired"
)

// Certificate certifies CPE credits earned for a completed enrollment.
// VerificationHash is a keyed MAC over the identifying fields
// {CertificateNumber, UserID, ClassID, CPECreditsAwarded, IssueDate} so any
// field tamper is detectable by recomputation. At most one active certificate
// exists per (user, class) pair, enforced by a partial unique index.
type Certificate struct {
	ID                string            `db:"id"`
	CertificateNumber string            `db:"certificate_number"` // globally unique
	OrganizationID    string            `db:"organization_id"`
	UserID            string            `db:"user_id"`
	ClassID           string            `db:"class_id"`
	CPECreditsAwarded float64           `db:"cpe_credits_awarded"`
	IssueDate         time.Time         `db:"issue_date"`
	ExpirationDate    *time.Time        `db:"expiration_date"`
	VerificationHash  string            `db:"verification_hash"`
	DocumentURL       *string           `db:"document_url"` // rendered document location, if any
	Status            CertificateStatus `db:"status"`
	RevokedReason     *string           `db:"revoked_reason"`
	CreatedAt         time.Time         `db:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at"`
}
