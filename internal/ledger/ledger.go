// Package ledger is the compliance core: it owns every write to the
// append-only audit trail and the full certificate lifecycle. Enrollment
// transitions and handlers never touch the audit or certificate repositories
// directly; they go through this type so the invariants (append-only entries,
// keyed verification hashes, forward-only certificate status) hold at a single
// choke point.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edledger/edledger/internal/crypto"
	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/db/repositories"
	"github.com/edledger/edledger/internal/telemetry"
	"github.com/edledger/edledger/internal/tenant"
)

var (
	// ErrInvalidEntry is returned when an audit entry is missing required fields
	// or names an unknown action.
	ErrInvalidEntry = errors.New("ledger: audit entry is invalid")
	// ErrDuplicateCertificate is returned when an active certificate already
	// exists for the (user, class) pair.
	ErrDuplicateCertificate = errors.New("ledger: active certificate already exists for user and class")
	// ErrCertificateNotFound is returned when no certificate carries the given number.
	ErrCertificateNotFound = errors.New("ledger: certificate not found")
	// ErrCertificateNotActive is returned when revoking a certificate that is
	// already revoked or expired. Status changes are forward-only.
	ErrCertificateNotActive = errors.New("ledger: certificate is not active")
)

// VerificationResult is the outcome of recomputing a certificate's hash.
type VerificationResult string

const (
	VerificationValid    VerificationResult = "valid"
	VerificationTampered VerificationResult = "tampered"
)

// AuditStore is the slice of the audit repository the ledger writes through.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByUserClass(ctx context.Context, scope tenant.Scope, userID, classID string) ([]*models.AuditEntry, error)
}

// CertificateStore is the slice of the certificate repository the ledger uses.
type CertificateStore interface {
	CreateCertificate(ctx context.Context, scope tenant.Scope, cert *models.Certificate) error
	GetByNumber(ctx context.Context, number string) (*models.Certificate, error)
	GetByNumberScoped(ctx context.Context, scope tenant.Scope, number string) (*models.Certificate, error)
	GetActiveByUserAndClass(ctx context.Context, userID, classID string) (*models.Certificate, error)
	Revoke(ctx context.Context, number, reason string) (bool, error)
}

// FailedAppendSink receives audit entries whose append failed after the
// triggering transition had already committed. The sink retries with backoff
// and spools on exhaustion; the ledger only hands the entry over.
type FailedAppendSink interface {
	Enqueue(entry *models.AuditEntry)
}

// Ledger coordinates audit appends and certificate issuance.
type Ledger struct {
	audits         AuditStore
	certs          CertificateStore
	mac            *crypto.CertificateMAC
	sink           FailedAppendSink
	validityMonths int
	log            *slog.Logger
}

// New creates a Ledger. sink may be nil, in which case append failures are
// returned to the caller instead of being queued for reconciliation.
// validityMonths sets the expiration stamped on issued certificates; zero
// issues certificates that never expire.
func New(audits AuditStore, certs CertificateStore, mac *crypto.CertificateMAC, sink FailedAppendSink, validityMonths int, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{audits: audits, certs: certs, mac: mac, sink: sink, validityMonths: validityMonths, log: log}
}

// RecordAudit validates and appends one entry to the compliance ledger. The
// entry is stamped server-side; callers never set ID or CreatedAt. When the
// append fails and a reconciliation sink is configured, the entry is queued
// there and nil is returned: the action the entry records has already
// happened, so the caller has nothing to roll back.
func (l *Ledger) RecordAudit(ctx context.Context, entry *models.AuditEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if entry.VerificationStatus == "" {
		entry.VerificationStatus = models.VerificationPending
	}

	if err := l.audits.Append(ctx, entry); err != nil {
		telemetry.AuditAppendFailuresTotal.Inc()
		if l.sink != nil {
			l.log.Error("audit append failed, queueing for reconciliation",
				"action", entry.Action, "user_id", entry.UserID, "class_id", entry.ClassID, "error", err)
			l.sink.Enqueue(entry)
			return nil
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

func validateEntry(entry *models.AuditEntry) error {
	if !models.ValidAuditAction(entry.Action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, entry.Action)
	}
	if entry.OrganizationID == "" || entry.UserID == "" || entry.ClassID == "" {
		return fmt.Errorf("%w: organization, user, and class are required", ErrInvalidEntry)
	}
	if entry.CPECreditsEarned < 0 {
		return fmt.Errorf("%w: negative CPE credits", ErrInvalidEntry)
	}
	return nil
}

// History returns the ledger entries for a (user, class) pair in causal order.
func (l *Ledger) History(ctx context.Context, scope tenant.Scope, userID, classID string) ([]*models.AuditEntry, error) {
	return l.audits.ListByUserClass(ctx, scope, userID, classID)
}

// IssueRequest carries the fields needed to issue a certificate.
type IssueRequest struct {
	OrganizationID string
	UserID         string
	ClassID        string
	CPECredits     float64
	IssueDate      time.Time
	ExpirationDate *time.Time
}

// IssueCertificate creates a certificate with a fresh number and verification
// hash, then records a certificate_issued ledger entry. At most one active
// certificate may exist per (user, class); a second issuance returns
// ErrDuplicateCertificate backed by the partial unique index, so concurrent
// issuers cannot both succeed.
func (l *Ledger) IssueCertificate(ctx context.Context, scope tenant.Scope, req IssueRequest) (*models.Certificate, error) {
	if req.IssueDate.IsZero() {
		req.IssueDate = time.Now()
	}
	if req.ExpirationDate == nil && l.validityMonths > 0 {
		exp := req.IssueDate.AddDate(0, l.validityMonths, 0)
		req.ExpirationDate = &exp
	}

	cert := &models.Certificate{
		CertificateNumber: NewCertificateNumber(req.IssueDate),
		OrganizationID:    req.OrganizationID,
		UserID:            req.UserID,
		ClassID:           req.ClassID,
		CPECreditsAwarded: req.CPECredits,
		IssueDate:         req.IssueDate,
		ExpirationDate:    req.ExpirationDate,
	}
	cert.VerificationHash = l.mac.Compute(
		cert.CertificateNumber, cert.UserID, cert.ClassID, cert.CPECreditsAwarded, cert.IssueDate)

	if err := l.certs.CreateCertificate(ctx, scope, cert); err != nil {
		if errors.Is(err, repositories.ErrDuplicateActiveCertificate) {
			return nil, ErrDuplicateCertificate
		}
		return nil, err
	}

	telemetry.CertificatesIssuedTotal.Inc()
	l.log.Info("certificate issued",
		"certificate_number", cert.CertificateNumber, "user_id", cert.UserID,
		"class_id", cert.ClassID, "cpe_credits", cert.CPECreditsAwarded)

	err := l.RecordAudit(ctx, &models.AuditEntry{
		OrganizationID:   cert.OrganizationID,
		UserID:           cert.UserID,
		ClassID:          cert.ClassID,
		Action:           models.AuditCertificateIssued,
		CPECreditsEarned: cert.CPECreditsAwarded,
		Metadata: map[string]interface{}{
			"certificate_number": cert.CertificateNumber,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("certificate issued but ledger entry failed: %w", err)
	}

	return cert, nil
}

// Verification is the full result of a certificate check.
type Verification struct {
	Result      VerificationResult
	Certificate *models.Certificate
}

// VerifyCertificate recomputes the verification hash from the stored fields
// and compares it in constant time. The check is read-only with respect to
// the certificate but is itself a compliance-relevant event, so a
// verification entry is appended to the ledger either way.
func (l *Ledger) VerifyCertificate(ctx context.Context, number string) (*Verification, error) {
	cert, err := l.certs.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, ErrCertificateNotFound
	}

	result := VerificationTampered
	if l.mac.Verify(cert.CertificateNumber, cert.UserID, cert.ClassID,
		cert.CPECreditsAwarded, cert.IssueDate, cert.VerificationHash) {
		result = VerificationValid
	}

	telemetry.CertificateVerificationsTotal.WithLabelValues(string(result)).Inc()
	if result == VerificationTampered {
		l.log.Error("certificate failed hash verification",
			"certificate_number", cert.CertificateNumber, "user_id", cert.UserID)
	}

	if err := l.RecordAudit(ctx, &models.AuditEntry{
		OrganizationID: cert.OrganizationID,
		UserID:         cert.UserID,
		ClassID:        cert.ClassID,
		Action:         models.AuditVerification,
		Metadata: map[string]interface{}{
			"certificate_number": cert.CertificateNumber,
			"result":             string(result),
			"certificate_status": string(cert.Status),
		},
	}); err != nil {
		return nil, err
	}

	return &Verification{Result: result, Certificate: cert}, nil
}

// RevokeCertificate moves an active certificate to revoked. The row is never
// deleted and there is no path back to active.
func (l *Ledger) RevokeCertificate(ctx context.Context, scope tenant.Scope, number, reason string) error {
	cert, err := l.certs.GetByNumberScoped(ctx, scope, number)
	if err != nil {
		return err
	}
	if cert == nil {
		return ErrCertificateNotFound
	}

	applied, err := l.certs.Revoke(ctx, number, reason)
	if err != nil {
		return err
	}
	if !applied {
		return ErrCertificateNotActive
	}

	l.log.Warn("certificate revoked",
		"certificate_number", number, "user_id", cert.UserID, "reason", reason)
	return nil
}

// ActiveCertificate returns the active certificate for a (user, class) pair,
// or nil when none exists.
func (l *Ledger) ActiveCertificate(ctx context.Context, userID, classID string) (*models.Certificate, error) {
	return l.certs.GetActiveByUserAndClass(ctx, userID, classID)
}
