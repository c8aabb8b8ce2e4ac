// certificate_repository.go implements CertificateRepository. Certificates move
// forward only (active → revoked | expired); the status predicates on each
// UPDATE enforce that at the statement level, and rows are never deleted.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// ErrDuplicateActiveCertificate is returned when an insert collides with the
// partial unique index guaranteeing at most one active certificate per
// (user, class) pair.
var ErrDuplicateActiveCertificate = errors.New("repositories: active certificate already exists for user and class")

// CertificateRepository handles certificate database operations
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository creates a new CertificateRepository
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateColumns = `id, certificate_number, organization_id, user_id, class_id, cpe_credits_awarded,
		issue_date, expiration_date, verification_hash, document_url, status, revoked_reason, created_at, updated_at`

// CreateCertificate persists a new active certificate. A violation of the
// active-per-(user,class) partial unique index surfaces as
// ErrDuplicateActiveCertificate so the ledger can report DuplicateCertificate.
func (r *CertificateRepository) CreateCertificate(ctx context.Context, scope tenant.Scope, cert *models.Certificate) error {
	if err := scope.CheckWrite(cert.OrganizationID); err != nil {
		return err
	}

	cert.ID = uuid.New().String()
	cert.Status = models.CertificateActive
	cert.CreatedAt = time.Now()
	cert.UpdatedAt = time.Now()

	query := `
		INSERT INTO certificates (id, certificate_number, organization_id, user_id, class_id,
			cpe_credits_awarded, issue_date, expiration_date, verification_hash, document_url,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		cert.ID,
		cert.CertificateNumber,
		cert.OrganizationID,
		cert.UserID,
		cert.ClassID,
		cert.CPECreditsAwarded,
		cert.IssueDate,
		cert.ExpirationDate,
		cert.VerificationHash,
		cert.DocumentURL,
		cert.Status,
		cert.CreatedAt,
		cert.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateActiveCertificate
		}
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	return nil
}

// GetByNumber retrieves a certificate by its globally unique number.
// Certificate verification is a public-facing operation, so this lookup is
// unscoped; scoped callers go through GetByNumberScoped.
func (r *CertificateRepository) GetByNumber(ctx context.Context, number string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE certificate_number = $1`

	cert := &models.Certificate{}
	err := r.db.GetContext(ctx, cert, query, number)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return cert, nil
}

// GetByNumberScoped retrieves a certificate by number if visible to the scope.
func (r *CertificateRepository) GetByNumberScoped(ctx context.Context, scope tenant.Scope, number string) (*models.Certificate, error) {
	cert, err := r.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if cert == nil || !scope.CanRead(cert.OrganizationID) {
		return nil, nil
	}
	return cert, nil
}

// GetActiveByUserAndClass retrieves the single active certificate for a
// (user, class) pair, if one exists.
func (r *CertificateRepository) GetActiveByUserAndClass(ctx context.Context, userID, classID string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE user_id = $1 AND class_id = $2 AND status = 'active'`

	cert := &models.Certificate{}
	err := r.db.GetContext(ctx, cert, query, userID, classID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active certificate: %w", err)
	}

	return cert, nil
}

// List retrieves certificates visible to the scope, newest first. userID
// optionally narrows to one holder.
func (r *CertificateRepository) List(ctx context.Context, scope tenant.Scope, userID *string, limit, offset int) ([]*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE 1=1`
	args := make([]interface{}, 0, 4)

	clause, scopeArgs := scope.ReadFilter("organization_id", len(args)+1)
	query += clause
	args = append(args, scopeArgs...)

	if userID != nil {
		query += fmt.Sprintf(` AND user_id = $%d`, len(args)+1)
		args = append(args, *userID)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	certs := make([]*models.Certificate, 0)
	if err := r.db.SelectContext(ctx, &certs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}

	return certs, nil
}

// Revoke moves an active certificate to revoked with a reason. The status
// predicate means revoking an already-revoked or expired certificate is a
// no-op reported via applied=false; nothing ever moves back to active.
func (r *CertificateRepository) Revoke(ctx context.Context, number, reason string) (bool, error) {
	query := `
		UPDATE certificates
		SET status = 'revoked', revoked_reason = $2, updated_at = NOW()
		WHERE certificate_number = $1 AND status = 'active'
	`

	res, err := r.db.ExecContext(ctx, query, number, reason)
	if err != nil {
		return false, fmt.Errorf("failed to revoke certificate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpireDue moves active certificates whose expiration date has passed to
// expired, returning the certificate numbers affected. Used by the expiry job.
func (r *CertificateRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE certificates
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expiration_date IS NOT NULL AND expiration_date < $1
		RETURNING certificate_number
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire certificates: %w", err)
	}
	defer rows.Close()

	numbers := make([]string, 0)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}

	return numbers, rows.Err()
}

// SetDocumentURL stores the rendered document location returned by the
// certificate rendering collaborator.
func (r *CertificateRepository) SetDocumentURL(ctx context.Context, number, url string) error {
	query := `UPDATE certificates SET document_url = $2, updated_at = NOW() WHERE certificate_number = $1`
	if _, err := r.db.ExecContext(ctx, query, number, url); err != nil {
		return fmt.Errorf("failed to set document url: %w", err)
	}
	return nil
}
