// audit_repository.go implements AuditRepository, the storage face of the
// compliance ledger. The only write is an INSERT; no update or delete method
// exists on this type, and the audit_entries table carries a trigger that
// rejects UPDATE/DELETE in case any future code path tries.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// AuditRepository handles compliance ledger database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying ledger entries
type AuditFilters struct {
	UserID    *string
	ClassID   *string
	Action    *models.AuditAction
	StartDate *time.Time
	EndDate   *time.Time
}

const auditColumns = `id, organization_id, user_id, class_id, action, cpe_credits_earned, completion_date,
		assessment_score, time_spent_minutes, verification_status, metadata, created_at`

// Append writes a new ledger entry. Entries are immutable and additive, so
// concurrent appends for the same (user, class) need no locking.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()

	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_entries (id, organization_id, user_id, class_id, action, cpe_credits_earned,
			completion_date, assessment_score, time_spent_minutes, verification_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OrganizationID,
		entry.UserID,
		entry.ClassID,
		entry.Action,
		entry.CPECreditsEarned,
		entry.CompletionDate,
		entry.AssessmentScore,
		entry.TimeSpentMinutes,
		entry.VerificationStatus,
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

func scanAuditEntry(rows interface{ Scan(...interface{}) error }) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{}
	var metadataJSON []byte

	err := rows.Scan(
		&entry.ID,
		&entry.OrganizationID,
		&entry.UserID,
		&entry.ClassID,
		&entry.Action,
		&entry.CPECreditsEarned,
		&entry.CompletionDate,
		&entry.AssessmentScore,
		&entry.TimeSpentMinutes,
		&entry.VerificationStatus,
		&metadataJSON,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return entry, nil
}

// ListEntries retrieves ledger entries visible to the scope with optional
// filters and pagination, newest first.
func (r *AuditRepository) ListEntries(ctx context.Context, scope tenant.Scope, filters AuditFilters, limit, offset int) ([]*models.AuditEntry, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_entries WHERE 1=1`
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE 1=1`

	args := make([]interface{}, 0, 6)

	clause, scopeArgs := scope.ReadFilter("organization_id", len(args)+1)
	countQuery += clause
	query += clause
	args = append(args, scopeArgs...)

	if filters.UserID != nil {
		cond := fmt.Sprintf(` AND user_id = $%d`, len(args)+1)
		countQuery += cond
		query += cond
		args = append(args, *filters.UserID)
	}
	if filters.ClassID != nil {
		cond := fmt.Sprintf(` AND class_id = $%d`, len(args)+1)
		countQuery += cond
		query += cond
		args = append(args, *filters.ClassID)
	}
	if filters.Action != nil {
		cond := fmt.Sprintf(` AND action = $%d`, len(args)+1)
		countQuery += cond
		query += cond
		args = append(args, *filters.Action)
	}
	if filters.StartDate != nil {
		cond := fmt.Sprintf(` AND created_at >= $%d`, len(args)+1)
		countQuery += cond
		query += cond
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		cond := fmt.Sprintf(` AND created_at <= $%d`, len(args)+1)
		countQuery += cond
		query += cond
		args = append(args, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}

// ListByUserClass retrieves all ledger entries for one (user, class) pair in
// causal order (enrollment before completion before certificate_issued). The
// secondary id sort breaks created_at ties deterministically.
func (r *AuditRepository) ListByUserClass(ctx context.Context, scope tenant.Scope, userID, classID string) ([]*models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE user_id = $1 AND class_id = $2`
	args := []interface{}{userID, classID}

	clause, scopeArgs := scope.ReadFilter("organization_id", len(args)+1)
	query += clause
	args = append(args, scopeArgs...)

	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetEntry retrieves a single ledger entry by ID if visible to the scope.
func (r *AuditRepository) GetEntry(ctx context.Context, scope tenant.Scope, id string) (*models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id = $1`

	entry, err := scanAuditEntry(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}

	if !scope.CanRead(entry.OrganizationID) {
		return nil, nil
	}

	return entry, nil
}
