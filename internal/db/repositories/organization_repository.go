// organization_repository.go implements OrganizationRepository, providing database
// queries for tenant lifecycle: creation, lookup, quota reads, and soft deactivation.
// Organizations are never hard-deleted — audit history must remain addressable.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const orgColumns = `id, name, display_name, active, max_users, max_courses, max_storage_mb, features, archived_at, created_at, updated_at`

func scanOrganization(row interface{ Scan(...interface{}) error }) (*models.Organization, error) {
	org := &models.Organization{}
	var featuresJSON []byte

	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.DisplayName,
		&org.Active,
		&org.MaxUsers,
		&org.MaxCourses,
		&org.MaxStorageMB,
		&featuresJSON,
		&org.ArchivedAt,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &org.Features); err != nil {
			return nil, fmt.Errorf("failed to decode features: %w", err)
		}
	}

	return org, nil
}

// CreateOrganization creates a new tenant. Only system owners may call this;
// the scope check enforces it because no org-bound scope can write a row for
// an organization that does not exist yet.
func (r *OrganizationRepository) CreateOrganization(ctx context.Context, scope tenant.Scope, org *models.Organization) error {
	if !scope.SystemOwner() {
		return tenant.ErrCrossTenantWrite
	}

	featuresJSON, err := json.Marshal(org.Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	if org.Features == nil {
		featuresJSON = []byte("[]")
	}

	query := `
		INSERT INTO organizations (name, display_name, active, max_users, max_courses, max_storage_mb, features)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		org.Name,
		org.DisplayName,
		org.Active,
		org.MaxUsers,
		org.MaxCourses,
		org.MaxStorageMB,
		featuresJSON,
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetByID retrieves an organization by ID. Visibility follows the scope: a
// tenant-bound scope can only see its own organization.
func (r *OrganizationRepository) GetByID(ctx context.Context, scope tenant.Scope, id string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`

	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	if !scope.CanRead(org.ID) {
		return nil, nil
	}

	return org, nil
}

// List retrieves organizations visible to the scope. System owners see all
// tenants; everyone else sees exactly their own.
func (r *OrganizationRepository) List(ctx context.Context, scope tenant.Scope) ([]*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE archived_at IS NULL`
	args := make([]interface{}, 0, 1)

	clause, scopeArgs := scope.ReadFilter("id", 1)
	query += clause
	args = append(args, scopeArgs...)

	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// Deactivate soft-deactivates an organization. The row stays in place so
// audit entries and certificates remain retrievable; no hard-delete exists.
func (r *OrganizationRepository) Deactivate(ctx context.Context, scope tenant.Scope, id string) error {
	if !scope.SystemOwner() {
		return tenant.ErrCrossTenantWrite
	}

	query := `UPDATE organizations SET active = FALSE, archived_at = NOW(), updated_at = NOW() WHERE id = $1 AND archived_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate organization: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	return nil
}
