// Package repositories implements the data access layer (repository pattern).
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this
// layer, and every tenant-scoped query takes a tenant.Scope so organization
// isolation is enforced here rather than by handler convention.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, organization_id, email, name, password_hash, tier, active, archived_at, created_at, updated_at`

// CreateUser creates a new user. The write is checked against the scope: a
// subscriber admin can only create users inside their own organization.
// System owners may create users anywhere, including org-less system owners.
func (r *UserRepository) CreateUser(ctx context.Context, scope tenant.Scope, user *models.User) error {
	targetOrg := ""
	if user.OrganizationID != nil {
		targetOrg = *user.OrganizationID
	}
	if err := scope.CheckWrite(targetOrg); err != nil {
		return err
	}

	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, organization_id, email, name, password_hash, tier, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.OrganizationID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Tier,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID. Unscoped: it backs principal resolution,
// which runs before any tenant scope exists for the request.
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user := &models.User{}
	err := r.db.GetContext(ctx, user, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email. Unscoped: it backs login, which
// runs before authentication.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND archived_at IS NULL`

	user := &models.User{}
	err := r.db.GetContext(ctx, user, query, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// ListUsers retrieves users visible to the scope, newest first.
func (r *UserRepository) ListUsers(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE archived_at IS NULL`
	args := make([]interface{}, 0, 3)

	clause, scopeArgs := scope.ReadFilter("organization_id", len(args)+1)
	query += clause
	args = append(args, scopeArgs...)

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	users := make([]*models.User, 0)
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// CountUsersInOrg returns the number of non-archived users in an organization,
// used to enforce the organization's max_users quota.
func (r *UserRepository) CountUsersInOrg(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE organization_id = $1 AND archived_at IS NULL`
	if err := r.db.QueryRowContext(ctx, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// SetUserActive toggles a user's active flag within the scope's organization.
func (r *UserRepository) SetUserActive(ctx context.Context, scope tenant.Scope, userID string, active bool) error {
	user, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return sql.ErrNoRows
	}
	targetOrg := ""
	if user.OrganizationID != nil {
		targetOrg = *user.OrganizationID
	}
	if err := scope.CheckWrite(targetOrg); err != nil {
		return err
	}

	query := `UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, active); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}
