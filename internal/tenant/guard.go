// Package tenant enforces organization scoping on every storage operation.
//
// A Scope is derived from the request Principal and handed to each repository
// call. Repositories never receive a raw organization ID from handler code:
// reads append the scope's predicate, writes are checked against the scope
// before any SQL is issued. This keeps tenant isolation a property of the
// storage layer rather than a convention individual route handlers must
// remember to follow.
package tenant

import (
	"errors"
	"fmt"

	"github.com/edledger/edledger/internal/auth"
)

// ErrCrossTenantWrite is returned when a write targets an organization other
// than the scope's organization and the scope is not a system owner.
var ErrCrossTenantWrite = errors.New("tenant: cross-tenant write rejected")

// Scope is the tenant boundary for one request. The zero value is unusable;
// construct with NewScope.
type Scope struct {
	orgID       string
	systemOwner bool
}

// NewScope derives the storage scope from a resolved principal.
func NewScope(p auth.Principal) Scope {
	return Scope{orgID: p.OrganizationID, systemOwner: p.IsSystemOwner}
}

// SystemScope returns an unrestricted scope for trusted internal callers
// (migrations, background jobs). Request handling code must always go through
// NewScope.
func SystemScope() Scope {
	return Scope{systemOwner: true}
}

// OrganizationID returns the scope's organization. Empty for system owners.
func (s Scope) OrganizationID() string {
	return s.orgID
}

// SystemOwner reports whether the scope bypasses tenant restriction.
func (s Scope) SystemOwner() bool {
	return s.systemOwner
}

// ReadFilter returns a SQL predicate fragment restricting a read to the
// scope's organization, plus its bind arguments. System owners receive an
// empty fragment (full collection access). column names the qualified
// organization column, paramIndex the next free positional parameter.
//
//	clause, args := scope.ReadFilter("e.organization_id", 3)
//	query += clause // " AND e.organization_id = $3" or ""
func (s Scope) ReadFilter(column string, paramIndex int) (string, []interface{}) {
	if s.systemOwner {
		return "", nil
	}
	return fmt.Sprintf(" AND %s = $%d", column, paramIndex), []interface{}{s.orgID}
}

// CheckWrite rejects writes whose target organization differs from the
// scope's, unless the scope is a system owner. resourceOrgID is the payload's
// organization, explicit or inherited from a referenced parent (e.g. the
// course an enrollment belongs to).
func (s Scope) CheckWrite(resourceOrgID string) error {
	if s.systemOwner {
		return nil
	}
	if s.orgID == "" || s.orgID != resourceOrgID {
		return ErrCrossTenantWrite
	}
	return nil
}

// CanRead reports whether a row belonging to resourceOrgID is visible to the
// scope. Used by repositories that fetch by primary key and must not leak
// cross-tenant rows.
func (s Scope) CanRead(resourceOrgID string) bool {
	return s.systemOwner || (s.orgID != "" && s.orgID == resourceOrgID)
}
