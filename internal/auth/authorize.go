// Package auth - authorize.go implements the permission engine: a pure, total
// decision function over (principal, action, resource organization).
package auth

// DenyReason is the machine-readable reason code attached to a Deny decision.
type DenyReason string

const (
	DenyCrossTenant      DenyReason = "CrossTenantAccess"
	DenyInsufficientTier DenyReason = "InsufficientTier"
	DenyNoMatchingPolicy DenyReason = "NoMatchingPolicy"
)

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason // set only when Allowed is false
}

// Allow is the single allowed decision value.
var Allow = Decision{Allowed: true}

// Deny constructs a denied decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize decides whether the principal may perform action against a
// resource owned by resourceOrgID. It is a pure function: no I/O, no stored
// state, and it never panics — it is independently testable and is the single
// authority consulted by middleware and services alike.
//
// Rules are evaluated in order, first match wins:
//  1. System owners bypass tenant scoping entirely, including cross-org actions.
//  2. A principal acting outside its own organization is denied with
//     CrossTenantAccess. No tier exception exists below this rule.
//  3. The static tier→action table grants or denies (InsufficientTier).
//  4. Anything else is denied with NoMatchingPolicy — default-deny, never
//     default-allow.
func Authorize(p Principal, action Action, resourceOrgID string, table *PolicyTable) Decision {
	if p.IsSystemOwner {
		return Allow
	}

	if p.OrganizationID == "" || p.OrganizationID != resourceOrgID {
		return Deny(DenyCrossTenant)
	}

	if table != nil && table.Allows(p.Tier, action) {
		return Allow
	}

	if ValidateAction(action) == nil {
		return Deny(DenyInsufficientTier)
	}

	return Deny(DenyNoMatchingPolicy)
}
