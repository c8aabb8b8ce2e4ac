// Package auth - principal.go defines the Principal value: the resolved,
// authoritative identity+tier+organization context for one request.
package auth

import "github.com/edledger/edledger/internal/db/models"

// Principal is the resolved request identity. It is recomputed per request by
// the Resolver from the persisted user record and is never cached beyond a
// single request lifetime.
type Principal struct {
	UserID         string
	Tier           models.Tier
	OrganizationID string // empty only for system owners
	IsSystemOwner  bool
}

// PrincipalFromUser derives a Principal from a persisted user record.
func PrincipalFromUser(u *models.User) Principal {
	p := Principal{
		UserID:        u.ID,
		Tier:          u.Tier,
		IsSystemOwner: u.IsSystemOwner(),
	}
	if u.OrganizationID != nil {
		p.OrganizationID = *u.OrganizationID
	}
	return p
}
