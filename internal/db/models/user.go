// Package models - user.go defines the User model for platform accounts with their
// organization membership and assigned tier.
package models

import "time"

// Tier is the five-level role hierarchy controlling default capability sets.
type Tier string

const (
	TierSystemOwner     Tier = "system_owner"
	TierSubscriberAdmin Tier = "subscriber_admin"
	TierTeacher         Tier = "teacher"
	TierFacilitator     Tier = "facilitator"
	TierStudent         Tier = "student"
)

// ValidTier reports whether t is one of the defined tiers.
func ValidTier(t Tier) bool {
	switch t {
	case TierSystemOwner, TierSubscriberAdmin, TierTeacher, TierFacilitator, TierStudent:
		return true
	}
	return false
}

// User represents an account in the system. The persisted Tier is the single
// source of truth for authorization — tier claims carried in session tokens
// are never trusted (see auth.Resolver).
type User struct {
	ID             string     `db:"id"`
	OrganizationID *string    `db:"organization_id"` // nil only for system owners
	Email          string     `db:"email"`
	Name           string     `db:"name"`
	PasswordHash   string     `db:"password_hash"`
	Tier           Tier       `db:"tier"`
	Active         bool       `db:"active"`
	ArchivedAt     *time.Time `db:"archived_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// IsSystemOwner reports whether the user holds the cross-tenant system owner tier.
func (u *User) IsSystemOwner() bool {
	return u.Tier == TierSystemOwner
}
