// Package models - organization.go defines the Organization model representing a tenant
// boundary with usage quotas and an enabled-feature set.
package models

import "time"

// Organization represents a tenant. Every non-system-owner user and every
// course, enrollment, and audit entry belongs to exactly one organization.
// Organizations are deactivated (Active=false) or archived, never hard-deleted,
// because audit entries must remain retrievable for the regulatory retention
// window regardless of tenant status.
type Organization struct {
	ID           string     `db:"id"`
	Name         string     `db:"name"` // URL-safe name
	DisplayName  string     `db:"display_name"`
	Active       bool       `db:"active"`
	MaxUsers     int        `db:"max_users"`
	MaxCourses   int        `db:"max_courses"`
	MaxStorageMB int        `db:"max_storage_mb"`
	Features     []string   `db:"-"` // stored as JSONB
	ArchivedAt   *time.Time `db:"archived_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// HasFeature reports whether the named feature is enabled for the organization.
func (o *Organization) HasFeature(name string) bool {
	for _, f := range o.Features {
		if f == name {
			return true
		}
	}
	return false
}
