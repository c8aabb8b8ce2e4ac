// Package auth - tiers.go defines the action vocabulary and the static tier→action
// policy table consulted by Authorize.
//
// Tier capabilities are checked at request time from the persisted user record
// rather than being embedded in the JWT. This is a deliberate design choice:
// when an administrator changes a user's tier, the change takes effect on the
// user's next request without invalidating or reissuing their token. A stale
// or forged tier claim in a token can therefore never grant elevated access.
package auth

import (
	"fmt"

	"github.com/edledger/edledger/internal/db/models"
)

// Action is a permission-checked operation name (e.g. "manage-users").
type Action string

const (
	// Subscriber admin actions
	ActionManageUsers       Action = "manage-users"
	ActionManageCourses     Action = "manage-courses"
	ActionManageEnrollments Action = "manage-enrollments"
	ActionViewOrgAnalytics  Action = "view-org-analytics"
	ActionViewAuditLog      Action = "view-audit-log"

	// Teacher / facilitator actions
	ActionEditOwnCourseContent Action = "edit-own-course-content"
	ActionGrade                Action = "grade"
	ActionModerateDiscussion   Action = "moderate-discussion"

	// Student actions
	ActionEnrollSelf           Action = "enroll-self"
	ActionViewPublishedContent Action = "view-published-content"
)

// AllActions returns every defined action.
func AllActions() []Action {
	return []Action{
		ActionManageUsers,
		ActionManageCourses,
		ActionManageEnrollments,
		ActionViewOrgAnalytics,
		ActionViewAuditLog,
		ActionEditOwnCourseContent,
		ActionGrade,
		ActionModerateDiscussion,
		ActionEnrollSelf,
		ActionViewPublishedContent,
	}
}

// ValidateAction checks that the provided action name is defined.
func ValidateAction(a Action) error {
	for _, known := range AllActions() {
		if a == known {
			return nil
		}
	}
	return fmt.Errorf("invalid action: %s", a)
}

// PolicyTable maps each tier to the set of actions it may perform. A table is
// an immutable value: it is built once (at process start or when the policy
// file is reloaded) and passed explicitly into Authorize, never mutated in
// place. Version identifies which table produced a decision in logs.
type PolicyTable struct {
	Version string
	grants  map[models.Tier]map[Action]struct{}
}

// NewPolicyTable builds a table from tier→action grants. The input map is
// copied so later mutation by the caller cannot affect issued decisions.
func NewPolicyTable(version string, grants map[models.Tier][]Action) *PolicyTable {
	t := &PolicyTable{
		Version: version,
		grants:  make(map[models.Tier]map[Action]struct{}, len(grants)),
	}
	for tier, actions := range grants {
		set := make(map[Action]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		t.grants[tier] = set
	}
	return t
}

// Allows reports whether the tier is granted the action.
func (t *PolicyTable) Allows(tier models.Tier, action Action) bool {
	set, ok := t.grants[tier]
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

// DefaultPolicyTable returns the built-in tier→action mapping. Deployments can
// override it via the policy section of the config file; the defaults encode
// the standard capability sets for each tier.
func DefaultPolicyTable() *PolicyTable {
	return NewPolicyTable("builtin-v1", map[models.Tier][]Action{
		models.TierSubscriberAdmin: {
			ActionManageUsers,
			ActionManageCourses,
			ActionManageEnrollments,
			ActionViewOrgAnalytics,
			ActionViewAuditLog,
			ActionViewPublishedContent,
		},
		models.TierTeacher: {
			ActionEditOwnCourseContent,
			ActionGrade,
			ActionModerateDiscussion,
			ActionViewPublishedContent,
		},
		models.TierFacilitator: {
			ActionEditOwnCourseContent,
			ActionGrade,
			ActionModerateDiscussion,
			ActionViewPublishedContent,
		},
		models.TierStudent: {
			ActionEnrollSelf,
			ActionViewPublishedContent,
		},
	})
}
