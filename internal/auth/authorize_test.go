package auth

import (
	"testing"

	"github.com/edledger/edledger/internal/db/models"
)

func principal(tier models.Tier, orgID string) Principal {
	return Principal{
		UserID:         "user-1",
		Tier:           tier,
		OrganizationID: orgID,
		IsSystemOwner:  tier == models.TierSystemOwner,
	}
}

func TestAuthorize_SystemOwnerBypassesTenantScoping(t *testing.T) {
	table := DefaultPolicyTable()
	owner := Principal{UserID: "root", Tier: models.TierSystemOwner, IsSystemOwner: true}

	for _, action := range AllActions() {
		d := Authorize(owner, action, "any-org", table)
		if !d.Allowed {
			t.Errorf("Authorize(system_owner, %s) denied with %s, want allow", action, d.Reason)
		}
	}

	// Cross-org reads are explicitly allowed for system owners.
	d := Authorize(owner, ActionViewOrgAnalytics, "org-b", table)
	if !d.Allowed {
		t.Errorf("system owner cross-org read denied: %s", d.Reason)
	}
}

func TestAuthorize_CrossTenantDeniedRegardlessOfTier(t *testing.T) {
	table := DefaultPolicyTable()

	tiers := []models.Tier{
		models.TierSubscriberAdmin,
		models.TierTeacher,
		models.TierFacilitator,
		models.TierStudent,
	}

	for _, tier := range tiers {
		for _, action := range AllActions() {
			d := Authorize(principal(tier, "org-a"), action, "org-b", table)
			if d.Allowed {
				t.Errorf("Authorize(%s, %s, org-b) allowed for org-a principal", tier, action)
				continue
			}
			if d.Reason != DenyCrossTenant {
				t.Errorf("Authorize(%s, %s, org-b) reason = %s, want %s", tier, action, d.Reason, DenyCrossTenant)
			}
		}
	}
}

func TestAuthorize_TierTable(t *testing.T) {
	table := DefaultPolicyTable()

	tests := []struct {
		name   string
		tier   models.Tier
		action Action
		allow  bool
		reason DenyReason
	}{
		{"admin manages users", models.TierSubscriberAdmin, ActionManageUsers, true, ""},
		{"admin manages courses", models.TierSubscriberAdmin, ActionManageCourses, true, ""},
		{"admin views analytics", models.TierSubscriberAdmin, ActionViewOrgAnalytics, true, ""},
		{"admin cannot grade", models.TierSubscriberAdmin, ActionGrade, false, DenyInsufficientTier},
		{"teacher edits content", models.TierTeacher, ActionEditOwnCourseContent, true, ""},
		{"teacher grades", models.TierTeacher, ActionGrade, true, ""},
		{"teacher cannot manage users", models.TierTeacher, ActionManageUsers, false, DenyInsufficientTier},
		{"facilitator moderates", models.TierFacilitator, ActionModerateDiscussion, true, ""},
		{"student enrolls self", models.TierStudent, ActionEnrollSelf, true, ""},
		{"student views published", models.TierStudent, ActionViewPublishedContent, true, ""},
		{"student cannot manage courses", models.TierStudent, ActionManageCourses, false, DenyInsufficientTier},
		{"student cannot view audit log", models.TierStudent, ActionViewAuditLog, false, DenyInsufficientTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(principal(tt.tier, "org-a"), tt.action, "org-a", table)
			if d.Allowed != tt.allow {
				t.Fatalf("Allowed = %v, want %v (reason %s)", d.Allowed, tt.allow, d.Reason)
			}
			if !tt.allow && d.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", d.Reason, tt.reason)
			}
		})
	}
}

func TestAuthorize_DefaultDeny(t *testing.T) {
	table := DefaultPolicyTable()

	// Unknown action falls through the table and the action vocabulary.
	d := Authorize(principal(models.TierStudent, "org-a"), Action("launch-missiles"), "org-a", table)
	if d.Allowed {
		t.Fatal("unknown action allowed")
	}
	if d.Reason != DenyNoMatchingPolicy {
		t.Errorf("Reason = %s, want %s", d.Reason, DenyNoMatchingPolicy)
	}

	// Unknown tier with a known action is an insufficient-tier denial.
	d = Authorize(principal(models.Tier("ghost"), "org-a"), ActionEnrollSelf, "org-a", table)
	if d.Allowed || d.Reason != DenyInsufficientTier {
		t.Errorf("unknown tier: got (%v, %s), want deny %s", d.Allowed, d.Reason, DenyInsufficientTier)
	}

	// Nil table never allows a non-system-owner.
	d = Authorize(principal(models.TierSubscriberAdmin, "org-a"), ActionManageUsers, "org-a", nil)
	if d.Allowed {
		t.Error("nil policy table allowed an action")
	}
}

func TestAuthorize_EmptyPrincipalOrgIsCrossTenant(t *testing.T) {
	// A principal with no organization (and not a system owner) can never
	// match a resource org.
	p := Principal{UserID: "u", Tier: models.TierStudent}
	d := Authorize(p, ActionEnrollSelf, "org-a", DefaultPolicyTable())
	if d.Allowed || d.Reason != DenyCrossTenant {
		t.Errorf("got (%v, %s), want deny %s", d.Allowed, d.Reason, DenyCrossTenant)
	}
}

func TestNewPolicyTable_CopiesGrants(t *testing.T) {
	grants := map[models.Tier][]Action{
		models.TierStudent: {ActionEnrollSelf},
	}
	table := NewPolicyTable("v1", grants)

	// Mutating the source map must not change issued decisions.
	grants[models.TierStudent] = append(grants[models.TierStudent], ActionManageUsers)

	if table.Allows(models.TierStudent, ActionManageUsers) {
		t.Error("policy table shares storage with its input map")
	}
	if !table.Allows(models.TierStudent, ActionEnrollSelf) {
		t.Error("original grant lost")
	}
}
