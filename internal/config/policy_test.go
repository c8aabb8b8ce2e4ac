package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
)

const validPolicyYAML = `
version: "acme-v2"
tiers:
  subscriber_admin:
    - manage-users
    - manage-courses
    - view-audit-log
  teacher:
    - grade
    - edit-own-course-content
  student:
    - enroll-self
    - view-published-content
`

func TestLoadPolicyTable_EmptyPathReturnsBuiltin(t *testing.T) {
	table, err := LoadPolicyTable("")
	if err != nil {
		t.Fatalf("LoadPolicyTable() error: %v", err)
	}
	if table.Version != "builtin-v1" {
		t.Errorf("Version = %q, want builtin-v1", table.Version)
	}
	if !table.Allows(models.TierStudent, auth.ActionEnrollSelf) {
		t.Error("builtin table should grant enroll-self to students")
	}
}

func TestLoadPolicyTable_ValidFile(t *testing.T) {
	path := writeTempConfig(t, validPolicyYAML)
	table, err := LoadPolicyTable(path)
	if err != nil {
		t.Fatalf("LoadPolicyTable() error: %v", err)
	}

	if table.Version != "acme-v2" {
		t.Errorf("Version = %q, want acme-v2", table.Version)
	}
	if !table.Allows(models.TierTeacher, auth.ActionGrade) {
		t.Error("file table should grant grade to teachers")
	}
	if !table.Allows(models.TierSubscriberAdmin, auth.ActionViewAuditLog) {
		t.Error("file table should grant view-audit-log to subscriber admins")
	}
	// The file replaces the builtin table rather than patching it: facilitator
	// is absent from the file, so it gets nothing.
	if table.Allows(models.TierFacilitator, auth.ActionGrade) {
		t.Error("tier absent from the file should have no grants")
	}
	if table.Allows(models.TierSubscriberAdmin, auth.ActionManageEnrollments) {
		t.Error("action absent from the file should not be granted")
	}
}

func TestLoadPolicyTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing version",
			content: `
tiers:
  student:
    - enroll-self
`,
		},
		{
			name: "no tiers",
			content: `
version: "empty-v1"
`,
		},
		{
			name: "unknown tier",
			content: `
version: "bad-v1"
tiers:
  superuser:
    - manage-users
`,
		},
		{
			name: "unknown action",
			content: `
version: "bad-v2"
tiers:
  student:
    - launch-missiles
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.content)
			if _, err := LoadPolicyTable(path); err == nil {
				t.Error("LoadPolicyTable() expected error, got nil")
			}
		})
	}
}

func TestLoadPolicyTable_FileNotFound(t *testing.T) {
	if _, err := LoadPolicyTable("/nonexistent/policy.yaml"); err == nil {
		t.Error("LoadPolicyTable() expected error for missing file, got nil")
	}
}

func TestWatchPolicyTable_InitialLoad(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeTempConfig(t, validPolicyYAML)

	table, err := WatchPolicyTable(path, log, func(*auth.PolicyTable) {})
	if err != nil {
		t.Fatalf("WatchPolicyTable() error: %v", err)
	}
	if table.Version != "acme-v2" {
		t.Errorf("Version = %q, want acme-v2", table.Version)
	}
}

func TestWatchPolicyTable_EmptyPathReturnsBuiltin(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	table, err := WatchPolicyTable("", log, func(*auth.PolicyTable) {})
	if err != nil {
		t.Fatalf("WatchPolicyTable() error: %v", err)
	}
	if table.Version != "builtin-v1" {
		t.Errorf("Version = %q, want builtin-v1", table.Version)
	}
}

func TestWatchPolicyTable_InvalidInitialFile(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := writeTempConfig(t, "version: bad\ntiers:\n  nobody:\n    - nothing\n")
	if _, err := WatchPolicyTable(path, log, func(*auth.PolicyTable) {}); err == nil {
		t.Error("WatchPolicyTable() expected error for invalid file, got nil")
	}
}
