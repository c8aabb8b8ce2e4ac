package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/edledger/edledger/internal/db/models"
)

var certCols = []string{
	"id", "certificate_number", "organization_id", "user_id", "class_id", "cpe_credits_awarded",
	"issue_date", "expiration_date", "verification_hash", "document_url", "status",
	"revoked_reason", "created_at", "updated_at",
}

func newCertRepo(t *testing.T) (*CertificateRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewCertificateRepository(db), mock
}

func sampleCertRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(certCols).
		AddRow("cert-1", "CPE-2026-000001", "org-1", "user-1", "course-1", 1.5,
			time.Now(), nil, "abcd1234", nil, status, nil, time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// CreateCertificate
// ---------------------------------------------------------------------------

func TestCreateCertificate_Inserts(t *testing.T) {
	repo, mock := newCertRepo(t)
	mock.ExpectExec("INSERT INTO certificates").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cert := &models.Certificate{
		CertificateNumber: "CPE-2026-000001",
		OrganizationID:    "org-1",
		UserID:            "user-1",
		ClassID:           "course-1",
		CPECreditsAwarded: 1.5,
		IssueDate:         time.Now(),
		VerificationHash:  "abcd1234",
	}
	if err := repo.CreateCertificate(context.Background(), adminScope("org-1"), cert); err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	if cert.Status != models.CertificateActive {
		t.Errorf("Status = %s, want active", cert.Status)
	}
}

func TestCreateCertificate_DuplicateActiveMapped(t *testing.T) {
	repo, mock := newCertRepo(t)
	mock.ExpectExec("INSERT INTO certificates").
		WillReturnError(&pq.Error{Code: "23505"})

	cert := &models.Certificate{
		CertificateNumber: "CPE-2026-000002",
		OrganizationID:    "org-1",
		UserID:            "user-1",
		ClassID:           "course-1",
		IssueDate:         time.Now(),
	}
	err := repo.CreateCertificate(context.Background(), adminScope("org-1"), cert)
	if !errors.Is(err, ErrDuplicateActiveCertificate) {
		t.Errorf("err = %v, want ErrDuplicateActiveCertificate", err)
	}
}

// ---------------------------------------------------------------------------
// Revoke — forward-only transitions
// ---------------------------------------------------------------------------

func TestRevoke_ActiveCertificate(t *testing.T) {
	repo, mock := newCertRepo(t)
	mock.ExpectExec(`UPDATE certificates\s+SET status = 'revoked'`).
		WithArgs("CPE-2026-000001", "issued in error").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.Revoke(context.Background(), "CPE-2026-000001", "issued in error")
	if err != nil || !applied {
		t.Fatalf("Revoke: applied=%v err=%v", applied, err)
	}
}

func TestRevoke_AlreadyRevokedNoOp(t *testing.T) {
	repo, mock := newCertRepo(t)
	// status = 'active' predicate matches nothing; no transition back exists.
	mock.ExpectExec(`UPDATE certificates\s+SET status = 'revoked'`).
		WithArgs("CPE-2026-000001", "again").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.Revoke(context.Background(), "CPE-2026-000001", "again")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if applied {
		t.Error("revoked a non-active certificate")
	}
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestGetByNumber_Found(t *testing.T) {
	repo, mock := newCertRepo(t)
	mock.ExpectQuery("SELECT.*FROM certificates WHERE certificate_number").
		WithArgs("CPE-2026-000001").
		WillReturnRows(sampleCertRow("active"))

	cert, err := repo.GetByNumber(context.Background(), "CPE-2026-000001")
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if cert == nil {
		t.Fatal("expected certificate")
	}
	if cert.VerificationHash != "abcd1234" {
		t.Errorf("VerificationHash = %s", cert.VerificationHash)
	}
}

func TestGetByNumberScoped_CrossTenantHidden(t *testing.T) {
	repo, mock := newCertRepo(t)
	mock.ExpectQuery("SELECT.*FROM certificates WHERE certificate_number").
		WithArgs("CPE-2026-000001").
		WillReturnRows(sampleCertRow("active"))

	cert, err := repo.GetByNumberScoped(context.Background(), adminScope("org-2"), "CPE-2026-000001")
	if err != nil {
		t.Fatalf("GetByNumberScoped: %v", err)
	}
	if cert != nil {
		t.Error("cross-tenant certificate leaked")
	}
}

func TestGetActiveByUserAndClass_NotFound(t *testing.T) {
	repo, mock := newCertRepo(t)
	mock.ExpectQuery("SELECT.*FROM certificates WHERE user_id").
		WithArgs("user-1", "course-9").
		WillReturnRows(sqlmock.NewRows(certCols))

	cert, err := repo.GetActiveByUserAndClass(context.Background(), "user-1", "course-9")
	if err != nil {
		t.Fatalf("GetActiveByUserAndClass: %v", err)
	}
	if cert != nil {
		t.Error("expected nil for missing certificate")
	}
}

// ---------------------------------------------------------------------------
// ExpireDue
// ---------------------------------------------------------------------------

func TestExpireDue_ReturnsNumbers(t *testing.T) {
	repo, mock := newCertRepo(t)
	now := time.Now()
	mock.ExpectQuery(`UPDATE certificates\s+SET status = 'expired'`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"certificate_number"}).
			AddRow("CPE-2025-000007").
			AddRow("CPE-2025-000019"))

	numbers, err := repo.ExpireDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if len(numbers) != 2 {
		t.Errorf("len = %d, want 2", len(numbers))
	}
}
