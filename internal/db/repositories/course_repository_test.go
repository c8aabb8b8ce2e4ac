package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/edledger/edledger/internal/db/models"
)

var courseCols = []string{
	"id", "organization_id", "instructor_id", "title", "description", "requires_enrollment",
	"requires_assessment", "minimum_passing_score", "max_assessment_attempts", "max_students",
	"total_required_items", "cpe_credits", "generate_certificate", "published",
	"archived_at", "created_at", "updated_at",
}

func newCourseRepo(t *testing.T) (*CourseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewCourseRepository(db), mock
}

func sampleCourseRow(orgID string, published bool) *sqlmock.Rows {
	return sqlmock.NewRows(courseCols).
		AddRow("course-1", orgID, "teacher-1", "Ethics 101", "Annual ethics refresher", true,
			true, 70.0, 3, 30, 10, 1.5, true, published,
			nil, time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// CreateCourse — instructor/organization invariant
// ---------------------------------------------------------------------------

func TestCreateCourse_InstructorInOrg(t *testing.T) {
	repo, mock := newCourseRepo(t)
	mock.ExpectQuery("SELECT organization_id FROM users WHERE id").
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectExec("INSERT INTO courses").
		WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{
		OrganizationID: "org-1",
		InstructorID:   "teacher-1",
		Title:          "Ethics 101",
	}
	if err := repo.CreateCourse(context.Background(), adminScope("org-1"), course); err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if course.ID == "" {
		t.Error("ID not assigned")
	}
}

func TestCreateCourse_InstructorFromOtherOrg(t *testing.T) {
	repo, mock := newCourseRepo(t)
	mock.ExpectQuery("SELECT organization_id FROM users WHERE id").
		WithArgs("teacher-9").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-2"))

	course := &models.Course{
		OrganizationID: "org-1",
		InstructorID:   "teacher-9",
		Title:          "Ethics 101",
	}
	err := repo.CreateCourse(context.Background(), adminScope("org-1"), course)
	if !errors.Is(err, ErrInstructorOrgMismatch) {
		t.Errorf("err = %v, want ErrInstructorOrgMismatch", err)
	}
}

func TestCreateCourse_UnknownInstructor(t *testing.T) {
	repo, mock := newCourseRepo(t)
	mock.ExpectQuery("SELECT organization_id FROM users WHERE id").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}))

	course := &models.Course{OrganizationID: "org-1", InstructorID: "ghost", Title: "X"}
	err := repo.CreateCourse(context.Background(), adminScope("org-1"), course)
	if !errors.Is(err, ErrInstructorOrgMismatch) {
		t.Errorf("err = %v, want ErrInstructorOrgMismatch", err)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestCourseGetByID_CrossTenantHidden(t *testing.T) {
	repo, mock := newCourseRepo(t)
	mock.ExpectQuery("SELECT.*FROM courses WHERE id").
		WithArgs("course-1").
		WillReturnRows(sampleCourseRow("org-1", true))

	course, err := repo.GetByID(context.Background(), adminScope("org-2"), "course-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if course != nil {
		t.Error("cross-tenant course leaked")
	}
}

func TestCourseList_PublishedOnly(t *testing.T) {
	repo, mock := newCourseRepo(t)
	mock.ExpectQuery("SELECT.*FROM courses WHERE archived_at IS NULL AND organization_id.*AND published = TRUE").
		WithArgs("org-1", 20, 0).
		WillReturnRows(sampleCourseRow("org-1", true))

	courses, err := repo.List(context.Background(), adminScope("org-1"), true, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(courses) != 1 {
		t.Errorf("len = %d, want 1", len(courses))
	}
	if !courses[0].GenerateCertificate {
		t.Error("generate_certificate not scanned")
	}
}

func TestCountCoursesInOrg(t *testing.T) {
	repo, mock := newCourseRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses WHERE organization_id`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountCoursesInOrg(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("CountCoursesInOrg: %v", err)
	}
	if n != 7 {
		t.Errorf("count = %d, want 7", n)
	}
}
