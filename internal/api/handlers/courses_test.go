package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/db/repositories"
	"github.com/edledger/edledger/internal/tenant"
)

type stubCourseStore struct {
	courses           map[string]*models.Course
	count             int
	instructorInOrg   bool
	lastPublishedOnly bool
}

func newStubCourseStore(courses ...*models.Course) *stubCourseStore {
	s := &stubCourseStore{courses: map[string]*models.Course{}, instructorInOrg: true}
	for _, course := range courses {
		s.courses[course.ID] = course
	}
	return s
}

func (s *stubCourseStore) CreateCourse(_ context.Context, scope tenant.Scope, course *models.Course) error {
	if err := scope.CheckWrite(course.OrganizationID); err != nil {
		return err
	}
	if !s.instructorInOrg {
		return repositories.ErrInstructorOrgMismatch
	}
	course.ID = "c-new"
	s.courses[course.ID] = course
	return nil
}

func (s *stubCourseStore) GetByID(_ context.Context, scope tenant.Scope, id string) (*models.Course, error) {
	course, ok := s.courses[id]
	if !ok || !scope.CanRead(course.OrganizationID) {
		return nil, nil
	}
	return course, nil
}

func (s *stubCourseStore) List(_ context.Context, scope tenant.Scope, publishedOnly bool, _, _ int) ([]*models.Course, error) {
	s.lastPublishedOnly = publishedOnly
	out := []*models.Course{}
	for _, course := range s.courses {
		if !scope.CanRead(course.OrganizationID) {
			continue
		}
		if publishedOnly && !course.Published {
			continue
		}
		out = append(out, course)
	}
	return out, nil
}

func (s *stubCourseStore) CountCoursesInOrg(_ context.Context, _ string) (int, error) {
	return s.count, nil
}

func courseRouter(t *testing.T, courses *stubCourseStore, orgs *stubOrgStore, p auth.Principal) *gin.Engine {
	t.Helper()
	router := gin.New()
	h := NewCourseHandlers(courses, orgs, defaultPolicies(), nil)
	group := router.Group("/api/v1/courses", withPrincipal(p))
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	return router
}

func TestCreateCourse(t *testing.T) {
	courses := newStubCourseStore()
	orgs := newStubOrgStore(&models.Organization{ID: "org-1", Active: true, MaxCourses: 5})
	router := courseRouter(t, courses, orgs, teacherPrincipal("org-1"))

	w := performJSON(t, router, "POST", "/api/v1/courses", gin.H{
		"title":                 "Ethics Update 2026",
		"instructor_id":         "teacher-1",
		"requires_assessment":   true,
		"minimum_passing_score": 70,
		"cpe_credits":           2.5,
		"generate_certificate":  true,
		"published":             true,
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	var resp courseResponse
	decodeBody(t, w, &resp)
	if resp.OrganizationID != "org-1" {
		t.Errorf("organization_id = %q, want the caller's org", resp.OrganizationID)
	}
	if resp.CPECredits != 2.5 {
		t.Errorf("cpe_credits = %v, want 2.5", resp.CPECredits)
	}
}

func TestCreateCourse_Validation(t *testing.T) {
	orgs := newStubOrgStore(&models.Organization{ID: "org-1", Active: true})
	router := courseRouter(t, newStubCourseStore(), orgs, teacherPrincipal("org-1"))

	for _, body := range []gin.H{
		{},
		{"title": "T", "instructor_id": "teacher-1", "minimum_passing_score": 101},
		{"title": "T", "instructor_id": "teacher-1", "cpe_credits": -1},
		{"title": "T", "instructor_id": "teacher-1", "max_students": -5},
	} {
		w := performJSON(t, router, "POST", "/api/v1/courses", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("create with %v = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

func TestCreateCourse_InstructorOutsideOrganization(t *testing.T) {
	courses := newStubCourseStore()
	courses.instructorInOrg = false
	orgs := newStubOrgStore(&models.Organization{ID: "org-1", Active: true})
	router := courseRouter(t, courses, orgs, teacherPrincipal("org-1"))

	w := performJSON(t, router, "POST", "/api/v1/courses", gin.H{
		"title": "T", "instructor_id": "outsider",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("create = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestCreateCourse_QuotaReached(t *testing.T) {
	courses := newStubCourseStore()
	courses.count = 5
	orgs := newStubOrgStore(&models.Organization{ID: "org-1", Active: true, MaxCourses: 5})
	router := courseRouter(t, courses, orgs, teacherPrincipal("org-1"))

	w := performJSON(t, router, "POST", "/api/v1/courses", gin.H{
		"title": "T", "instructor_id": "teacher-1",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("create = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestListCourses_StudentsSeePublishedOnly(t *testing.T) {
	courses := newStubCourseStore(
		&models.Course{ID: "c-1", OrganizationID: "org-1", Title: "Live", Published: true},
		&models.Course{ID: "c-2", OrganizationID: "org-1", Title: "Draft", Published: false},
	)
	router := courseRouter(t, courses, newStubOrgStore(), studentPrincipal("org-1"))

	w := performJSON(t, router, "GET", "/api/v1/courses", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d, want %d", w.Code, http.StatusOK)
	}
	if !courses.lastPublishedOnly {
		t.Error("student listing should request published courses only")
	}
	var resp struct {
		Courses []courseResponse `json:"courses"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Courses) != 1 || resp.Courses[0].ID != "c-1" {
		t.Errorf("student sees %v, want only the published course", resp.Courses)
	}
}

func TestListCourses_TeachersSeeDrafts(t *testing.T) {
	courses := newStubCourseStore(
		&models.Course{ID: "c-1", OrganizationID: "org-1", Published: true},
		&models.Course{ID: "c-2", OrganizationID: "org-1", Published: false},
	)
	router := courseRouter(t, courses, newStubOrgStore(), teacherPrincipal("org-1"))

	w := performJSON(t, router, "GET", "/api/v1/courses", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d, want %d", w.Code, http.StatusOK)
	}
	if courses.lastPublishedOnly {
		t.Error("teacher listing should include drafts")
	}
}

func TestGetCourse_UnpublishedHiddenFromStudents(t *testing.T) {
	courses := newStubCourseStore(
		&models.Course{ID: "c-2", OrganizationID: "org-1", Title: "Draft", Published: false},
	)
	router := courseRouter(t, courses, newStubOrgStore(), studentPrincipal("org-1"))

	w := performJSON(t, router, "GET", "/api/v1/courses/c-2", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get draft as student = %d, want %d", w.Code, http.StatusNotFound)
	}

	// Absent and unpublished are indistinguishable.
	w2 := performJSON(t, router, "GET", "/api/v1/courses/missing", nil)
	if w2.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want %d", w2.Code, http.StatusNotFound)
	}
	if w.Body.String() != w2.Body.String() {
		t.Errorf("draft and missing responses differ: %q vs %q", w.Body.String(), w2.Body.String())
	}
}

func TestGetCourse_CrossTenantHidden(t *testing.T) {
	courses := newStubCourseStore(
		&models.Course{ID: "c-other", OrganizationID: "org-2", Published: true},
	)
	router := courseRouter(t, courses, newStubOrgStore(), studentPrincipal("org-1"))

	w := performJSON(t, router, "GET", "/api/v1/courses/c-other", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get cross-tenant course = %d, want %d", w.Code, http.StatusNotFound)
	}
}
