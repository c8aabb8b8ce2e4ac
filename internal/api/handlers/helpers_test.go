package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/tenant"
)

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("EDL_JWT_SECRET", "handler-test-secret-0123456789abcdef")
}

// withPrincipal injects a resolved principal and scope the way the auth
// middleware does, so handler tests can skip token issuance.
func withPrincipal(p auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("principal", p)
		c.Set("scope", tenant.NewScope(p))
		c.Set("user_id", p.UserID)
		c.Next()
	}
}

func studentPrincipal(orgID string) auth.Principal {
	return auth.Principal{UserID: "student-1", Tier: models.TierStudent, OrganizationID: orgID}
}

func teacherPrincipal(orgID string) auth.Principal {
	return auth.Principal{UserID: "teacher-1", Tier: models.TierTeacher, OrganizationID: orgID}
}

func adminPrincipal(orgID string) auth.Principal {
	return auth.Principal{UserID: "admin-1", Tier: models.TierSubscriberAdmin, OrganizationID: orgID}
}

func systemOwnerPrincipal() auth.Principal {
	return auth.Principal{UserID: "owner-1", Tier: models.TierSystemOwner, IsSystemOwner: true}
}

func defaultPolicies() *auth.PolicyRef {
	return auth.NewPolicyRef(auth.DefaultPolicyTable())
}

// performJSON runs one request through the router, marshaling body when non-nil.
func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}
