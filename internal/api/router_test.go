package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/edledger/edledger/internal/config"
	_ "github.com/edledger/edledger/internal/storage/local"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8080,
			BaseURL: "http://127.0.0.1:8080",
		},
		Storage: config.StorageConfig{
			DefaultBackend: "local",
			Local: config.LocalStorageConfig{
				BasePath:      t.TempDir(),
				ServeDirectly: true,
			},
		},
		Auth: config.AuthConfig{
			TokenTTL: time.Hour,
		},
		Security: config.SecurityConfig{
			CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Audit: config.AuditConfig{
			RetryMaxAttempts: 1,
			RetryBaseDelay:   time.Millisecond,
			QueueSize:        16,
		},
		Compliance: config.ComplianceConfig{
			CertificateValidityMonths: 24,
			ExpiryCheckInterval:       time.Hour,
		},
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	os.Setenv("EDL_JWT_SECRET", "router-test-secret-0123456789abcdef")
	os.Setenv("CERT_MAC_KEY", "router-test-mac-key-0123456789abcdef")

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	dbConn := sqlx.NewDb(mockDB, "postgres")

	router, bg, err := NewRouter(testConfig(t), dbConn)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	t.Cleanup(bg.Shutdown)

	return router, mock
}

func TestHealthzEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)
	mock.ExpectPing()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestHealthzEndpoint_DatabaseDown(t *testing.T) {
	router, mock := newTestRouter(t)
	mock.ExpectPing().WillReturnError(os.ErrDeadlineExceeded)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /healthz = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	router, mock := newTestRouter(t)
	mock.ExpectPing()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ready", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /ready = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/version", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /version = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/users"},
		{"POST", "/api/v1/users"},
		{"GET", "/api/v1/courses"},
		{"POST", "/api/v1/courses/c1/enroll"},
		{"GET", "/api/v1/enrollments"},
		{"GET", "/api/v1/certificates"},
		{"GET", "/api/v1/audit"},
		{"GET", "/api/v1/organizations"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(p.method, p.path, nil)
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want %d", p.method, p.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/nope", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /api/v1/nope = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCORSPreflightAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/api/v1/login", nil)
	req.Header.Set("Origin", "https://lms.example.com")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS preflight = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://lms.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want request origin", got)
	}
}

func TestDirectDocumentServingRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	// Path outside certificates/ is rejected before touching storage.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/documents/other/file.html", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /v1/documents/other/file.html = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewRouterWithPolicyHotReload(t *testing.T) {
	os.Setenv("EDL_JWT_SECRET", "router-test-secret-0123456789abcdef")
	os.Setenv("CERT_MAC_KEY", "router-test-mac-key-0123456789abcdef")

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	policy := []byte("version: router-test-v1\ntiers:\n  student:\n    - enroll-self\n    - view-published-content\n")
	if err := os.WriteFile(policyPath, policy, 0600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	mockDB, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	cfg := testConfig(t)
	cfg.Auth.PolicyFile = policyPath
	cfg.Auth.PolicyHotReload = true

	router, bg, err := NewRouter(cfg, sqlx.NewDb(mockDB, "postgres"))
	if err != nil {
		t.Fatalf("NewRouter with policy hot reload: %v", err)
	}
	t.Cleanup(bg.Shutdown)

	// The gates run against the ref built from the initial file load, so a
	// request through a policy-gated route is rejected by the auth middleware
	// rather than tripping over an unset policy ref.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/audit", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/v1/audit without token = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
