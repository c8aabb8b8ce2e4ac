// certificates.go serves certificate verification, revocation, listing, and
// the rendered document. Verification and revocation go through the ledger so
// their compliance entries are appended; nothing here touches certificate rows
// directly except reads and the document URL backfill.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/documents"
	"github.com/edledger/edledger/internal/ledger"
	"github.com/edledger/edledger/internal/tenant"
)

// CertificateStore is the read slice of the certificate repository the
// handlers use, plus the document URL backfill.
type CertificateStore interface {
	List(ctx context.Context, scope tenant.Scope, userID *string, limit, offset int) ([]*models.Certificate, error)
	GetByNumberScoped(ctx context.Context, scope tenant.Scope, number string) (*models.Certificate, error)
	SetDocumentURL(ctx context.Context, number, url string) error
}

// UserLookup resolves learner names for document rendering.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// CertificateHandlers serves certificate endpoints.
type CertificateHandlers struct {
	ledger    *ledger.Ledger
	certs     CertificateStore
	users     UserLookup
	courses   CourseStore
	orgs      OrganizationStore
	publisher *documents.Publisher
	policies  *auth.PolicyRef
	log       *slog.Logger
}

// NewCertificateHandlers creates CertificateHandlers. publisher may be nil
// when no document storage is configured; the document endpoint then reports
// the feature unavailable.
func NewCertificateHandlers(l *ledger.Ledger, certs CertificateStore, users UserLookup, courses CourseStore, orgs OrganizationStore, publisher *documents.Publisher, policies *auth.PolicyRef, log *slog.Logger) *CertificateHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &CertificateHandlers{
		ledger:    l,
		certs:     certs,
		users:     users,
		courses:   courses,
		orgs:      orgs,
		publisher: publisher,
		policies:  policies,
		log:       log,
	}
}

// Verify handles POST /api/v1/certificates/:number/verify. The check itself is
// a compliance-relevant event, so the ledger appends a verification entry
// whether the hash holds or not.
func (h *CertificateHandlers) Verify(c *gin.Context) {
	v, err := h.ledger.VerifyCertificate(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":      string(v.Result),
		"certificate": certificateToResponse(v.Certificate),
	})
}

type revokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Revoke handles POST /api/v1/certificates/:number/revoke.
func (h *CertificateHandlers) Revoke(c *gin.Context) {
	_, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A revocation reason is required"})
		return
	}

	number := c.Param("number")
	if err := h.ledger.RevokeCertificate(c.Request.Context(), scope, number, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"certificate_number": number, "status": string(models.CertificateRevoked)})
}

// List handles GET /api/v1/certificates. Principals without view-org-analytics
// see their own certificates only.
func (h *CertificateHandlers) List(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	var userID *string
	if v := c.Query("user_id"); v != "" {
		userID = &v
	}
	if !auth.Authorize(p, auth.ActionViewOrgAnalytics, p.OrganizationID, h.policies.Table()).Allowed {
		own := p.UserID
		userID = &own
	}

	limit, offset := pagination(c)
	certs, err := h.certs.List(c.Request.Context(), scope, userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]certificateResponse, 0, len(certs))
	for _, cert := range certs {
		out = append(out, certificateToResponse(cert))
	}
	c.JSON(http.StatusOK, gin.H{"certificates": out, "limit": limit, "offset": offset})
}

// Document handles GET /api/v1/certificates/:number/document. The printable
// document is rendered on first request and cached in document storage; the
// response redirects to wherever the storage backend serves it from.
func (h *CertificateHandlers) Document(c *gin.Context) {
	p, scope, ok := requestIdentity(c)
	if !ok {
		return
	}

	number := c.Param("number")
	cert, err := h.certs.GetByNumberScoped(c.Request.Context(), scope, number)
	if err != nil {
		respondError(c, err)
		return
	}
	if cert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if cert.UserID != p.UserID &&
		!auth.Authorize(p, auth.ActionViewOrgAnalytics, p.OrganizationID, h.policies.Table()).Allowed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Document storage is not configured"})
		return
	}

	url, err := h.publisher.Fetch(c.Request.Context(), number)
	if err != nil {
		url, err = h.publishDocument(c.Request.Context(), scope, cert)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	c.Redirect(http.StatusFound, url)
}

// publishDocument renders and stores the document, then backfills the URL on
// the certificate row. The backfill is best-effort: the document is already
// addressable by number even if the UPDATE fails.
func (h *CertificateHandlers) publishDocument(ctx context.Context, scope tenant.Scope, cert *models.Certificate) (string, error) {
	details := documents.Details{
		LearnerName:      cert.UserID,
		CourseTitle:      cert.ClassID,
		OrganizationName: cert.OrganizationID,
	}
	if user, err := h.users.GetUserByID(ctx, cert.UserID); err == nil && user != nil {
		details.LearnerName = user.Name
	}
	if course, err := h.courses.GetByID(ctx, scope, cert.ClassID); err == nil && course != nil {
		details.CourseTitle = course.Title
	}
	if org, err := h.orgs.GetByID(ctx, scope, cert.OrganizationID); err == nil && org != nil {
		details.OrganizationName = org.DisplayName
	}

	url, err := h.publisher.Publish(ctx, cert, details)
	if err != nil {
		return "", err
	}
	if err := h.certs.SetDocumentURL(ctx, cert.CertificateNumber, url); err != nil {
		h.log.Warn("failed to record document URL",
			"certificate_number", cert.CertificateNumber, "error", err)
	}
	return url, nil
}
