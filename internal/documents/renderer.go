// Package documents renders the printable certificate document and publishes
// it to the configured storage backend. The document is the human-facing
// artifact handed to auditors and learners; the database row, with its
// verification hash, remains the source of truth. The rendered file embeds the
// certificate number and verification hash so a printed copy can be checked
// against the verification endpoint.
package documents

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/storage"
)

// Details carries the display fields the certificate row does not hold.
type Details struct {
	LearnerName      string
	CourseTitle      string
	OrganizationName string
}

// Publisher renders certificate documents and stores them. Document URLs come
// from the storage backend, which knows whether it serves directly or through
// presigned links.
type Publisher struct {
	store  storage.Storage
	urlTTL time.Duration
	log    *slog.Logger
}

// NewPublisher creates a Publisher writing through the given storage backend.
func NewPublisher(store storage.Storage, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		store:  store,
		urlTTL: 24 * time.Hour,
		log:    log,
	}
}

// Publish renders the document for cert, uploads it, and returns the URL where
// it can be fetched. The storage key is derived from the certificate number,
// so re-publishing the same certificate overwrites the previous rendering.
func (p *Publisher) Publish(ctx context.Context, cert *models.Certificate, details Details) (string, error) {
	var buf bytes.Buffer
	if err := certificateTmpl.Execute(&buf, templateData{
		Certificate: cert,
		Details:     details,
		IssueDate:   cert.IssueDate.Format("January 2, 2006"),
		Expiration:  formatExpiration(cert.ExpirationDate),
	}); err != nil {
		return "", fmt.Errorf("failed to render certificate document: %w", err)
	}

	key := DocumentKey(cert.CertificateNumber)
	result, err := p.store.Upload(ctx, key, &buf, int64(buf.Len()))
	if err != nil {
		return "", fmt.Errorf("failed to store certificate document: %w", err)
	}

	url, err := p.store.GetURL(ctx, result.Path, p.urlTTL)
	if err != nil {
		return "", fmt.Errorf("failed to resolve certificate document URL: %w", err)
	}

	p.log.Info("certificate document published",
		"certificate_number", cert.CertificateNumber,
		"path", result.Path,
		"size", result.Size)
	return url, nil
}

// Fetch returns a fresh URL for an already published document.
func (p *Publisher) Fetch(ctx context.Context, certificateNumber string) (string, error) {
	key := DocumentKey(certificateNumber)
	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("no document published for certificate %s", certificateNumber)
	}
	return p.store.GetURL(ctx, key, p.urlTTL)
}

// DocumentKey returns the storage path for a certificate's document.
func DocumentKey(certificateNumber string) string {
	return "certificates/" + strings.ToUpper(certificateNumber) + ".html"
}

func formatExpiration(t *time.Time) string {
	if t == nil {
		return "No expiration"
	}
	return t.Format("January 2, 2006")
}

type templateData struct {
	Certificate *models.Certificate
	Details     Details
	IssueDate   string
	Expiration  string
}

var certificateTmpl = template.Must(template.New("certificate").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Certificate {{.Certificate.CertificateNumber}}</title>
<style>
body { font-family: Georgia, serif; max-width: 48em; margin: 4em auto; text-align: center; }
.number { font-family: monospace; font-size: 1.1em; }
.hash { font-family: monospace; font-size: 0.7em; color: #666; word-break: break-all; }
.credits { font-size: 1.4em; }
</style>
</head>
<body>
<h1>Certificate of Completion</h1>
<p>{{.Details.OrganizationName}} certifies that</p>
<h2>{{.Details.LearnerName}}</h2>
<p>has successfully completed</p>
<h3>{{.Details.CourseTitle}}</h3>
<p class="credits">{{printf "%.2f" .Certificate.CPECreditsAwarded}} CPE credits</p>
<p>Issued {{.IssueDate}} &middot; {{.Expiration}}</p>
<p class="number">{{.Certificate.CertificateNumber}}</p>
<p class="hash">Verification hash: {{.Certificate.VerificationHash}}</p>
</body>
</html>
`))
