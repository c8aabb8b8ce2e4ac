// certificate_expiry.go implements the CertificateExpiry background job, which
// periodically sweeps certificates whose expiration date has passed and flips
// them from active to expired. The transition is forward-only and persisted in
// the database, so a sweep that runs twice, or on several instances at once,
// settles on the same state. The job is a no-op when certificate validity is
// not configured, so it is always safe to start regardless of deployment.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/edledger/edledger/internal/telemetry"
)

// CertificateExpirer is the repository slice the job sweeps with.
type CertificateExpirer interface {
	// ExpireDue marks active certificates past their expiration as expired and
	// returns the certificate numbers it transitioned.
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
}

// CertificateExpiry periodically expires certificates past their expiration date.
type CertificateExpiry struct {
	certs    CertificateExpirer
	interval time.Duration
	enabled  bool
	log      *slog.Logger
	stopChan chan struct{}
}

// NewCertificateExpiry creates a CertificateExpiry job. validityMonths <= 0
// means certificates never expire and the job stays idle. interval controls
// how often the sweep runs (default 24h).
func NewCertificateExpiry(certs CertificateExpirer, validityMonths int, interval time.Duration, log *slog.Logger) *CertificateExpiry {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &CertificateExpiry{
		certs:    certs,
		interval: interval,
		enabled:  validityMonths > 0,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. The loop exits when
// ctx is cancelled or Stop() is called.
func (j *CertificateExpiry) Start(ctx context.Context) {
	if !j.enabled {
		j.log.Info("certificate expiry job disabled (certificate_validity_months not set)")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info("certificate expiry job started", "interval", j.interval)

	// Run once immediately on startup
	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopChan:
			j.log.Info("certificate expiry job stopped")
			return
		case <-ctx.Done():
			j.log.Info("certificate expiry job context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (j *CertificateExpiry) Stop() {
	close(j.stopChan)
}

// sweep expires everything currently due.
func (j *CertificateExpiry) sweep(ctx context.Context) {
	numbers, err := j.certs.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		j.log.Error("certificate expiry sweep failed", "error", err)
		return
	}
	if len(numbers) == 0 {
		return
	}

	telemetry.CertificatesExpiredTotal.Add(float64(len(numbers)))
	j.log.Info("certificates expired", "count", len(numbers), "numbers", numbers)
}
