// Package telemetry provides application-level observability for EdLedger.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<EDL_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authorization decision counters (allow/deny by reason)
//   - Enrollment lifecycle transition counters
//   - Certificate issuance, verification, and expiry counters
//   - Audit ledger append failure counter (a non-zero rate means the compliance
//     record is lagging behind committed transitions)
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/courses/:id/enroll)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as enrollment or certificate identifiers.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/edledger/edledger/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.EnrollmentTransitionsTotal.WithLabelValues("in_progress", "completed").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/enrollments/:id/progress),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authorization metrics.
//
// AuthzDecisionsTotal is a CounterVec with labels {decision, reason}. decision
// is "allow" or "deny"; reason is empty for allows and one of
// cross_tenant_access / insufficient_tier / no_matching_policy for denies.
//
// Example PromQL queries:
//   - Deny rate by reason:  sum by (reason) (rate(authz_decisions_total{decision="deny"}[5m]))
//   - Alert expression:     rate(authz_decisions_total{reason="cross_tenant_access"}[15m]) > 1
var AuthzDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authz_decisions_total",
		Help: "Total number of authorization decisions, by outcome and deny reason.",
	},
	[]string{"decision", "reason"},
)

// Enrollment lifecycle metrics.
//
// EnrollmentTransitionsTotal is a CounterVec with labels {from, to} incremented
// once per applied state transition (enroll, progress start, complete, fail,
// drop, suspend, resume). Rejected transitions are not counted here; they show
// up as 409/422 responses in the HTTP metrics.
//
// Example PromQL queries:
//   - Completion rate:     rate(enrollment_transitions_total{to="completed"}[1h])
//   - Drop-out ratio:      sum(rate(enrollment_transitions_total{to="dropped"}[24h])) / sum(rate(enrollment_transitions_total{from=""}[24h]))
var EnrollmentTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Total number of applied enrollment state transitions, by source and target state.",
	},
	[]string{"from", "to"},
)

// Certificate metrics.
//
// CertificatesIssuedTotal counts successful issuances. CertificateVerificationsTotal
// is labelled {result} with valid / tampered / revoked / expired — a non-zero
// tampered rate is an incident, not noise.
//
// Example PromQL queries:
//   - Issuance rate:          rate(certificates_issued_total[24h])
//   - Tamper alert:           increase(certificate_verifications_total{result="tampered"}[1h]) > 0
var (
	CertificatesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certificates_issued_total",
			Help: "Total number of certificates issued.",
		},
	)

	CertificateVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_verifications_total",
			Help: "Total number of certificate verification requests, by result.",
		},
		[]string{"result"},
	)

	CertificatesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "certificates_expired_total",
			Help: "Total number of certificates moved to expired by the expiry job.",
		},
	)
)

// Audit ledger metrics.
//
// AuditAppendFailuresTotal counts ledger appends that failed after the
// triggering transition had already committed. Each failure is handed to the
// retry writer; AuditSpooledEntriesTotal counts entries that exhausted their
// retries and were written to the reconciliation spool for manual replay.
//
// Example PromQL queries:
//   - Alert expression:  increase(audit_append_failures_total[15m]) > 0
//   - Spool backlog:     increase(audit_spooled_entries_total[24h])
var (
	AuditAppendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_append_failures_total",
			Help: "Total number of audit ledger appends that failed after the transition committed.",
		},
	)

	AuditSpooledEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_spooled_entries_total",
			Help: "Total number of audit entries spooled for manual reconciliation after retry exhaustion.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <EDL_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database.DB)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
