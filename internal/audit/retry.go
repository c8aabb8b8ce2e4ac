// Package audit handles the recovery path for compliance ledger appends that
// fail after their triggering transition has already committed. The ledger is
// the system of record for regulators, so a lost entry is not acceptable: a
// failed append is queued here, retried against the database with exponential
// backoff, and spooled to a newline-delimited JSON file for manual replay if
// the retries are exhausted. The spool is deliberately a local file rather
// than another database table; when appends are failing, the database is the
// thing that cannot be trusted.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/edledger/edledger/internal/db/models"
	"github.com/edledger/edledger/internal/safego"
	"github.com/edledger/edledger/internal/telemetry"
)

// Appender is the slice of the audit repository the writer retries against.
type Appender interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
}

// RetryConfig holds retry writer settings.
type RetryConfig struct {
	// MaxRetries is the number of delivery attempts per entry before spooling.
	MaxRetries int
	// BaseDelay is the first backoff interval; it doubles per attempt.
	BaseDelay time.Duration
	// SpoolPath is the reconciliation spool file (JSON lines, append-only).
	SpoolPath string
	// QueueSize bounds the in-memory queue. A full queue spools immediately.
	QueueSize int
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.SpoolPath == "" {
		c.SpoolPath = "audit-reconcile.jsonl"
	}
	return c
}

// RetryWriter re-delivers failed ledger appends in the background.
type RetryWriter struct {
	cfg   RetryConfig
	store Appender
	log   *slog.Logger

	queue     chan *models.AuditEntry
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	spoolMu   sync.Mutex
}

// NewRetryWriter creates a RetryWriter and starts its delivery goroutine.
func NewRetryWriter(cfg RetryConfig, store Appender, log *slog.Logger) *RetryWriter {
	if log == nil {
		log = slog.Default()
	}
	w := &RetryWriter{
		cfg:     cfg.withDefaults(),
		store:   store,
		log:     log,
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	w.queue = make(chan *models.AuditEntry, w.cfg.QueueSize)
	safego.Go(w.run)
	return w
}

// Enqueue hands over an entry whose append already failed once. Never blocks:
// if the queue is full the entry goes straight to the spool, because a full
// queue means the database has been down for a while already.
func (w *RetryWriter) Enqueue(entry *models.AuditEntry) {
	select {
	case <-w.closeCh:
		w.spool(entry)
		return
	default:
	}

	select {
	case w.queue <- entry:
	default:
		w.log.Warn("audit retry queue full, spooling entry directly",
			"action", entry.Action, "user_id", entry.UserID)
		w.spool(entry)
	}
}

func (w *RetryWriter) run() {
	defer close(w.doneCh)
	for {
		select {
		case entry := <-w.queue:
			w.deliver(entry)
		case <-w.closeCh:
			// Drain whatever is queued; anything undeliverable gets spooled
			// by deliver's exhaustion path.
			for {
				select {
				case entry := <-w.queue:
					w.deliver(entry)
				default:
					return
				}
			}
		}
	}
}

// deliver retries the append with exponential backoff, spooling on exhaustion.
func (w *RetryWriter) deliver(entry *models.AuditEntry) {
	delay := w.cfg.BaseDelay
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.store.Append(ctx, entry)
		cancel()
		if err == nil {
			w.log.Info("audit entry recovered after retry",
				"action", entry.Action, "user_id", entry.UserID, "attempt", attempt)
			return
		}

		w.log.Warn("audit retry failed",
			"action", entry.Action, "attempt", attempt, "max", w.cfg.MaxRetries, "error", err)

		if attempt == w.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-w.closeCh:
			// Shutting down; skip the remaining backoff and spool now.
			w.spool(entry)
			return
		}
		delay *= 2
	}
	w.spool(entry)
}

// spool appends the entry to the reconciliation file as one JSON line. Spool
// failures are logged at error level with the full entry so the record exists
// at least in the log stream.
func (w *RetryWriter) spool(entry *models.AuditEntry) {
	telemetry.AuditSpooledEntriesTotal.Inc()

	w.spoolMu.Lock()
	defer w.spoolMu.Unlock()

	f, err := os.OpenFile(w.cfg.SpoolPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		w.logSpoolFailure(entry, err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(spoolRecord{SpooledAt: time.Now().UTC(), Entry: entry})
	if err != nil {
		w.logSpoolFailure(entry, err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		w.logSpoolFailure(entry, err)
		return
	}

	w.log.Error("audit entry spooled for manual reconciliation",
		"action", entry.Action, "user_id", entry.UserID, "class_id", entry.ClassID,
		"spool_path", w.cfg.SpoolPath)
}

func (w *RetryWriter) logSpoolFailure(entry *models.AuditEntry, err error) {
	w.log.Error("failed to spool audit entry; record exists only in this log line",
		"error", err,
		"organization_id", entry.OrganizationID,
		"user_id", entry.UserID,
		"class_id", entry.ClassID,
		"action", entry.Action,
		"cpe_credits", entry.CPECreditsEarned)
}

// spoolRecord is the on-disk shape of one spooled entry.
type spoolRecord struct {
	SpooledAt time.Time          `json:"spooled_at"`
	Entry     *models.AuditEntry `json:"entry"`
}

// Close stops accepting entries, drains the queue, and waits for the delivery
// goroutine to finish.
func (w *RetryWriter) Close() error {
	w.closeOnce.Do(func() { close(w.closeCh) })
	select {
	case <-w.doneCh:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("audit retry writer did not drain within 30s")
	}
}
