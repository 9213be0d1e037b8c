package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AuditEntry is one line in the per-deal NDJSON audit log.
type AuditEntry struct {
	Timestamp time.Time      `json:"ts"`
	DealID    string         `json:"deal_id"`
	Operation string         `json:"operation"`
	Counts    map[string]int `json:"counts,omitempty"`
	Duration  int64          `json:"duration_ms"`
	Error     string         `json:"error,omitempty"`
}

// AuditLog appends one JSON line per ingestion/query invocation to
// <dealID>.audit.ndjson. Write-only from this process; consumed by external
// auditing tooling.
type AuditLog struct {
	mu     sync.Mutex
	dealID string
	path   string
}

// NewAuditLog creates the audit writer for a deal under dataDir.
func NewAuditLog(dataDir, dealID string) *AuditLog {
	return &AuditLog{
		dealID: dealID,
		path:   filepath.Join(dataDir, dealID+".audit.ndjson"),
	}
}

// Record appends one entry. An audit write failure is logged, never fatal:
// auditing must not take down an ingestion run.
func (a *AuditLog) Record(operation string, counts map[string]int, duration time.Duration, opErr error) {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		DealID:    a.dealID,
		Operation: operation,
		Counts:    counts,
		Duration:  duration.Milliseconds(),
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	if err := a.append(entry); err != nil {
		zap.L().Warn("audit: append failed", zap.String("deal", a.dealID), zap.Error(err))
	}
}

func (a *AuditLog) append(entry AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "audit: marshal entry")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrap(err, "audit: open log")
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "audit: write entry")
	}
	return nil
}
