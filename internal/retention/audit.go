package retention

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditRecord is one row of the append-only retention audit log. Every
// destructive action lands here before the manager moves on.
type AuditRecord struct {
	Time        time.Time `json:"time"`
	Action      string    `json:"action"` // removed_age | removed_size | quarantined | repaired | removed_corrupt
	Fingerprint string    `json:"fingerprint"`
	BytesFreed  int64     `json:"bytes_freed,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// AuditLog appends retention actions to a JSONL file.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &AuditLog{path: path}, nil
}

// Record appends one entry. Failures are returned but callers treat
// them as non-fatal: cleanup already performed stays authoritative.
func (a *AuditLog) Record(r AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
