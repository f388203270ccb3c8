package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codewarden/codewarden/internal/logging"
)

// IntegrityReport is the write-once artifact of one integrity pass.
type IntegrityReport struct {
	GeneratedAt    time.Time         `json:"generated_at"`
	TotalFiles     int               `json:"total_files"`
	CorruptedFiles []string          `json:"corrupted_files"`
	ValidChecksums map[string]string `json:"valid_checksums"`
	Quarantined    int               `json:"quarantined"`
	Repaired       int               `json:"repaired"`
	Removed        int               `json:"removed"`
	ReportPath     string            `json:"-"`
}

// Integrity verifies every cache entry's checksum. Corrupted entries
// are quarantined; with auto-repair enabled and a reanalyzer wired,
// the manager regenerates entries whose source file still exists,
// otherwise removes them. Entry state machine:
// Created -> Verified | Corrupted -> Quarantined -> Repaired | Removed.
func (m *Manager) Integrity(ctx context.Context) (*IntegrityReport, error) {
	if err := m.acquire(); err != nil {
		return nil, err
	}
	defer m.release()

	entries, err := m.store.List()
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		GeneratedAt:    time.Now().UTC(),
		TotalFiles:     len(entries),
		CorruptedFiles: []string{},
		ValidChecksums: map[string]string{},
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		sum, err := m.store.Verify(e.Fingerprint)
		if err == nil {
			report.ValidChecksums[e.Fingerprint] = sum
			continue
		}
		report.CorruptedFiles = append(report.CorruptedFiles, e.Fingerprint)
		logging.L().Warnw("integrity: corrupted entry", "fingerprint", e.Fingerprint, "err", err)
		m.handleCorrupted(ctx, e.Fingerprint, e.Path, report)
	}

	if err := m.writeReport(report); err != nil {
		// Best-effort reporting; the pass itself stays authoritative.
		logging.L().Warnw("integrity: report write failed", "err", err)
	}
	return report, nil
}

func (m *Manager) handleCorrupted(ctx context.Context, fingerprint, path string, report *IntegrityReport) {
	// Read the source path out of the corrupt entry before it moves;
	// the payload may still parse even when the checksum fails.
	sourcePath := ""
	if entry, err := m.store.Load(fingerprint); err == nil {
		sourcePath = entry.SourcePath
	}

	// Quarantine before anything destructive so the corrupt payload
	// stays inspectable.
	quarantined := false
	if m.quarantine != "" {
		if err := m.quarantineEntry(fingerprint, path); err != nil {
			logging.L().Warnw("integrity: quarantine failed", "fingerprint", fingerprint, "err", err)
		} else {
			quarantined = true
			report.Quarantined++
			m.recordAudit(AuditRecord{Action: "quarantined", Fingerprint: fingerprint})
		}
	}

	if m.autoRepair && m.reanalyzer != nil && sourcePath != "" {
		if _, statErr := os.Stat(sourcePath); statErr == nil {
			fs, reErr := m.reanalyzer.Reanalyze(ctx, sourcePath)
			if reErr == nil {
				if _, putErr := m.store.Put(fingerprint, sourcePath, fs); putErr == nil {
					report.Repaired++
					m.recordAudit(AuditRecord{Action: "repaired", Fingerprint: fingerprint})
					return
				}
			}
			logging.L().Warnw("integrity: repair failed", "fingerprint", fingerprint, "err", reErr)
		}
	}

	// No repair possible: drop the corrupt entry. If it was moved to
	// quarantine the original file is already gone.
	if !quarantined {
		if err := m.store.Remove(fingerprint); err != nil {
			logging.L().Warnw("integrity: removal failed", "fingerprint", fingerprint, "err", err)
			return
		}
	}
	report.Removed++
	m.recordAudit(AuditRecord{Action: "removed_corrupt", Fingerprint: fingerprint})
}

func (m *Manager) quarantineEntry(fingerprint, path string) error {
	if err := os.MkdirAll(m.quarantine, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(m.quarantine, fmt.Sprintf("%s_%d.json", fingerprint, time.Now().Unix()))
	return os.Rename(path, dst)
}

func (m *Manager) recordAudit(r AuditRecord) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(r); err != nil {
		logging.L().Warnw("integrity: audit write failed", "err", err)
	}
}

func (m *Manager) writeReport(report *IntegrityReport) error {
	if m.reportDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.reportDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(m.reportDir, fmt.Sprintf("integrity-%s.json", report.GeneratedAt.Format("20060102T150405Z")))
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	report.ReportPath = path
	return nil
}
