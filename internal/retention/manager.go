package retention

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/codewarden/codewarden/internal/cache"
	"github.com/codewarden/codewarden/internal/domain/findings"
	"github.com/codewarden/codewarden/internal/logging"
)

// ErrPassInProgress is returned when a cleanup or integrity pass is
// requested while another pass is running. Requests coalesce instead of
// queueing.
var ErrPassInProgress = errors.New("retention pass already in progress")

// Policy is read-only during a pass. Precedence: keep floor > age > size.
type Policy struct {
	MaxAgeDays       int
	MaxSizeMB        int
	MinResultsToKeep int
}

// Validate rejects unusable policies before any work starts.
func (p Policy) Validate() error {
	if p.MaxAgeDays < 0 || p.MaxSizeMB < 0 || p.MinResultsToKeep < 0 {
		return fmt.Errorf("retention policy values must be >= 0")
	}
	return nil
}

// Reanalyzer regenerates findings for a source file, used by
// auto-repair. Implemented by the scan application service.
type Reanalyzer interface {
	Reanalyze(ctx context.Context, path string) ([]findings.Finding, error)
}

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	EntriesBefore int   `json:"entries_before"`
	EntriesAfter  int   `json:"entries_after"`
	RemovedByAge  int   `json:"removed_by_age"`
	RemovedBySize int   `json:"removed_by_size"`
	BytesFreed    int64 `json:"bytes_freed"`
	DurationMS    int64 `json:"duration_ms"`
}

// Manager enforces retention and integrity policy over the result
// cache. The cache never prunes itself; all eviction flows through
// here. At most one pass runs at a time; it may overlap with scanning
// because it only touches finalized entries.
type Manager struct {
	store      *cache.Store
	policy     Policy
	audit      *AuditLog
	reanalyzer Reanalyzer
	reportDir  string
	quarantine string
	autoRepair bool

	running atomic.Bool
}

// Option configures optional collaborators.
type Option func(*Manager)

// WithReanalyzer enables auto-repair via re-analysis.
func WithReanalyzer(r Reanalyzer) Option {
	return func(m *Manager) { m.reanalyzer = r }
}

// WithAutoRepair toggles repair of corrupted entries.
func WithAutoRepair(on bool) Option {
	return func(m *Manager) { m.autoRepair = on }
}

// NewManager validates the policy and wires the manager.
func NewManager(store *cache.Store, policy Policy, audit *AuditLog, reportDir, quarantineDir string, opts ...Option) (*Manager, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		store:      store,
		policy:     policy,
		audit:      audit,
		reportDir:  reportDir,
		quarantine: quarantineDir,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Manager) acquire() error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrPassInProgress
	}
	return nil
}

func (m *Manager) release() {
	m.running.Store(false)
}

// Cleanup runs one retention pass: age first, then size, never touching
// the MinResultsToKeep newest entries.
func (m *Manager) Cleanup(ctx context.Context) (*CleanupReport, error) {
	if err := m.acquire(); err != nil {
		return nil, err
	}
	defer m.release()

	start := time.Now()
	entries, err := m.store.List() // newest first
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{EntriesBefore: len(entries)}

	// The floor is absolute: the newest MinResultsToKeep entries are
	// untouchable regardless of age or size pressure.
	candidates := entries
	if len(entries) > m.policy.MinResultsToKeep {
		candidates = entries[m.policy.MinResultsToKeep:]
	} else {
		candidates = nil
	}

	cutoff := time.Now().Add(-time.Duration(m.policy.MaxAgeDays) * 24 * time.Hour)
	var kept []cache.EntryInfo
	for _, e := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !e.CreatedAt.After(cutoff) {
			if err := m.removeEntry(e, "removed_age"); err != nil {
				logging.L().Warnw("retention: age removal failed", "fingerprint", e.Fingerprint, "err", err)
				kept = append(kept, e)
				continue
			}
			report.RemovedByAge++
			report.BytesFreed += e.SizeBytes
		} else {
			kept = append(kept, e)
		}
	}

	// Size pressure: remove oldest-first until under budget. A zero
	// MaxSizeMB means unbounded.
	maxBytes := int64(m.policy.MaxSizeMB) * 1024 * 1024
	if maxBytes == 0 {
		maxBytes = 1<<63 - 1
	}
	var total int64
	for _, e := range entries[:min(len(entries), m.policy.MinResultsToKeep)] {
		total += e.SizeBytes
	}
	for _, e := range kept {
		total += e.SizeBytes
	}
	for i := len(kept) - 1; i >= 0 && total > maxBytes; i-- {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		e := kept[i]
		if err := m.removeEntry(e, "removed_size"); err != nil {
			logging.L().Warnw("retention: size removal failed", "fingerprint", e.Fingerprint, "err", err)
			continue
		}
		report.RemovedBySize++
		report.BytesFreed += e.SizeBytes
		total -= e.SizeBytes
	}

	report.EntriesAfter = report.EntriesBefore - report.RemovedByAge - report.RemovedBySize
	report.DurationMS = time.Since(start).Milliseconds()
	logging.L().Infow("retention: cleanup pass done",
		"before", report.EntriesBefore,
		"after", report.EntriesAfter,
		"removed_age", report.RemovedByAge,
		"removed_size", report.RemovedBySize,
		"bytes_freed", report.BytesFreed,
	)
	return report, nil
}

func (m *Manager) removeEntry(e cache.EntryInfo, action string) error {
	if err := m.store.Remove(e.Fingerprint); err != nil {
		return err
	}
	if m.audit != nil {
		if err := m.audit.Record(AuditRecord{Action: action, Fingerprint: e.Fingerprint, BytesFreed: e.SizeBytes}); err != nil {
			logging.L().Warnw("retention: audit write failed", "err", err)
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
