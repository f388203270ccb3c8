package scans

import (
	"time"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// RunID identifier type for a scan run.
type RunID string

// Status enum.
type Status string

const (
	StatusRunning        Status = "running"
	StatusCompleted      Status = "completed"
	StatusPartialFailure Status = "completed_with_partial_failure"
	StatusCanceled       Status = "canceled"
	StatusFailed         Status = "failed"
)

// Aggregate root: ScanRun. One row per batch scan, carrying the run
// summary that reporting consumes.
type Run struct {
	ID           RunID                   `json:"id"`
	TriggeredAt  time.Time               `json:"triggered_at"`
	Roots        []string                `json:"roots"`
	Status       Status                  `json:"status"`
	FilesScanned int                     `json:"files_scanned"`
	FilesSkipped int                     `json:"files_skipped"`
	FilesFailed  int                     `json:"files_failed"`
	CacheHits    int                     `json:"cache_hits"`
	Counts       findings.SeverityCounts `json:"counts"`
	Suppressed   int                     `json:"suppressed"`
	ArtifactURL  string                  `json:"artifact_url,omitempty"`
	DurationMS   int64                   `json:"duration_ms"`
}

// CacheHitRatio of the run, in [0, 1]. FilesScanned already includes
// cache hits, so a fully cached run reports 1.0.
func (r *Run) CacheHitRatio() float64 {
	if r.FilesScanned == 0 {
		return 0
	}
	return float64(r.CacheHits) / float64(r.FilesScanned)
}
