package scans

import (
	"context"
	"time"
)

// Repository port for scan run persistence.
type Repository interface {
	Save(ctx context.Context, r *Run) error
	Get(ctx context.Context, id RunID) (*Run, error)
	Latest(ctx context.Context, limit int) ([]*Run, error)
	Summary(ctx context.Context, sinceDays int) (SummaryRow, error)
	Paginate(ctx context.Context, page, pageSize int) ([]*Run, error)
}

// ArtifactStore port for archiving run reports to object storage.
type ArtifactStore interface {
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}

// SummaryRow aggregates runs over a window.
type SummaryRow struct {
	TotalRuns    int       `json:"total_runs"`
	FilesScanned int       `json:"files_scanned"`
	Critical     int       `json:"critical"`
	High         int       `json:"high"`
	Medium       int       `json:"medium"`
	Suppressed   int       `json:"suppressed"`
	Since        time.Time `json:"since"`
}
