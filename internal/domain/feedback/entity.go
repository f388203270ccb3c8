package feedback

import (
	"context"
	"time"
)

// Source of a feedback event.
type Source string

const (
	SourceUser      Source = "user"
	SourceHeuristic Source = "heuristic"
	SourceExpert    Source = "expert"
)

// Event records a user's verdict on a finding. Events are append-only:
// the buffer on disk and the archive table only ever grow.
type Event struct {
	FindingID    string    `json:"finding_id"`
	RunID        string    `json:"run_id,omitempty"`
	Features     []float64 `json:"features"`
	TruePositive bool      `json:"true_positive"`
	Source       Source    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository port for the feedback archive.
type Repository interface {
	Save(ctx context.Context, e *Event) error
	Recent(ctx context.Context, limit int) ([]*Event, error)
}
