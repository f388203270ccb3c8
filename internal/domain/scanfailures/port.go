package scanfailures

import (
	"context"
)

// Repository defines persistence for scan failures
type Repository interface {
	Save(ctx context.Context, f *Failure) error
	ListByRun(ctx context.Context, runID string, limit int) ([]*Failure, error)
}
