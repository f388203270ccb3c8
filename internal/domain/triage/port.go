package triage

import (
	"context"
	"errors"
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// Client port for the AI provider.
type Client interface {
	Triage(ctx context.Context, report string) (string, error)
}

// Repository port for stored triage results.
type Repository interface {
	Save(ctx context.Context, t *Triage) error
	ListByRun(ctx context.Context, runID string, limit int) ([]*Triage, error)
	Paginate(ctx context.Context, page, pageSize int) ([]*Triage, error)
}
