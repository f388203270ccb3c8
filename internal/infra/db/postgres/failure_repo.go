package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/codewarden/codewarden/internal/domain/scanfailures"
)

type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.Failure) error {
	const q = `
INSERT INTO scan_failures
  (run_id, file, phase, message, attempts, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, f.RunID, f.File, f.Phase, f.Message, f.Attempts, created)
	return err
}

func (r *FailureRepository) ListByRun(ctx context.Context, runID string, limit int) ([]*domain.Failure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, run_id, file, phase, message, attempts, created_at
FROM scan_failures
WHERE run_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Failure
	for rows.Next() {
		var f domain.Failure
		if err := rows.Scan(&f.ID, &f.RunID, &f.File, &f.Phase, &f.Message, &f.Attempts, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
