package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	domain "github.com/codewarden/codewarden/internal/domain/triage"
)

type TriageRepository struct {
	db *sql.DB
}

func NewTriageRepository(db *sql.DB) *TriageRepository {
	return &TriageRepository{db: db}
}

// Save inserts a triage record
func (r *TriageRepository) Save(ctx context.Context, t *domain.Triage) error {
	const q = `
INSERT INTO scan_triage
  (id, run_id, model, result_json, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (id) DO UPDATE SET
  run_id=EXCLUDED.run_id, model=EXCLUDED.model, result_json=EXCLUDED.result_json;
`
	result := t.Result
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, t.ID, t.RunID, t.Model, result, created)
	return err
}

func (r *TriageRepository) ListByRun(ctx context.Context, runID string, limit int) ([]*domain.Triage, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, run_id, model, result_json, created_at
FROM scan_triage
WHERE run_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	return r.query(ctx, q, runID, limit)
}

// Paginate returns a page of triage records ordered by created_at desc
func (r *TriageRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Triage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, run_id, model, result_json, created_at
FROM scan_triage
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;
`
	return r.query(ctx, q, pageSize, offset)
}

func (r *TriageRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Triage, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Triage
	for rows.Next() {
		var t domain.Triage
		if err := rows.Scan(&t.ID, &t.RunID, &t.Model, &t.Result, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
