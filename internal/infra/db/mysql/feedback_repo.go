package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domain "github.com/codewarden/codewarden/internal/domain/feedback"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Save archives one feedback event. The table is append-only; the
// on-disk buffer stays the retraining source of truth.
func (r *FeedbackRepository) Save(ctx context.Context, e *domain.Event) error {
	const q = `
INSERT INTO finding_feedback
  (finding_id, run_id, features_json, true_positive, source, created_at)
VALUES (?,?,?,?,?,?)
`
	features, err := json.Marshal(e.Features)
	if err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = r.db.ExecContext(ctx, q,
		stringOrDash(e.FindingID), e.RunID, string(features),
		e.TruePositive, stringOrDash(string(e.Source)), created,
	)
	return err
}

// Recent returns the latest archived events.
func (r *FeedbackRepository) Recent(ctx context.Context, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT finding_id, run_id, features_json, true_positive, source, created_at
FROM finding_feedback
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		var features string
		if err := rows.Scan(&e.FindingID, &e.RunID, &features, &e.TruePositive, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		if features != "" {
			_ = json.Unmarshal([]byte(features), &e.Features)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
