package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/codewarden/codewarden/internal/domain/findings"
	domain "github.com/codewarden/codewarden/internal/domain/scans"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, triggered_at, roots_json, status,
       files_scanned, files_skipped, files_failed, cache_hits,
       critical, high, medium, low, info, findings_total, suppressed,
       artifact_url, duration_ms`

// Save insert/update a run record. Saved twice per run: once as
// running, once with the final summary.
func (r *RunRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO scan_runs
(id, triggered_at, roots_json, status,
 files_scanned, files_skipped, files_failed, cache_hits,
 critical, high, medium, low, info, findings_total, suppressed,
 artifact_url, duration_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 files_scanned=VALUES(files_scanned), files_skipped=VALUES(files_skipped),
 files_failed=VALUES(files_failed), cache_hits=VALUES(cache_hits),
 critical=VALUES(critical), high=VALUES(high), medium=VALUES(medium),
 low=VALUES(low), info=VALUES(info),
 findings_total=VALUES(findings_total), suppressed=VALUES(suppressed),
 artifact_url=VALUES(artifact_url), duration_ms=VALUES(duration_ms);
`
	roots, err := json.Marshal(run.Roots)
	if err != nil {
		return err
	}
	triggered := run.TriggeredAt
	if triggered.IsZero() {
		triggered = time.Now()
	}
	status := stringOrDash(string(run.Status))

	_, err = r.db.ExecContext(ctx, q,
		run.ID, triggered, string(roots), status,
		run.FilesScanned, run.FilesSkipped, run.FilesFailed, run.CacheHits,
		run.Counts.Critical, run.Counts.High, run.Counts.Medium,
		run.Counts.Low, run.Counts.Info, run.Counts.Total, run.Suppressed,
		run.ArtifactURL, run.DurationMS,
	)
	return err
}

func scanRunRow(scan func(dest ...any) error) (*domain.Run, error) {
	var run domain.Run
	var roots string
	var c findings.SeverityCounts
	if err := scan(
		&run.ID, &run.TriggeredAt, &roots, &run.Status,
		&run.FilesScanned, &run.FilesSkipped, &run.FilesFailed, &run.CacheHits,
		&c.Critical, &c.High, &c.Medium, &c.Low, &c.Info, &c.Total, &run.Suppressed,
		&run.ArtifactURL, &run.DurationMS,
	); err != nil {
		return nil, err
	}
	run.Counts = c
	if roots != "" {
		_ = json.Unmarshal([]byte(roots), &run.Roots)
	}
	return &run, nil
}

// Get by ID
func (r *RunRepository) Get(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	const q = `
SELECT ` + runColumns + `
FROM scan_runs
WHERE id=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, id)
	return scanRunRow(row.Scan)
}

// Latest runs, newest first
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT ` + runColumns + `
FROM scan_runs
ORDER BY triggered_at DESC, id DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		run, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Summary aggregates run results since N days
func (r *RunRepository) Summary(ctx context.Context, sinceDays int) (domain.SummaryRow, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_runs,
       COALESCE(SUM(files_scanned),0) AS files_scanned,
       COALESCE(SUM(critical),0)      AS critical,
       COALESCE(SUM(high),0)          AS high,
       COALESCE(SUM(medium),0)        AS medium,
       COALESCE(SUM(suppressed),0)    AS suppressed
FROM scan_runs
WHERE triggered_at >= ?;
`
	row := domain.SummaryRow{Since: cut}
	if err := r.db.QueryRowContext(ctx, q, cut).Scan(
		&row.TotalRuns, &row.FilesScanned,
		&row.Critical, &row.High, &row.Medium, &row.Suppressed,
	); err != nil {
		return domain.SummaryRow{}, err
	}
	return row, nil
}

// Paginate with offset + limit (classic pagination)
func (r *RunRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Run, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT ` + runColumns + `
FROM scan_runs
ORDER BY triggered_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		run, err := scanRunRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
