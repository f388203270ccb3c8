package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/codewarden/codewarden/internal/analyzers"
	"github.com/codewarden/codewarden/internal/application"
	"github.com/codewarden/codewarden/internal/domain/feedback"
	"github.com/codewarden/codewarden/internal/domain/findings"
	"github.com/codewarden/codewarden/internal/domain/scanfailures"
	domain "github.com/codewarden/codewarden/internal/domain/scans"
	"github.com/codewarden/codewarden/internal/logging"
	"github.com/codewarden/codewarden/internal/ml"
	"github.com/codewarden/codewarden/internal/scanner"
)

// NewLabeler adapts a classifier into the orchestrator's labeling hook.
// A nil classifier is fail-open: findings pass through unlabeled and
// the scan completes normally.
func NewLabeler(clf *ml.Classifier, featureMode string) scanner.Labeler {
	if clf == nil {
		return nil
	}
	basic := ml.NewFeatureExtractor()
	enhanced := ml.NewEnhancedExtractor()
	useEnhanced := featureMode == "enhanced" && clf.InputSize() == ml.EnhancedDim

	return func(fs []findings.Finding, fileContext []byte) []findings.Finding {
		for i := range fs {
			var v []float64
			if useEnhanced && fileContext != nil {
				ev, err := enhanced.Extract(&fs[i], fileContext)
				if err != nil {
					v = basic.Extract(&fs[i])
				} else {
					v = ev
				}
			} else {
				v = basic.Extract(&fs[i])
			}
			if err := clf.Label(&fs[i], v); err != nil {
				// Classification never blocks the scan.
				logging.L().Debugw("classify failed", "finding", fs[i].ID, "err", err)
			}
		}
		return fs
	}
}

// Service implements the scan use-cases. Safe for concurrent use.
type Service struct {
	Repo       domain.Repository
	Failures   scanfailures.Repository
	Artifacts  domain.ArtifactStore
	Clock      application.Clock
	Walker     *scanner.Walker
	Pool       *scanner.Orchestrator
	Registry   *analyzers.Registry
	Labeler    scanner.Labeler
	Classifier *ml.Classifier
	Feedback   *ml.FeedbackBuffer
	Archive    feedback.Repository
	ModelPath  string

	mu          sync.Mutex
	recent      map[domain.RunID][]findings.Finding
	recentOrder []domain.RunID
}

// recentRunResults bounds the in-memory window of labeled result sets
// kept for triage and inspection.
const recentRunResults = 16

func (s *Service) rememberResult(id domain.RunID, fs []findings.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recent == nil {
		s.recent = map[domain.RunID][]findings.Finding{}
	}
	s.recent[id] = fs
	s.recentOrder = append(s.recentOrder, id)
	for len(s.recentOrder) > recentRunResults {
		delete(s.recent, s.recentOrder[0])
		s.recentOrder = s.recentOrder[1:]
	}
}

// Results returns the labeled findings of a recent run, if still held.
func (s *Service) Results(id domain.RunID) ([]findings.Finding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.recent[id]
	return fs, ok
}

// TriggerScanCommand starts a batch scan over the given roots.
type TriggerScanCommand struct {
	Roots []string `json:"roots"`
}

// TriggerScanResult carries the persisted run plus the labeled findings.
type TriggerScanResult struct {
	Run      *domain.Run        `json:"run"`
	Findings []findings.Finding `json:"findings"`
	Skips    []scanner.Skip     `json:"skips,omitempty"`
}

// TriggerScanUntilDone runs a scan detached from the caller's request
// context, for fire-and-forget triggers from the router.
func (s *Service) TriggerScanUntilDone(cmd TriggerScanCommand) (*TriggerScanResult, error) {
	return s.TriggerScan(context.Background(), cmd)
}

// TriggerScan walks the roots, fans the candidates over the pool, and
// persists the run summary. Per-file failures never fail the run; they
// surface in the status and the failure records.
func (s *Service) TriggerScan(ctx context.Context, cmd TriggerScanCommand) (*TriggerScanResult, error) {
	now := s.Clock.Now()
	id := domain.RunID(uuid.New().String())

	run := &domain.Run{
		ID:          id,
		TriggeredAt: now,
		Roots:       cmd.Roots,
		Status:      domain.StatusRunning,
	}
	if err := s.Repo.Save(ctx, run); err != nil {
		return nil, err
	}

	candidates, skips, err := s.Walker.Walk(cmd.Roots)
	if err != nil {
		run.Status = domain.StatusFailed
		run.DurationMS = s.Clock.Now().Sub(now).Milliseconds()
		_ = s.Repo.Save(context.Background(), run)
		return nil, fmt.Errorf("walk: %w", err)
	}

	batch, err := s.Pool.Run(ctx, candidates)
	if err != nil {
		run.Status = domain.StatusFailed
		run.DurationMS = s.Clock.Now().Sub(now).Milliseconds()
		_ = s.Repo.Save(context.Background(), run)
		return nil, err
	}

	findings.Sort(batch.Findings)
	for _, f := range batch.Findings {
		run.Counts.Add(f.Severity)
		if f.Label == findings.LabelFalsePositive {
			run.Suppressed++
		}
	}
	run.Status = batch.Status
	run.FilesScanned = batch.FilesScanned
	run.FilesSkipped = batch.FilesSkipped + len(skips)
	run.FilesFailed = batch.FilesFailed
	run.CacheHits = batch.CacheHits

	s.recordFailures(string(id), batch.Failures)

	if s.Artifacts != nil {
		if url, err := s.uploadReport(ctx, run, batch.Findings); err != nil {
			logging.L().Warnw("scan: report upload failed", "run", id, "err", err)
		} else {
			run.ArtifactURL = url
		}
	}

	run.DurationMS = s.Clock.Now().Sub(now).Milliseconds()
	if err := s.Repo.Save(context.Background(), run); err != nil {
		return nil, err
	}
	s.rememberResult(id, batch.Findings)

	logging.L().Infow("scan run finished",
		"run", id,
		"status", run.Status,
		"scanned", run.FilesScanned,
		"skipped", run.FilesSkipped,
		"failed", run.FilesFailed,
		"cache_hits", run.CacheHits,
		"cache_hit_ratio", run.CacheHitRatio(),
		"findings", len(batch.Findings),
		"suppressed", run.Suppressed,
	)
	return &TriggerScanResult{Run: run, Findings: batch.Findings, Skips: append(batch.Skips, skips...)}, nil
}

func (s *Service) recordFailures(runID string, failures []scanner.FileFailure) {
	if s.Failures == nil {
		return
	}
	for _, fail := range failures {
		rec := &scanfailures.Failure{
			RunID:     runID,
			File:      fail.Path,
			Phase:     fail.Phase,
			Message:   fail.Message,
			Attempts:  fail.Attempts,
			CreatedAt: s.Clock.Now(),
		}
		if err := s.Failures.Save(context.Background(), rec); err != nil {
			logging.L().Warnw("scan: failure record not saved", "file", fail.Path, "err", err)
		}
	}
}

// uploadReport serializes the labeled result set and archives it.
func (s *Service) uploadReport(ctx context.Context, run *domain.Run, fs []findings.Finding) (string, error) {
	payload, err := json.MarshalIndent(struct {
		Run           *domain.Run        `json:"run"`
		CacheHitRatio float64            `json:"cache_hit_ratio"`
		Findings      []findings.Finding `json:"findings"`
	}{run, run.CacheHitRatio(), fs}, "", "  ")
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "codewarden-report-*.json")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	key := fmt.Sprintf("runs/%s/report.json", run.ID)
	url, err := s.Artifacts.UploadAndCleanup(ctx, name, key)
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return url, nil
}

// Reanalyze regenerates findings for a single file, labeled the same
// way a full scan would. Used by integrity auto-repair.
func (s *Service) Reanalyze(ctx context.Context, path string) ([]findings.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fs := s.Registry.AnalyzeFile(path, content)
	if s.Labeler != nil {
		fs = s.Labeler(fs, content)
	}
	findings.Sort(fs)
	return fs, nil
}

// Latest returns the most recent runs.
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.Run, error) {
	return s.Repo.Latest(ctx, limit)
}

// Get returns one run by id.
func (s *Service) Get(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	return s.Repo.Get(ctx, id)
}

// Paginate returns a page of runs, newest first.
func (s *Service) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Run, error) {
	return s.Repo.Paginate(ctx, page, pageSize)
}

// Summary aggregates runs over the last sinceDays days.
func (s *Service) Summary(ctx context.Context, sinceDays int) (domain.SummaryRow, error) {
	return s.Repo.Summary(ctx, sinceDays)
}

// ListFailures returns the per-file failure records of a run.
func (s *Service) ListFailures(ctx context.Context, runID string, limit int) ([]*scanfailures.Failure, error) {
	if s.Failures == nil {
		return nil, nil
	}
	return s.Failures.ListByRun(ctx, runID, limit)
}

// RecordFeedback appends a verdict to the on-disk buffer and archives
// it. The buffer is the source of truth for retraining; an archive
// write failure is logged, not returned.
func (s *Service) RecordFeedback(ctx context.Context, e feedback.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.Clock.Now()
	}
	if e.Source == "" {
		e.Source = feedback.SourceUser
	}
	if s.Feedback == nil {
		return fmt.Errorf("feedback buffer not configured")
	}
	if err := s.Feedback.Append(e); err != nil {
		return err
	}
	if s.Archive != nil {
		if err := s.Archive.Save(ctx, &e); err != nil {
			logging.L().Warnw("feedback archive write failed", "finding", e.FindingID, "err", err)
		}
	}
	return nil
}

// FlushFeedback drains the buffer into the classifier and persists the
// updated model. A missing classifier leaves the buffer untouched.
func (s *Service) FlushFeedback(ctx context.Context) (applied int, err error) {
	if s.Classifier == nil || s.Feedback == nil {
		return 0, nil
	}
	adapter := &ml.Adapter{Classifier: s.Classifier}
	err = s.Feedback.Drain(func(events []feedback.Event) error {
		n, applyErr := adapter.Apply(events)
		applied = n
		return applyErr
	})
	if err != nil {
		return applied, err
	}
	if applied > 0 && s.ModelPath != "" {
		if saveErr := s.Classifier.Save(s.ModelPath); saveErr != nil {
			logging.L().Warnw("model save after flush failed", "path", s.ModelPath, "err", saveErr)
		}
	}
	return applied, nil
}
