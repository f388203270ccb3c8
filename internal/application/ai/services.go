package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/codewarden/codewarden/internal/application"
	"github.com/codewarden/codewarden/internal/domain/findings"
	"github.com/codewarden/codewarden/internal/domain/triage"
)

// maxTriageFindings caps how much of a run is sent to the provider.
const maxTriageFindings = 50

// Service runs AI triage over scan results and stores the summaries.
type Service struct {
	Client triage.Client
	Repo   triage.Repository
	Clock  application.Clock
	Model  string
}

// TriageRun sends the highest-severity findings of a run to the AI
// provider and persists the returned summary.
func (s *Service) TriageRun(ctx context.Context, runID string, fs []findings.Finding) (*triage.Triage, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("ai triage not configured")
	}

	findings.Sort(fs)
	if len(fs) > maxTriageFindings {
		fs = fs[:maxTriageFindings]
	}
	report, err := json.Marshal(fs)
	if err != nil {
		return nil, err
	}

	result, err := s.Client.Triage(ctx, string(report))
	if err != nil {
		return nil, err
	}

	t := &triage.Triage{
		ID:        triage.TriageID(uuid.New().String()),
		RunID:     runID,
		Model:     s.Model,
		Result:    result,
		CreatedAt: s.Clock.Now(),
	}
	if s.Repo != nil {
		if err := s.Repo.Save(ctx, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ListByRun returns stored triage summaries for a run.
func (s *Service) ListByRun(ctx context.Context, runID string, limit int) ([]*triage.Triage, error) {
	if s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListByRun(ctx, runID, limit)
}

// Paginate returns stored triage summaries, newest first.
func (s *Service) Paginate(ctx context.Context, page, pageSize int) ([]*triage.Triage, error) {
	if s.Repo == nil {
		return nil, nil
	}
	return s.Repo.Paginate(ctx, page, pageSize)
}
