package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewarden/codewarden/internal/cache"
	"github.com/codewarden/codewarden/internal/domain/findings"
)

// corruptEntry mutates a finding's message without touching the stored
// checksum, so verification fails but the payload still parses.
func corruptEntry(t *testing.T, s *cache.Store, fingerprint string) {
	t.Helper()
	path := filepath.Join(s.Dir(), fingerprint+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var e cache.Entry
	require.NoError(t, json.Unmarshal(data, &e))
	require.NotEmpty(t, e.Findings)
	e.Findings[0].Message = "tampered " + e.Findings[0].Message
	out, err := json.Marshal(&e)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

type stubReanalyzer struct {
	calls int
	out   []findings.Finding
	err   error
}

func (r *stubReanalyzer) Reanalyze(_ context.Context, path string) ([]findings.Finding, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if r.out != nil {
		return r.out, nil
	}
	return []findings.Finding{
		findings.New("secrets", "hardcoded-secret", findings.SeverityHigh, path, 1, "regenerated"),
	}, nil
}

func TestIntegrityReportsOneCorruptedOfTen(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	var fps []string
	for i := 0; i < 10; i++ {
		fps = append(fps, seedEntry(t, s, fmt.Sprintf("entry-%02d", i), 0))
	}
	corruptEntry(t, s, fps[3])

	m := newManager(t, s, Policy{MaxAgeDays: 30, MinResultsToKeep: 1})
	report, err := m.Integrity(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, report.TotalFiles)
	require.Len(t, report.CorruptedFiles, 1)
	assert.Equal(t, fps[3], report.CorruptedFiles[0])
	assert.Len(t, report.ValidChecksums, 9)
	assert.NotContains(t, report.ValidChecksums, fps[3])
}

func TestIntegrityQuarantinesCorruptEntry(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	fp := seedEntry(t, s, "entry", 0)
	corruptEntry(t, s, fp)

	quarantine := filepath.Join(t.TempDir(), "quarantine")
	audit, err := NewAuditLog(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	m, err := NewManager(s, Policy{MaxAgeDays: 30}, audit, t.TempDir(), quarantine)
	require.NoError(t, err)

	report, err := m.Integrity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Quarantined)

	// Entry is gone from the store but preserved for inspection.
	_, ok := s.Get(fp)
	assert.False(t, ok)
	moved, err := filepath.Glob(filepath.Join(quarantine, fp+"_*.json"))
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestIntegrityAutoRepairsWhenSourceExists(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(src, []byte("package main\n"), 0o644))

	fp := cache.Fingerprint([]byte("repairable"), "v1")
	_, err = s.Put(fp, src, []findings.Finding{
		findings.New("secrets", "hardcoded-secret", findings.SeverityHigh, src, 1, "credential"),
	})
	require.NoError(t, err)
	corruptEntry(t, s, fp)

	re := &stubReanalyzer{}
	m := newManager(t, s, Policy{MaxAgeDays: 30},
		WithReanalyzer(re), WithAutoRepair(true))

	report, err := m.Integrity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	assert.Zero(t, report.Removed)
	assert.Equal(t, 1, re.calls)

	// The repaired entry verifies clean again.
	entry, ok := s.Get(fp)
	require.True(t, ok)
	require.Len(t, entry.Findings, 1)
	assert.Equal(t, "regenerated", entry.Findings[0].Message)
}

func TestIntegrityRemovesWhenSourceMissing(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	fp := cache.Fingerprint([]byte("orphan"), "v1")
	_, err = s.Put(fp, filepath.Join(t.TempDir(), "deleted.go"), []findings.Finding{
		findings.New("secrets", "hardcoded-secret", findings.SeverityHigh, "deleted.go", 1, "credential"),
	})
	require.NoError(t, err)
	corruptEntry(t, s, fp)

	re := &stubReanalyzer{}
	m := newManager(t, s, Policy{MaxAgeDays: 30},
		WithReanalyzer(re), WithAutoRepair(true))

	report, err := m.Integrity(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Repaired)
	assert.Equal(t, 1, report.Removed)
	assert.Zero(t, re.calls)
	_, ok := s.Get(fp)
	assert.False(t, ok)
}

func TestIntegrityWritesReportFile(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	seedEntry(t, s, "entry", 0)

	reportDir := t.TempDir()
	m, err := NewManager(s, Policy{MaxAgeDays: 30}, nil, reportDir, "")
	require.NoError(t, err)

	report, err := m.Integrity(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.ReportPath)

	data, err := os.ReadFile(report.ReportPath)
	require.NoError(t, err)
	var decoded IntegrityReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.TotalFiles)
}
