package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewarden/codewarden/internal/cache"
	"github.com/codewarden/codewarden/internal/domain/findings"
)

func seedEntry(t *testing.T, s *cache.Store, name string, age time.Duration) string {
	t.Helper()
	fp := cache.Fingerprint([]byte(name), "v1")
	_, err := s.Put(fp, name+".go", []findings.Finding{
		findings.New("secrets", "hardcoded-secret", findings.SeverityHigh, name+".go", 1, "credential "+name),
	})
	require.NoError(t, err)
	backdateEntry(t, s, fp, time.Now().Add(-age))
	return fp
}

// backdateEntry rewrites an entry's created_at. The checksum covers the
// findings payload only, so the entry stays valid.
func backdateEntry(t *testing.T, s *cache.Store, fingerprint string, at time.Time) {
	t.Helper()
	path := filepath.Join(s.Dir(), fingerprint+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var e cache.Entry
	require.NoError(t, json.Unmarshal(data, &e))
	e.CreatedAt = at.UTC()
	out, err := json.Marshal(&e)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func newManager(t *testing.T, s *cache.Store, p Policy, opts ...Option) *Manager {
	t.Helper()
	audit, err := NewAuditLog(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	m, err := NewManager(s, p, audit, t.TempDir(), filepath.Join(t.TempDir(), "quarantine"), opts...)
	require.NoError(t, err)
	return m
}

func TestCleanupKeepsFloorRegardlessOfAge(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	// 20 entries, oldest first gets the largest age.
	for i := 0; i < 20; i++ {
		seedEntry(t, s, fmt.Sprintf("entry-%02d", i), time.Duration(20-i)*24*time.Hour)
	}

	m := newManager(t, s, Policy{MaxAgeDays: 0, MaxSizeMB: 0, MinResultsToKeep: 5})
	report, err := m.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, report.EntriesBefore)
	assert.Equal(t, 15, report.RemovedByAge)
	assert.Equal(t, 5, report.EntriesAfter)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 5)
	// The survivors are the 5 newest.
	for _, info := range infos {
		assert.True(t, info.CreatedAt.After(time.Now().Add(-6*24*time.Hour)),
			"expected a recent entry, got %s", info.CreatedAt)
	}
}

func seedLargeEntry(t *testing.T, s *cache.Store, name string, age time.Duration) string {
	t.Helper()
	fp := cache.Fingerprint([]byte(name), "v1")
	big := make([]byte, 200*1024)
	for i := range big {
		big[i] = 'a' + byte(i%26)
	}
	_, err := s.Put(fp, name+".go", []findings.Finding{
		findings.New("performance", "oversized-line", findings.SeverityInfo, name+".go", 1, string(big)),
	})
	require.NoError(t, err)
	backdateEntry(t, s, fp, time.Now().Add(-age))
	return fp
}

func TestCleanupBySizeRemovesOldestFirst(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	// ~200KB each, 10 entries: ~2MB total against a 1MB budget.
	newest := map[string]bool{}
	for i := 0; i < 10; i++ {
		fp := seedLargeEntry(t, s, fmt.Sprintf("entry-%02d", i), time.Duration(10-i)*time.Hour)
		if i >= 7 {
			newest[fp] = true
		}
	}

	m := newManager(t, s, Policy{MaxAgeDays: 365, MaxSizeMB: 1, MinResultsToKeep: 3})
	report, err := m.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.RemovedByAge)
	assert.GreaterOrEqual(t, report.RemovedBySize, 1)
	assert.Greater(t, report.BytesFreed, int64(0))

	infos, err := s.List()
	require.NoError(t, err)
	var total int64
	for _, info := range infos {
		total += info.SizeBytes
	}
	assert.LessOrEqual(t, total, int64(1024*1024))

	// The 3 newest (the floor) always survive.
	for _, info := range infos[:3] {
		assert.True(t, newest[info.Fingerprint], "floor entry %s should be among the newest", info.Fingerprint)
	}
}

func TestCleanupEmptyStoreIsNoop(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	m := newManager(t, s, Policy{MaxAgeDays: 0, MinResultsToKeep: 0})
	report, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.EntriesBefore)
	assert.Zero(t, report.RemovedByAge)
}

func TestPassesCoalesce(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	m := newManager(t, s, Policy{MaxAgeDays: 30, MinResultsToKeep: 1})

	require.NoError(t, m.acquire())
	_, err = m.Cleanup(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)
	_, err = m.Integrity(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)
	m.release()

	_, err = m.Cleanup(context.Background())
	assert.NoError(t, err)
}

func TestNewManagerRejectsInvalidPolicy(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewManager(s, Policy{MaxAgeDays: -1}, nil, "", "")
	assert.Error(t, err)
}

func TestCleanupWritesAuditRecords(t *testing.T) {
	s, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		seedEntry(t, s, fmt.Sprintf("entry-%d", i), 48*time.Hour)
	}

	auditPath := filepath.Join(t.TempDir(), "audit.log")
	audit, err := NewAuditLog(auditPath)
	require.NoError(t, err)
	m, err := NewManager(s, Policy{MaxAgeDays: 1, MinResultsToKeep: 0}, audit, "", "")
	require.NoError(t, err)

	report, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.RemovedByAge)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Equal(t, 3, len(splitLines(data)))
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out
}
