package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewarden/codewarden/internal/domain/findings"
)

// Fingerprint derives the cache key: content hash plus analyzer-set
// version, so a rule-set upgrade invalidates every stale entry.
func Fingerprint(content []byte, analyzerVersion string) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x-%s", sum[:16], analyzerVersion)
}

// FingerprintFromSum builds the key from a precomputed content hash,
// used by the streaming path which hashes incrementally.
func FingerprintFromSum(sum [32]byte, analyzerVersion string) string {
	return fmt.Sprintf("%x-%s", sum[:16], analyzerVersion)
}

// Entry is one persisted result set. Immutable once written.
type Entry struct {
	Fingerprint string             `json:"fingerprint"`
	SourcePath  string             `json:"source_path,omitempty"`
	Findings    []findings.Finding `json:"findings"`
	Checksum    string             `json:"checksum"`
	CreatedAt   time.Time          `json:"created_at"`
	SizeBytes   int64              `json:"size_bytes"`
}

// EntryInfo is the listing view used by retention.
type EntryInfo struct {
	Fingerprint string
	Path        string
	CreatedAt   time.Time
	SizeBytes   int64
}

// Store is the content-addressed on-disk cache. Reads are concurrent;
// writes are serialized per fingerprint and commit atomically via
// rename. The store never prunes itself; retention owns eviction.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore opens (and creates) the results directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, locks: map[string]*sync.Mutex{}}, nil
}

// Dir returns the results directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) entryPath(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".json")
}

func (s *Store) lockFor(fingerprint string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[fingerprint]
	if !ok {
		l = &sync.Mutex{}
		s.locks[fingerprint] = l
	}
	return l
}

// checksum covers the canonical findings payload.
func checksum(fs []findings.Finding) (string, error) {
	payload, err := json.Marshal(fs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum), nil
}

// Get returns the cached findings for a fingerprint. A missing file,
// malformed payload, wrong fingerprint, or failed checksum is a miss,
// never an error: the caller just re-analyzes.
func (s *Store) Get(fingerprint string) (*Entry, bool) {
	data, err := os.ReadFile(s.entryPath(fingerprint))
	if err != nil {
		s.misses.Add(1)
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		s.misses.Add(1)
		return nil, false
	}
	if e.Fingerprint != fingerprint {
		s.misses.Add(1)
		return nil, false
	}
	sum, err := checksum(e.Findings)
	if err != nil || sum != e.Checksum {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return &e, true
}

// Put persists a finding set under the fingerprint. Concurrent writers
// for the same fingerprint coalesce; last writer wins, which is safe
// because identical content produces identical findings.
func (s *Store) Put(fingerprint, sourcePath string, fs []findings.Finding) (*Entry, error) {
	l := s.lockFor(fingerprint)
	l.Lock()
	defer l.Unlock()

	sum, err := checksum(fs)
	if err != nil {
		return nil, err
	}
	e := Entry{
		Fingerprint: fingerprint,
		SourcePath:  sourcePath,
		Findings:    fs,
		Checksum:    sum,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return nil, err
	}
	e.SizeBytes = int64(len(data))
	// SizeBytes participates in the payload, so marshal again after
	// setting it.
	data, err = json.Marshal(&e)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, "."+fingerprint+".tmp-")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, err
	}
	if err := os.Rename(tmpName, s.entryPath(fingerprint)); err != nil {
		os.Remove(tmpName)
		return nil, err
	}
	return &e, nil
}

// Remove deletes an entry file. Missing entries are not an error.
func (s *Store) Remove(fingerprint string) error {
	err := os.Remove(s.entryPath(fingerprint))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List returns entry metadata sorted newest first.
func (s *Store) List() ([]EntryInfo, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []EntryInfo
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		fp := strings.TrimSuffix(d.Name(), ".json")
		info := EntryInfo{Fingerprint: fp, Path: filepath.Join(s.dir, d.Name())}
		if fi, err := d.Info(); err == nil {
			info.SizeBytes = fi.Size()
			info.CreatedAt = fi.ModTime().UTC()
		}
		// Entry timestamps beat file mtimes when readable.
		if data, err := os.ReadFile(info.Path); err == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil && !e.CreatedAt.IsZero() {
				info.CreatedAt = e.CreatedAt
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Verify re-reads an entry and recomputes its checksum. Returns the
// checksum on success.
func (s *Store) Verify(fingerprint string) (string, error) {
	data, err := os.ReadFile(s.entryPath(fingerprint))
	if err != nil {
		return "", err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("entry %s: malformed payload: %w", fingerprint, err)
	}
	sum, err := checksum(e.Findings)
	if err != nil {
		return "", err
	}
	if sum != e.Checksum {
		return "", fmt.Errorf("entry %s: checksum mismatch", fingerprint)
	}
	return sum, nil
}

// Load reads an entry without hit/miss accounting, for retention use.
func (s *Store) Load(fingerprint string) (*Entry, error) {
	data, err := os.ReadFile(s.entryPath(fingerprint))
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Stats returns cumulative hit/miss counters.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}
