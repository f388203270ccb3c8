package scanner

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codewarden/codewarden/internal/analyzers"
	"github.com/codewarden/codewarden/internal/cache"
	"github.com/codewarden/codewarden/internal/domain/findings"
	"github.com/codewarden/codewarden/internal/domain/scans"
	"github.com/codewarden/codewarden/internal/logging"
)

// Labeler classifies a slice of findings. fileContext carries the
// analyzed bytes when available and nil when only basic features can
// be extracted.
type Labeler func(fs []findings.Finding, fileContext []byte) []findings.Finding

// Options bound the orchestrator's resource use.
type Options struct {
	MaxParallel        int           // 0 derives from core count
	MemoryLimitMB      int           // 0 = unbounded
	StreamingThreshold int64         // above this, files are chunked
	ChunkSize          int           // bytes per streamed chunk
	FileTimeout        time.Duration // 0 = none
	BatchTimeout       time.Duration // 0 = none
	Aggressive         bool          // skip deep-context passes on oversized files
}

// FileFailure records one file that could not be analyzed.
type FileFailure struct {
	Path     string `json:"path"`
	Phase    string `json:"phase"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// Batch is the aggregate outcome of one orchestrated run. Partial
// results survive cancellation and per-file failures.
type Batch struct {
	Findings     []findings.Finding
	FilesScanned int
	FilesSkipped int
	FilesFailed  int
	CacheHits    int
	Skips        []Skip
	Failures     []FileFailure
	Status       scans.Status
}

// Orchestrator fans candidates out over a bounded worker pool, consults
// the result cache before analyzing, and isolates per-file failures.
type Orchestrator struct {
	registry *analyzers.Registry
	store    *cache.Store
	labeler  Labeler
	opts     Options

	mu       sync.Mutex
	inflight map[string]bool
}

// NewOrchestrator wires the pool. labeler may be nil; findings then
// pass through unlabeled.
func NewOrchestrator(registry *analyzers.Registry, store *cache.Store, labeler Labeler, opts Options) *Orchestrator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 * 1024
	}
	if opts.StreamingThreshold <= 0 {
		opts.StreamingThreshold = 2 * 1024 * 1024
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		labeler:  labeler,
		opts:     opts,
		inflight: map[string]bool{},
	}
}

func (o *Orchestrator) workers() int {
	n := runtime.NumCPU()
	if o.opts.MaxParallel > 0 && o.opts.MaxParallel < n {
		n = o.opts.MaxParallel
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run analyzes every candidate at most once and returns the aggregate.
// Cancellation is honored between files; work already finished stays in
// the batch. The returned error is nil even on partial failure; the
// batch status carries the distinction.
func (o *Orchestrator) Run(ctx context.Context, candidates []Candidate) (*Batch, error) {
	if o.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.BatchTimeout)
		defer cancel()
	}

	batch := &Batch{}
	var bm sync.Mutex

	// Memory backpressure: each file acquires a weight before running,
	// so oversized batches shrink effective concurrency instead of
	// aborting.
	var mem *semaphore.Weighted
	memLimit := int64(o.opts.MemoryLimitMB) * 1024 * 1024
	if memLimit > 0 {
		mem = semaphore.NewWeighted(memLimit)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())

	for _, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		c := c
		if !o.claim(c.Path) {
			continue
		}
		g.Go(func() error {
			defer o.done(c.Path)
			if gctx.Err() != nil {
				return nil
			}

			weight := o.weightFor(c, memLimit)
			if mem != nil {
				if err := mem.Acquire(gctx, weight); err != nil {
					return nil
				}
				defer mem.Release(weight)
			}

			fs, outcome := o.scanOne(gctx, c)
			bm.Lock()
			defer bm.Unlock()
			switch {
			case outcome.failure != nil:
				batch.FilesFailed++
				batch.Failures = append(batch.Failures, *outcome.failure)
			case outcome.skip != nil:
				batch.FilesSkipped++
				batch.Skips = append(batch.Skips, *outcome.skip)
			default:
				batch.FilesScanned++
				if outcome.cacheHit {
					batch.CacheHits++
				}
				batch.Findings = append(batch.Findings, fs...)
			}
			return nil
		})
	}

	// Worker funcs never return errors; failures are isolated per file.
	_ = g.Wait()

	switch {
	case ctx.Err() != nil:
		batch.Status = scans.StatusCanceled
	case batch.FilesFailed > 0:
		batch.Status = scans.StatusPartialFailure
	default:
		batch.Status = scans.StatusCompleted
	}
	return batch, nil
}

// claim enforces at most one in-flight task per file. The claim is
// released when the task finishes, so a later Run over the same
// candidates consults the cache rather than being deduplicated here.
func (o *Orchestrator) claim(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[path] {
		return false
	}
	o.inflight[path] = true
	return true
}

func (o *Orchestrator) done(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, path)
}

// weightFor estimates a file's memory cost. Streamed files only ever
// hold a couple of chunks. A single file heavier than the whole budget
// is clamped so it still runs, alone.
func (o *Orchestrator) weightFor(c Candidate, memLimit int64) int64 {
	w := c.Size
	if c.Size > o.opts.StreamingThreshold {
		w = int64(2 * o.opts.ChunkSize)
	}
	if w < 1 {
		w = 1
	}
	if memLimit > 0 && w > memLimit {
		w = memLimit
	}
	return w
}

type outcome struct {
	cacheHit bool
	skip     *Skip
	failure  *FileFailure
}

func (o *Orchestrator) scanOne(ctx context.Context, c Candidate) ([]findings.Finding, outcome) {
	if c.Size > o.opts.StreamingThreshold {
		return o.scanStreaming(ctx, c)
	}
	return o.scanWhole(ctx, c)
}

func (o *Orchestrator) scanWhole(ctx context.Context, c Candidate) ([]findings.Finding, outcome) {
	content, attempts, err := readWithRetry(ctx, c.Path)
	if err != nil {
		// A file removed between walk and scan is a skip, not a failure.
		if os.IsNotExist(err) {
			logging.L().Warnw("scan: file vanished mid-scan", "path", c.Path, "attempts", attempts)
			return nil, outcome{skip: &Skip{Path: c.Path, Reason: "file vanished mid-scan"}}
		}
		logging.L().Warnw("scan: read failed", "path", c.Path, "attempts", attempts, "err", err)
		return nil, outcome{failure: &FileFailure{Path: c.Path, Phase: "read", Message: err.Error(), Attempts: attempts}}
	}

	fp := cache.Fingerprint(content, o.registry.Version())
	if o.store != nil {
		if e, ok := o.store.Get(fp); ok {
			return e.Findings, outcome{cacheHit: true}
		}
	}

	var fs []findings.Finding
	err = o.withFileTimeout(ctx, func() {
		fs = o.registry.AnalyzeFile(c.Path, content)
		if o.labeler != nil {
			fs = o.labeler(fs, content)
		}
	})
	if err != nil {
		return nil, outcome{skip: &Skip{Path: c.Path, Reason: "analysis timeout"}}
	}

	if o.store != nil {
		if _, err := o.store.Put(fp, c.Path, fs); err != nil {
			logging.L().Warnw("scan: cache write failed", "path", c.Path, "err", err)
		}
	}
	return fs, outcome{}
}

func (o *Orchestrator) scanStreaming(ctx context.Context, c Candidate) ([]findings.Finding, outcome) {
	sum, attempts, err := hashWithRetry(ctx, c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.L().Warnw("scan: file vanished mid-scan", "path", c.Path, "attempts", attempts)
			return nil, outcome{skip: &Skip{Path: c.Path, Reason: "file vanished mid-scan"}}
		}
		logging.L().Warnw("scan: hash failed", "path", c.Path, "attempts", attempts, "err", err)
		return nil, outcome{failure: &FileFailure{Path: c.Path, Phase: "hash", Message: err.Error(), Attempts: attempts}}
	}

	fp := cache.FingerprintFromSum(sum, o.registry.Version())
	if o.store != nil {
		if e, ok := o.store.Get(fp); ok {
			return e.Findings, outcome{cacheHit: true}
		}
	}

	var fs []findings.Finding
	var streamErr error
	timeoutErr := o.withFileTimeout(ctx, func() {
		streamErr = streamChunks(ctx, c.Path, o.opts.ChunkSize, func(chunk []byte, baseLine int) error {
			part := o.registry.AnalyzeChunk(c.Path, chunk, baseLine)
			if o.labeler != nil {
				// Aggressive mode drops the per-chunk context so only
				// the cheap feature pass runs on oversized files.
				fileContext := chunk
				if o.opts.Aggressive {
					fileContext = nil
				}
				part = o.labeler(part, fileContext)
			}
			fs = append(fs, part...)
			return nil
		})
	})
	if timeoutErr != nil {
		return nil, outcome{skip: &Skip{Path: c.Path, Reason: "analysis timeout"}}
	}
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) {
			return nil, outcome{skip: &Skip{Path: c.Path, Reason: "canceled"}}
		}
		logging.L().Warnw("scan: streaming failed", "path", c.Path, "err", streamErr)
		return nil, outcome{failure: &FileFailure{Path: c.Path, Phase: "stream", Message: streamErr.Error(), Attempts: 1}}
	}

	if o.store != nil {
		if _, err := o.store.Put(fp, c.Path, fs); err != nil {
			logging.L().Warnw("scan: cache write failed", "path", c.Path, "err", err)
		}
	}
	return fs, outcome{}
}

// withFileTimeout runs fn, bounded by the per-file timeout when one is
// configured. On timeout the analysis goroutine drains in the
// background and its result is dropped.
func (o *Orchestrator) withFileTimeout(ctx context.Context, fn func()) error {
	if o.opts.FileTimeout <= 0 {
		fn()
		return nil
	}
	fctx, cancel := context.WithTimeout(ctx, o.opts.FileTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return nil
	case <-fctx.Done():
		return context.DeadlineExceeded
	}
}

// readWithRetry retries exactly once on I/O errors; files mutated or
// removed mid-scan usually settle by the second attempt.
func readWithRetry(ctx context.Context, path string) ([]byte, int, error) {
	content, err := os.ReadFile(path)
	if err == nil {
		return content, 1, nil
	}
	select {
	case <-ctx.Done():
		return nil, 1, err
	case <-time.After(50 * time.Millisecond):
	}
	content, err2 := os.ReadFile(path)
	if err2 != nil {
		return nil, 2, err2
	}
	return content, 2, nil
}

func hashWithRetry(ctx context.Context, path string) ([32]byte, int, error) {
	sum, err := hashFile(path)
	if err == nil {
		return sum, 1, nil
	}
	select {
	case <-ctx.Done():
		return sum, 1, err
	case <-time.After(50 * time.Millisecond):
	}
	sum, err2 := hashFile(path)
	if err2 != nil {
		return sum, 2, err2
	}
	return sum, 2, nil
}
