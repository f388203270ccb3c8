package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/codewarden/codewarden/internal/application/ai"
	appscans "github.com/codewarden/codewarden/internal/application/scans"
	"github.com/codewarden/codewarden/internal/cache"
	"github.com/codewarden/codewarden/internal/domain/feedback"
	domain "github.com/codewarden/codewarden/internal/domain/scans"
	"github.com/codewarden/codewarden/internal/domain/triage"
	"github.com/codewarden/codewarden/internal/logging"
	"github.com/codewarden/codewarden/internal/middleware"
	"github.com/codewarden/codewarden/internal/retention"
)

type Router struct {
	scansSvc  *appscans.Service
	aiSvc     *appai.Service
	retention *retention.Manager
	store     *cache.Store
}

// Deps carries everything the HTTP surface exposes.
type Deps struct {
	Scans     *appscans.Service
	AI        *appai.Service
	Retention *retention.Manager
	Cache     *cache.Store
	APIKeys   []string
	Health    http.HandlerFunc
}

func NewRouter(deps Deps) http.Handler {
	r := &Router{
		scansSvc:  deps.Scans,
		aiSvc:     deps.AI,
		retention: deps.Retention,
		store:     deps.Cache,
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.APIKeyAuth(deps.APIKeys))
	mux.Use(middleware.RateLimitMiddleware(100, 10))

	if deps.Health != nil {
		mux.Get("/health", deps.Health)
	} else {
		mux.Get("/health", middleware.LivenessHandler)
	}
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scans", r.wrap(r.handleTriggerScan))
		rt.Get("/scans", r.wrap(r.handlePaginate))
		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/scans/{id}/findings", r.wrap(r.handleFindings))
		rt.Get("/scans/{id}/failures", r.wrap(r.handleFailures))
		rt.Get("/scans/{id}/triage", r.wrap(r.handleTriageList))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Post("/findings/feedback", r.wrap(r.handleFeedback))
		rt.Post("/ml/flush", r.wrap(r.handleFlushFeedback))
		rt.Post("/retention/cleanup", r.wrap(r.handleCleanup))
		rt.Post("/retention/integrity", r.wrap(r.handleIntegrity))
		rt.Get("/cache/stats", r.wrap(r.handleCacheStats))
		rt.Post("/ai/triage", r.wrap(r.handleTriage))
		rt.Get("/ai/triage", r.wrap(r.handleTriagePage))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks client errors so wrap maps them to 400.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br badRequest
			switch {
			case errors.As(err, &br):
				http.Error(w, br.Error(), http.StatusBadRequest)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, retention.ErrPassInProgress):
				http.Error(w, "retention pass already in progress", http.StatusConflict)
			case errors.Is(err, triage.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/scans
// Body: {"roots": ["path", ...], "wait": false}
func (r *Router) handleTriggerScan(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Roots []string `json:"roots"`
		Wait  bool     `json:"wait"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateRoots(body.Roots); err != nil {
		return badRequest{err}
	}

	cmd := appscans.TriggerScanCommand{Roots: body.Roots}

	if body.Wait {
		middleware.IncrementScans()
		middleware.IncrementScansRunning()
		defer middleware.DecrementScansRunning()
		result, err := r.scansSvc.TriggerScan(req.Context(), cmd)
		if err != nil {
			middleware.IncrementScansFailed()
			return err
		}
		middleware.RecordScanResult(result.Run.FilesScanned, len(result.Findings), result.Run.Suppressed, result.Run.CacheHits)
		return writeJSON(w, result)
	}

	// Detached run so the scan survives the client connection.
	go func() {
		middleware.IncrementScans()
		middleware.IncrementScansRunning()
		defer middleware.DecrementScansRunning()

		result, err := r.scansSvc.TriggerScanUntilDone(cmd)
		if err != nil {
			middleware.IncrementScansFailed()
			logging.L().Errorw("background scan failed", "roots", cmd.Roots, "err", err)
			return
		}
		middleware.RecordScanResult(result.Run.FilesScanned, len(result.Findings), result.Run.Suppressed, result.Run.CacheHits)
	}()

	w.WriteHeader(http.StatusAccepted)
	return writeJSON(w, map[string]any{
		"status":   "queued",
		"roots":    body.Roots,
		"message":  "scan started in background",
		"queuedAt": time.Now(),
	})
}

// GET /v1/scans?page=&page_size=
func (r *Router) handlePaginate(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.scansSvc.Paginate(req.Context(), page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/scans/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.Latest(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return badRequest{err}
	}

	run, err := r.scansSvc.Get(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, run)
}

// GET /v1/scans/{id}/findings
// Served from the in-memory window of recent runs.
func (r *Router) handleFindings(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	fs, ok := r.scansSvc.Results(domain.RunID(id))
	if !ok {
		return fmt.Errorf("findings for run %s no longer held: %w", id, sql.ErrNoRows)
	}
	return writeJSON(w, fs)
}

// GET /v1/scans/{id}/failures?limit=
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.scansSvc.ListFailures(req.Context(), id, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.scansSvc.Summary(req.Context(), middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	return writeJSON(w, summary)
}

// POST /v1/findings/feedback
// Body: {"finding_id": "...", "run_id": "...", "features": [...], "true_positive": false}
func (r *Router) handleFeedback(w http.ResponseWriter, req *http.Request) error {
	var body feedback.Event
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{err}
	}
	if body.FindingID == "" {
		return badRequest{fmt.Errorf("finding_id is required")}
	}

	if err := r.scansSvc.RecordFeedback(req.Context(), body); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return writeJSON(w, map[string]any{"status": "recorded"})
}

// POST /v1/ml/flush
func (r *Router) handleFlushFeedback(w http.ResponseWriter, req *http.Request) error {
	applied, err := r.scansSvc.FlushFeedback(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{"applied": applied})
}

// POST /v1/retention/cleanup
func (r *Router) handleCleanup(w http.ResponseWriter, req *http.Request) error {
	if r.retention == nil {
		return fmt.Errorf("retention not configured")
	}
	report, err := r.retention.Cleanup(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, report)
}

// POST /v1/retention/integrity
func (r *Router) handleIntegrity(w http.ResponseWriter, req *http.Request) error {
	if r.retention == nil {
		return fmt.Errorf("retention not configured")
	}
	report, err := r.retention.Integrity(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, report)
}

// GET /v1/cache/stats
func (r *Router) handleCacheStats(w http.ResponseWriter, req *http.Request) error {
	if r.store == nil {
		return fmt.Errorf("cache not configured")
	}
	hits, misses := r.store.Stats()
	entries, err := r.store.List()
	if err != nil {
		return err
	}
	var bytes int64
	for _, e := range entries {
		bytes += e.SizeBytes
	}
	return writeJSON(w, map[string]any{
		"hits":        hits,
		"misses":      misses,
		"entries":     len(entries),
		"total_bytes": bytes,
	})
}

// POST /v1/ai/triage
// Body: {"run_id": "<id>"}
func (r *Router) handleTriage(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return fmt.Errorf("ai triage not configured")
	}
	var body struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{err}
	}
	if body.RunID == "" {
		return badRequest{fmt.Errorf("run_id is required")}
	}

	fs, ok := r.scansSvc.Results(domain.RunID(body.RunID))
	if !ok {
		return fmt.Errorf("findings for run %s no longer held: %w", body.RunID, sql.ErrNoRows)
	}

	t, err := r.aiSvc.TriageRun(req.Context(), body.RunID, fs)
	if err != nil {
		return err
	}
	return writeJSON(w, t)
}

// GET /v1/scans/{id}/triage?limit=
func (r *Router) handleTriageList(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return fmt.Errorf("ai triage not configured")
	}
	id := chi.URLParam(req, "id")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.aiSvc.ListByRun(req.Context(), id, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}

// GET /v1/ai/triage?page=&page_size=
func (r *Router) handleTriagePage(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return fmt.Errorf("ai triage not configured")
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.aiSvc.Paginate(req.Context(), page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, list)
}
