package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codewarden/codewarden/internal/analyzers"
	"github.com/codewarden/codewarden/internal/application"
	appai "github.com/codewarden/codewarden/internal/application/ai"
	appscans "github.com/codewarden/codewarden/internal/application/scans"
	"github.com/codewarden/codewarden/internal/cache"
	"github.com/codewarden/codewarden/internal/config"
	"github.com/codewarden/codewarden/internal/domain/feedback"
	"github.com/codewarden/codewarden/internal/domain/scanfailures"
	domain "github.com/codewarden/codewarden/internal/domain/scans"
	"github.com/codewarden/codewarden/internal/domain/triage"
	"github.com/codewarden/codewarden/internal/infra/ai/openai"
	"github.com/codewarden/codewarden/internal/infra/db/mysql"
	"github.com/codewarden/codewarden/internal/infra/db/postgres"
	"github.com/codewarden/codewarden/internal/infra/httpserver"
	"github.com/codewarden/codewarden/internal/infra/storage"
	"github.com/codewarden/codewarden/internal/logging"
	"github.com/codewarden/codewarden/internal/middleware"
	"github.com/codewarden/codewarden/internal/ml"
	"github.com/codewarden/codewarden/internal/retention"
	"github.com/codewarden/codewarden/internal/scanner"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config %s: %v", cfgPath, err)
	}

	logging.Init(cfg.Server.Debug)
	logger := logging.L()

	ctx := context.Background()

	var (
		db           *sql.DB
		runRepo      domain.Repository
		failureRepo  scanfailures.Repository
		triageRepo   triage.Repository
		feedbackRepo feedback.Repository
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			logger.Fatalw("postgres connect failed", "err", err)
		}
		runRepo = postgres.NewRunRepository(db)
		failureRepo = postgres.NewFailureRepository(db)
		triageRepo = postgres.NewTriageRepository(db)
		feedbackRepo = postgres.NewFeedbackRepository(db)
	default:
		db, err = mysql.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			logger.Fatalw("mysql connect failed", "err", err)
		}
		runRepo = mysql.NewRunRepository(db)
		failureRepo = mysql.NewFailureRepository(db)
		triageRepo = mysql.NewTriageRepository(db)
		feedbackRepo = mysql.NewFeedbackRepository(db)
	}
	defer db.Close()

	var artifacts domain.ArtifactStore
	if cfg.Minio.Endpoint != "" {
		store, err := storage.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logger.Fatalw("minio init failed", "endpoint", cfg.Minio.Endpoint, "err", err)
		}
		artifacts = store
	} else {
		logger.Infow("artifact store disabled, reports stay local")
	}

	resultStore, err := cache.NewStore(cfg.Retention.ResultsDir)
	if err != nil {
		logger.Fatalw("result store init failed", "dir", cfg.Retention.ResultsDir, "err", err)
	}

	registry := analyzers.NewRegistry()

	// Missing or mismatched model is not fatal; findings pass through
	// unlabeled until a model shows up.
	var classifier *ml.Classifier
	if cfg.ML.Enabled {
		dim := ml.BasicDim
		if cfg.ML.FeatureMode == "enhanced" {
			dim = ml.EnhancedDim
		}
		classifier, err = ml.LoadClassifier(cfg.ML.ModelPath, dim, cfg.ML.ConfidenceThreshold)
		if err != nil {
			logger.Warnw("classifier unavailable, suppression disabled", "path", cfg.ML.ModelPath, "err", err)
			classifier = nil
		}
	}
	labeler := appscans.NewLabeler(classifier, cfg.ML.FeatureMode)

	var buffer *ml.FeedbackBuffer
	if cfg.ML.FeedbackPath != "" {
		buffer, err = ml.NewFeedbackBuffer(cfg.ML.FeedbackPath)
		if err != nil {
			logger.Fatalw("feedback buffer init failed", "path", cfg.ML.FeedbackPath, "err", err)
		}
	}

	walker := scanner.NewWalker(cfg.Scan.Include, cfg.Scan.Exclude, cfg.Scan.MaxFileSize)
	pool := scanner.NewOrchestrator(registry, resultStore, labeler, scanner.Options{
		MaxParallel:        cfg.Scan.MaxParallel,
		MemoryLimitMB:      cfg.Scan.MemoryLimitMB,
		StreamingThreshold: cfg.Scan.StreamingThreshold,
		ChunkSize:          cfg.Scan.ChunkSize,
		FileTimeout:        cfg.FileTimeout(),
		BatchTimeout:       cfg.BatchTimeout(),
		Aggressive:         cfg.Scan.Aggressive,
	})

	clock := application.SystemClock{}

	scansSvc := &appscans.Service{
		Repo:       runRepo,
		Failures:   failureRepo,
		Artifacts:  artifacts,
		Clock:      clock,
		Walker:     walker,
		Pool:       pool,
		Registry:   registry,
		Labeler:    labeler,
		Classifier: classifier,
		Feedback:   buffer,
		Archive:    feedbackRepo,
		ModelPath:  cfg.ML.ModelPath,
	}

	var aiSvc *appai.Service
	if cfg.OpenAI.APIKey != "" {
		aiSvc = &appai.Service{
			Client: openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
			Repo:   triageRepo,
			Clock:  clock,
			Model:  cfg.OpenAI.Model,
		}
	} else {
		logger.Infow("openai key missing, ai triage disabled")
	}

	audit, err := retention.NewAuditLog(cfg.Retention.AuditLog)
	if err != nil {
		logger.Fatalw("audit log init failed", "path", cfg.Retention.AuditLog, "err", err)
	}
	manager, err := retention.NewManager(resultStore,
		retention.Policy{
			MaxAgeDays:       *cfg.Retention.MaxAgeDays,
			MaxSizeMB:        cfg.Retention.MaxSizeMB,
			MinResultsToKeep: cfg.Retention.MinResultsToKeep,
		},
		audit,
		cfg.Retention.ReportDir,
		cfg.Retention.QuarantineDir,
		retention.WithReanalyzer(scansSvc),
		retention.WithAutoRepair(cfg.Retention.AutoRepair),
	)
	if err != nil {
		logger.Fatalw("retention manager init failed", "err", err)
	}

	sched := cron.New()
	if cfg.Retention.CleanupSchedule != "" {
		if _, err := sched.AddFunc(cfg.Retention.CleanupSchedule, func() {
			if _, err := manager.Cleanup(context.Background()); err != nil && !errors.Is(err, retention.ErrPassInProgress) {
				logger.Errorw("scheduled cleanup failed", "err", err)
			}
		}); err != nil {
			logger.Fatalw("bad cleanup schedule", "spec", cfg.Retention.CleanupSchedule, "err", err)
		}
	}
	if cfg.Retention.IntegritySchedule != "" {
		if _, err := sched.AddFunc(cfg.Retention.IntegritySchedule, func() {
			if _, err := manager.Integrity(context.Background()); err != nil && !errors.Is(err, retention.ErrPassInProgress) {
				logger.Errorw("scheduled integrity check failed", "err", err)
			}
		}); err != nil {
			logger.Fatalw("bad integrity schedule", "spec", cfg.Retention.IntegritySchedule, "err", err)
		}
	}
	if cfg.ML.FlushSchedule != "" {
		if _, err := sched.AddFunc(cfg.ML.FlushSchedule, func() {
			applied, err := scansSvc.FlushFeedback(context.Background())
			if err != nil {
				logger.Errorw("scheduled feedback flush failed", "err", err)
				return
			}
			if applied > 0 {
				logger.Infow("feedback flushed into model", "applied", applied)
			}
		}); err != nil {
			logger.Fatalw("bad feedback flush schedule", "spec", cfg.ML.FlushSchedule, "err", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	health := middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database":    &middleware.DatabaseHealthChecker{DB: db},
		"results_dir": &middleware.ResultsDirChecker{Dir: resultStore.Dir()},
	})

	handler := httpserver.NewRouter(httpserver.Deps{
		Scans:     scansSvc,
		AI:        aiSvc,
		Retention: manager,
		Cache:     resultStore,
		APIKeys:   cfg.Server.APIKeys,
		Health:    health,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler,
		// Synchronous scans hold the response open, so the write
		// timeout tracks the batch timeout instead of a flat 15s.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.BatchTimeout()),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("listening", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("forced shutdown", "err", err)
	}
}

func writeTimeout(batch time.Duration) time.Duration {
	if batch <= 0 {
		return 15 * time.Second
	}
	return batch + 30*time.Second
}
