package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sfdxb7/oc-hub/internal/adapters/driven/ai"
	"github.com/sfdxb7/oc-hub/internal/adapters/driven/filesystem"
	"github.com/sfdxb7/oc-hub/internal/adapters/driven/knowledge/chromem"
	"github.com/sfdxb7/oc-hub/internal/adapters/driven/knowledge/ragflow"
	"github.com/sfdxb7/oc-hub/internal/adapters/driven/metrics"
	"github.com/sfdxb7/oc-hub/internal/adapters/driven/postgres"
	postgresqueue "github.com/sfdxb7/oc-hub/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/sfdxb7/oc-hub/internal/adapters/driven/queue/redis"
	redisadapter "github.com/sfdxb7/oc-hub/internal/adapters/driven/redis"
	"github.com/sfdxb7/oc-hub/internal/adapters/driving/http"
	"github.com/sfdxb7/oc-hub/internal/config"
	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
	"github.com/sfdxb7/oc-hub/internal/core/services"
	"github.com/sfdxb7/oc-hub/internal/normalisers"
	"github.com/sfdxb7/oc-hub/internal/postprocessors"
	"github.com/sfdxb7/oc-hub/internal/runtime"
	"github.com/sfdxb7/oc-hub/internal/worker"
)

// app holds the wired process: stores, AI services and the pipeline.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db          *postgres.DB
	redisClient *redis.Client
	taskQueue   driven.TaskQueue
	lock        driven.DistributedLock
	runtime     *runtime.Services
	metrics     *metrics.Prometheus

	ingestion *services.IngestionOrchestrator
	batches   *services.BatchCoordinator
	reportSvc driving.ReportService
	retrieval *services.RetrievalService
	news      *services.NewsAnalyzer
	scheduler *services.Scheduler
}

// newApp connects to the stores and builds the ingestion pipeline. The task
// queue and lock are only set up when withQueue is true.
func newApp(ctx context.Context, cfg *config.Config, withQueue bool) (*app, error) {
	logger := slog.Default()
	a := &app{cfg: cfg, logger: logger}

	// ===== PostgreSQL =====
	logger.Info("connecting to PostgreSQL")
	db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	if err := db.InitSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// ===== Redis (optional) =====
	queueBackend := "postgres"
	if withQueue && cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		a.redisClient = redis.NewClient(opts)
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		queueBackend = "redis"
		logger.Info("redis connected")
	}

	// ===== Task queue and lock (Redis if available, otherwise PostgreSQL) =====
	if withQueue {
		if a.redisClient != nil {
			hostname, _ := os.Hostname()
			q, err := redisqueue.NewQueue(ctx, a.redisClient, fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()))
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to create task queue: %w", err)
			}
			a.taskQueue = q
			a.lock = redisadapter.NewLock(a.redisClient)
		} else {
			a.taskQueue = postgresqueue.NewQueue(db.DB)
			a.lock = postgres.NewAdvisoryLock(db)
		}
		logger.Info("task queue ready", "backend", queueBackend)
	}

	// ===== AI services =====
	a.metrics = metrics.NewPrometheus()
	a.runtime = runtime.NewServices(domain.NewRuntimeConfig(queueBackend, cfg.KnowledgeBackend()))
	factory := ai.NewFactory(logger)

	completion, err := factory.CreateCompletionService(cfg.CompletionSettings())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create completion service: %w", err)
	}
	if completion == nil {
		logger.Warn("no completion API key configured, extraction will produce empty results")
	} else {
		a.runtime.SetCompletionService(completion)
	}

	embedding, err := factory.CreateEmbeddingService(cfg.EmbeddingSettings())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	if embedding != nil {
		a.runtime.SetEmbeddingService(embedding)
	}

	// ===== Knowledge base =====
	kb, err := newKnowledgeBase(cfg, embedding, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := kb.HealthCheck(ctx); err != nil {
		logger.Warn("knowledge base health check failed, uploads will be skipped until it recovers",
			"backend", cfg.Knowledge.Backend, "error", err)
	}

	// ===== Stores =====
	reports := postgres.NewReportStore(db)
	databank := postgres.NewDataBankStore(db)

	// ===== Pipeline =====
	reader := filesystem.NewReader(normalisers.DefaultRegistry(), logger)

	extractor := services.NewExtractor(services.ExtractorConfig{
		Services:    a.runtime,
		Pipeline:    postprocessors.DefaultPipeline(),
		Metrics:     a.metrics,
		MaxChars:    cfg.Extraction.MaxChars,
		MaxTokens:   cfg.Extraction.MaxTokens,
		Temperature: cfg.Extraction.Temperature,
		Timeout:     cfg.Extraction.Timeout,
		Logger:      logger,
	})
	auditor := services.NewAuditor(services.AuditorConfig{
		Services:      a.runtime,
		Metrics:       a.metrics,
		UseCompletion: cfg.Audit.UseCompletion,
		Timeout:       cfg.Extraction.Timeout,
		Logger:        logger,
	})
	fanOut := services.NewFanOut(services.FanOutConfig{
		Store:   databank,
		Metrics: a.metrics,
		Logger:  logger,
	})

	a.ingestion = services.NewIngestionOrchestrator(services.IngestionOrchestratorConfig{
		Reader:            reader,
		Reports:           reports,
		KnowledgeBase:     kb,
		Collection:        cfg.Knowledge.Collection,
		Extractor:         extractor,
		Auditor:           auditor,
		FanOut:            fanOut,
		Metrics:           a.metrics,
		ReextractOnReject: cfg.Audit.ReextractOnReject,
		Logger:            logger,
	})
	a.batches = services.NewBatchCoordinator(services.BatchCoordinatorConfig{
		Ingestion:      a.ingestion,
		Reader:         reader,
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		MaxFailures:    cfg.Batch.MaxFailures,
		Logger:         logger,
	})

	a.reportSvc = services.NewReportService(reports, databank, logger)
	a.retrieval = services.NewRetrievalService(services.RetrievalServiceConfig{
		KnowledgeBase: kb,
		Reports:       reports,
		Collection:    cfg.Knowledge.Collection,
		CacheSize:     cfg.Knowledge.CacheSize,
		CacheTTL:      cfg.Knowledge.CacheTTL,
		Logger:        logger,
	})
	a.news = services.NewNewsAnalyzer(a.runtime, a.metrics, logger)

	if withQueue {
		a.scheduler = services.NewScheduler(services.SchedulerConfig{
			Store:        postgres.NewSchedulerStore(db),
			TaskQueue:    a.taskQueue,
			Lock:         a.lock,
			Logger:       logger,
			PollInterval: cfg.Scheduler.PollInterval,
			LockTTL:      cfg.Scheduler.LockTTL,
		})
		tasks := domain.DefaultSchedulerConfig(cfg.LibraryRoot, cfg.Scheduler.ScanInterval)
		if err := a.scheduler.EnsureScheduledTasks(ctx, tasks); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to register scheduled tasks: %w", err)
		}
	}

	rc := a.runtime.Config()
	logger.Info("runtime config",
		"queue_backend", rc.QueueBackend,
		"knowledge_backend", rc.KnowledgeBackend,
		"can_extract", rc.CanExtract(),
		"can_retrieve", rc.CanRetrieve(),
	)
	return a, nil
}

func newKnowledgeBase(cfg *config.Config, embedding driven.EmbeddingService, logger *slog.Logger) (driven.KnowledgeBase, error) {
	switch cfg.KnowledgeBackend() {
	case domain.KnowledgeBackendChromem:
		if embedding == nil {
			return nil, errors.New("the chromem knowledge backend needs an embedding service (embedding.api_key)")
		}
		store, err := chromem.NewStore(chromem.Config{PersistDir: cfg.Knowledge.PersistDir, Compress: true}, embedding, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem store: %w", err)
		}
		return store, nil
	default:
		client, err := ragflow.NewClient(ragflow.Config{
			BaseURL: cfg.Knowledge.BaseURL,
			APIKey:  cfg.Knowledge.APIKey,
			Timeout: cfg.Knowledge.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create RAGFlow client: %w", err)
		}
		return client, nil
	}
}

// Close releases every connection the app opened.
func (a *app) Close() {
	if a.runtime != nil {
		_ = a.runtime.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// runMode starts the API, the worker or both and blocks until ctx ends.
func runMode(ctx context.Context, cfg *config.Config, mode string) error {
	switch mode {
	case config.RunModeAPI, config.RunModeWorker, config.RunModeAll:
	default:
		return fmt.Errorf("unknown mode: %s (use: api, worker, or all)", mode)
	}
	slog.Info("oc-hub starting", "version", cfg.Version, "mode", mode)

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	if mode == config.RunModeWorker || mode == config.RunModeAll {
		g.Go(func() error { return a.runWorker(ctx) })
	}
	if mode == config.RunModeAPI || mode == config.RunModeAll {
		g.Go(func() error { return a.runAPI(ctx) })
	}
	return g.Wait()
}

func (a *app) runAPI(ctx context.Context) error {
	var redisPinger http.Pinger
	if a.redisClient != nil {
		redisPinger = pingFunc(func(ctx context.Context) error { return a.redisClient.Ping(ctx).Err() })
	}

	server := http.NewServer(
		http.Config{
			Host:        "0.0.0.0",
			Port:        a.cfg.Port,
			Version:     a.cfg.Version,
			LibraryRoot: a.cfg.LibraryRoot,
		},
		a.reportSvc,
		a.retrieval,
		a.news,
		a.scheduler,
		a.taskQueue,
		a.db,
		redisPinger,
		a.metrics.Handler(),
		a.logger,
	)
	return server.Start(ctx)
}

// runWorker processes queued tasks and, when enabled, runs the periodic
// library scan.
func (a *app) runWorker(ctx context.Context) error {
	cfg := worker.WorkerConfig{
		TaskQueue:      a.taskQueue,
		Ingester:       a.ingestion,
		Batches:        a.batches,
		Lock:           a.lock,
		LibraryRoot:    a.cfg.LibraryRoot,
		Logger:         a.logger,
		Concurrency:    a.cfg.Worker.Concurrency,
		DequeueTimeout: a.cfg.Worker.DequeueTimeout,
	}
	if a.cfg.Scheduler.Enabled {
		cfg.Scheduler = a.scheduler
		a.logger.Info("scheduler enabled", "scan_interval", a.cfg.Scheduler.ScanInterval)
	}

	w := worker.NewWorker(cfg)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()

	a.logger.Info("stopping worker")
	stopCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		a.logger.Warn("worker did not stop cleanly", "error", err)
	}
	return nil
}

// pingFunc adapts a function to http.Pinger
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
