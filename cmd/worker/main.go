package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/halftone-erp/halftone/internal/app"
	"github.com/halftone-erp/halftone/internal/dispatch"
	"github.com/halftone-erp/halftone/internal/ledger"
	"github.com/halftone-erp/halftone/internal/ledger/roles"
	"github.com/halftone-erp/halftone/internal/observability"
	"github.com/halftone-erp/halftone/internal/posting"
	"github.com/halftone-erp/halftone/internal/reports"
	"github.com/halftone-erp/halftone/jobs"
)

// invalidatingDispatcher bumps the report cache version after each
// dispatch so cached aggregations never serve stale posted state.
type invalidatingDispatcher struct {
	inner   *dispatch.Dispatcher
	reports *reports.Service
	metrics *observability.Metrics
	logger  *slog.Logger
}

func (d invalidatingDispatcher) Dispatch(ctx context.Context, key dispatch.Key) error {
	d.metrics.ObserveDispatch(string(key.EntityType))
	if err := d.inner.Dispatch(ctx, key); err != nil {
		return err
	}
	if err := d.reports.InvalidateCache(ctx); err != nil {
		d.logger.Warn("report cache bump", slog.Any("error", err))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	cutover, err := cfg.Cutover()
	if err != nil {
		logger.Error("parse cutover date", slog.Any("error", err))
		os.Exit(1)
	}

	resolver, err := roles.Load(ctx, roles.NewRepository(pool))
	if err != nil {
		logger.Error("load account roles", slog.Any("error", err))
		os.Exit(1)
	}

	engine := ledger.NewEngine(ledger.NewRepository(pool), logger)
	postingService := posting.NewService(engine, resolver, posting.NewAdvanceStore(pool), logger)

	failureStore := dispatch.NewFailureStore(pool)
	sourceReader := dispatch.NewSourceReader(pool)
	journalDispatcher := dispatch.NewDispatcher(sourceReader, postingService, failureStore, cutover, logger)

	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reports.NewRepository(pool), reportsCache, resolver)

	metrics := observability.NewMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		logger.Info("starting metrics server", slog.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()

	dispatcher := invalidatingDispatcher{inner: journalDispatcher, reports: reportsService, metrics: metrics, logger: logger}

	outboxRepo := dispatch.NewOutboxRepository(pool)
	sweeper := jobs.NewOutboxSweeper(outboxRepo, dispatcher, logger)
	integrity := jobs.NewLedgerIntegrityCheck(reportsService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskJournalDispatch, Handler: jobs.NewJournalDispatchHandler(dispatcher)},
			{Type: jobs.TaskOutboxSweep, Handler: jobs.NewOutboxSweepHandler(sweeper)},
			{Type: jobs.TaskLedgerIntegrity, Handler: jobs.NewLedgerIntegrityHandler(integrity)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OutboxSweepSpec, Task: jobs.NewOutboxSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegritySpec, Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
