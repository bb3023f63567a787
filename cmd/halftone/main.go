package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/halftone-erp/halftone/cmd/halftone/cli"
	"github.com/halftone-erp/halftone/internal/app"
	"github.com/halftone-erp/halftone/internal/dispatch"
	"github.com/halftone-erp/halftone/internal/ledger"
	"github.com/halftone-erp/halftone/internal/ledger/periods"
	"github.com/halftone-erp/halftone/internal/ledger/roles"
	"github.com/halftone-erp/halftone/internal/observability"
	"github.com/halftone-erp/halftone/internal/reports"
	"github.com/halftone-erp/halftone/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, logger, dbpool, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	resolver, err := roles.Load(ctx, roles.NewRepository(dbpool))
	if err != nil {
		logger.Error("load account roles", slog.Any("error", err))
		os.Exit(1)
	}

	ledgerRepo := ledger.NewRepository(dbpool)
	engine := ledger.NewEngine(ledgerRepo, logger)
	ledgerHandler := ledger.NewHandler(logger, engine)

	periodsService := periods.NewService(periods.NewRepository(dbpool))
	periodsHandler := periods.NewHandler(logger, periodsService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	failureStore := dispatch.NewFailureStore(dbpool)
	dispatchHandler := dispatch.NewHandler(logger, failureStore, jobClient)

	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reports.NewRepository(dbpool), reportsCache, resolver)
	reportsHandler := reports.NewHandler(logger, reportsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         observability.NewMetrics(),
		LedgerHandler:   ledgerHandler,
		PeriodsHandler:  periodsHandler,
		DispatchHandler: dispatchHandler,
		ReportsHandler:  reportsHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runCommand handles the operator subcommands: account seeding and manual
// job management.
func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, dbpool *pgxpool.Pool, args []string) error {
	switch args[0] {
	case "seed":
		if err := roles.Seed(ctx, dbpool); err != nil {
			return err
		}
		logger.Info("chart of accounts seeded")
		return nil
	case "jobs":
		if len(args) < 2 {
			return fmt.Errorf("usage: halftone jobs <trigger NAME|stats>")
		}
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		switch args[1] {
		case "trigger":
			if len(args) < 3 {
				return fmt.Errorf("usage: halftone jobs trigger NAME")
			}
			info, err := jobsCLI.Trigger(ctx, args[2])
			if err != nil {
				return err
			}
			logger.Info("job enqueued", slog.String("task", info.Type), slog.String("id", info.ID))
			return nil
		case "stats":
			stats, err := jobsCLI.InspectQueue(ctx)
			if err != nil {
				return err
			}
			logger.Info("queue stats",
				slog.String("queue", stats.Queue),
				slog.Int("pending", stats.Pending),
				slog.Int("active", stats.Active),
				slog.Int("scheduled", stats.Scheduled),
				slog.Int("retry", stats.Retry))
			return nil
		default:
			return fmt.Errorf("unknown jobs command %q", args[1])
		}
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
