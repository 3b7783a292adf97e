// Command orchestrator runs the score recomputation service: the
// durable queue, the worker pool, the hourly sweep and the ops API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	orchestrator "github.com/Kramerbrian/dealership-ai-dashboard-sub018"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/internal/api"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/internal/config"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/scheduler"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/storage"
	"github.com/Kramerbrian/dealership-ai-dashboard-sub018/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orchestrator exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if err := storage.ConfigurePool(db); err != nil {
		return err
	}

	store := storage.NewGormStore(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	queueStore, err := openQueueStore(ctx, cfg, store)
	if err != nil {
		return err
	}

	o, err := orchestrator.New(orchestrator.Deps{
		Queue:     queueStore,
		Signals:   store,
		Summaries: store,
		Events:    store,
	},
		orchestrator.WithWorkers(cfg.Worker.Count),
		orchestrator.WithLogger(logger),
		orchestrator.WithWorkerOptions(
			worker.WithPollInterval(cfg.Worker.PollInterval),
			worker.WithOpTimeout(cfg.Worker.OpTimeout),
			worker.WithLookbackDays(cfg.Worker.LookbackDays),
		),
		orchestrator.WithSchedulerOptions(
			scheduler.WithCronSpec(cfg.Scheduler.Cron),
			scheduler.WithActiveWindowDays(cfg.Scheduler.ActiveWindowDays),
		),
	)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api.NewHandler(o.Queue(), logger).Register(app)

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("ops api listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			logger.Error("ops api stopped", "error", err)
		}
	}()

	logger.Info("orchestrator started",
		"workers", cfg.Worker.Count,
		"queue_backend", cfg.Queue.Backend,
		"database_driver", cfg.Database.Driver,
		"sweep_cron", cfg.Scheduler.Cron)

	err = o.Run(ctx)

	if shutdownErr := app.ShutdownWithTimeout(5 * time.Second); shutdownErr != nil {
		logger.Error("ops api shutdown failed", "error", shutdownErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}

	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// openQueueStore picks the queue backend. The gorm backend shares the
// main database; the redis backend keeps queue state separate so a busy
// queue never contends with signal reads.
func openQueueStore(ctx context.Context, cfg *config.Config, store *storage.GormStore) (orchestrator.QueueStore, error) {
	switch cfg.Queue.Backend {
	case "gorm":
		return store, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		queueStore := storage.NewRedisQueueStore(rdb, "orchestrator")
		if err := queueStore.Migrate(ctx); err != nil {
			return nil, err
		}
		return queueStore, nil
	}
	return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
}
