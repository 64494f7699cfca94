package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/nikverify/internal/artifact"
	"github.com/kursadbilgin/nikverify/internal/bootstrap"
	"github.com/kursadbilgin/nikverify/internal/config"
	"github.com/kursadbilgin/nikverify/internal/handler"
	"github.com/kursadbilgin/nikverify/internal/infra/postgresql"
	"github.com/kursadbilgin/nikverify/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/nikverify/internal/infra/redis"
	"github.com/kursadbilgin/nikverify/internal/notifier"
	"github.com/kursadbilgin/nikverify/internal/observability"
	"github.com/kursadbilgin/nikverify/internal/queue"
	"github.com/kursadbilgin/nikverify/internal/ratelimit"
	"github.com/kursadbilgin/nikverify/internal/report"
	"github.com/kursadbilgin/nikverify/internal/repository"
	"github.com/kursadbilgin/nikverify/internal/service"
	"github.com/kursadbilgin/nikverify/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("nikverify api stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	var checks []handler.ReadinessCheck

	var (
		artifacts artifact.Store = artifact.NewMemoryStore()
		limiter   ratelimit.RateLimiter
	)
	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
		checks = append(checks, handler.RedisCheck(rdb))

		store, err := infraredis.NewReportStore(rdb)
		if err != nil {
			return err
		}
		artifacts = store

		if cfg.DispatchPerMin > 0 {
			dispatchLimiter, err := infraredis.NewDispatchLimiter(rdb, cfg.DispatchPerMin)
			if err != nil {
				return err
			}
			limiter = dispatchLimiter
		}
	} else if cfg.DispatchPerMin > 0 {
		logger.Warn("DISPATCH_PER_MIN ignored: dispatch pacing requires REDIS_URL")
	}

	p, err := bootstrap.NewPortal(cfg, limiter, metrics, logger)
	if err != nil {
		return err
	}

	jobs, err := service.NewJobService(
		p.Sessions,
		p.Auth,
		p.Engines(),
		report.NewWriter(),
		artifacts,
		service.JobServiceConfig{
			LoginURL:  p.LoginURL,
			Retention: cfg.JobRetention(),
		},
		logger,
	)
	if err != nil {
		return err
	}
	jobs.SetMetrics(metrics)

	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		defer sqlDB.Close()
		checks = append(checks, handler.PostgresCheck(sqlDB))

		jobs.AddRecorder("postgres", repository.NewGormJobHistoryRepo(db))
	}

	if cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		publisher := queue.NewRabbitMQPublisher(mq)
		defer publisher.Close()

		events, err := queue.NewEventRecorder(publisher)
		if err != nil {
			return err
		}
		jobs.AddRecorder("rabbitmq", events)
	}

	if cfg.WebhookURL != "" {
		webhook, err := notifier.NewWebhookNotifier(cfg.WebhookURL)
		if err != nil {
			return fmt.Errorf("webhook initialization failed: %w", err)
		}
		jobs.AddRecorder("webhook", webhook)
	}

	janitor, err := service.NewJanitor(jobs, artifacts, cfg.JanitorInterval(), logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "nikverify",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, checks...)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterJobRoutes(app, jobs); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("nikverify api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return janitor.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		err := app.ShutdownWithTimeout(shutdownTimeout)
		jobs.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("nikverify api stopped")
	return nil
}
