package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hookrelay/relay-engine/internal/alert"
	"github.com/hookrelay/relay-engine/internal/config"
	"github.com/hookrelay/relay-engine/internal/deliverer"
	"github.com/hookrelay/relay-engine/internal/handler"
	"github.com/hookrelay/relay-engine/internal/infra/postgresql"
	"github.com/hookrelay/relay-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/hookrelay/relay-engine/internal/infra/redis"
	"github.com/hookrelay/relay-engine/internal/observability"
	"github.com/hookrelay/relay-engine/internal/ratelimit"
	"github.com/hookrelay/relay-engine/internal/redact"
	"github.com/hookrelay/relay-engine/internal/repository"
	"github.com/hookrelay/relay-engine/internal/service"
	"github.com/hookrelay/relay-engine/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("relay-engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deliveries, sqlDB, err := newDeliveryStore(cfg, logger)
	if err != nil {
		return err
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}

	var rdb *goredis.Client
	var throttle ratelimit.Throttle
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		if cfg.SendRateLimitPerSec > 0 {
			t, err := infraredis.NewThrottle(rdb, cfg.SendRateLimitPerSec)
			if err != nil {
				return fmt.Errorf("send throttle initialization failed: %w", err)
			}
			throttle = t
		}
	}

	var alerts alert.Publisher
	if cfg.AMQPURL != "" {
		publisher, err := alert.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("alert publisher initialization failed: %w", err)
		}
		defer publisher.Close()
		alerts = publisher
	}

	metrics := observability.NewMetrics()
	policy := redact.NewPolicy(cfg.SensitivePatterns()...)

	dlv := deliverer.NewHTTPDeliverer(cfg.DefaultTimeout())

	orchestrator, err := service.NewOrchestrator(deliveries, dlv, policy, throttle, alerts, metrics,
		service.OrchestratorOptions{
			LoggingEnabled: cfg.LoggingEnabled,
			DefaultTimeout: cfg.DefaultTimeout(),
		}, logger)
	if err != nil {
		return fmt.Errorf("orchestrator initialization failed: %w", err)
	}

	budget, err := ratelimit.NewRetryBudget(deliveries, cfg.MaxManualRetries, cfg.MaxRetriesPerHour)
	if err != nil {
		return fmt.Errorf("retry budget initialization failed: %w", err)
	}

	coordinator, err := service.NewRetryCoordinator(deliveries, dlv, budget, policy, alerts, metrics,
		cfg.DefaultTimeout(), logger)
	if err != nil {
		return fmt.Errorf("retry coordinator initialization failed: %w", err)
	}

	sweeper, err := service.NewRetentionSweeper(deliveries, cfg.Retention(), cfg.RetentionScanInterval,
		metrics, logger)
	if err != nil {
		return fmt.Errorf("retention sweeper initialization failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "relay-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterDeliveryRoutes(app, orchestrator, coordinator, deliveries); err != nil {
		return fmt.Errorf("route registration failed: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("relay-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return sweeper.Start(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return group.Wait()
}

// newDeliveryStore selects the persistence backend. An empty DSN runs the
// engine on the in-memory store, which is enough for local development and
// smoke tests but loses the audit trail on restart.
func newDeliveryStore(cfg *config.Config, logger *zap.Logger) (repository.DeliveryRepository, *sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn("DATABASE_DSN is empty, using the in-memory delivery store")
		return repository.NewMemoryDeliveryRepo(), nil, nil
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	return repository.NewGormDeliveryRepo(db), sqlDB, nil
}
