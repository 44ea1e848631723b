package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-workshop/internal/app"
	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
	"github.com/odyssey-erp/odyssey-workshop/internal/observability"
	"github.com/odyssey-erp/odyssey-workshop/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-workshop/internal/platform/db"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
	"github.com/odyssey-erp/odyssey-workshop/internal/workorders"
	"github.com/odyssey-erp/odyssey-workshop/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	transactor := db.NewTransactor(pool, cfg.DBTxTimeout)

	// Redis backs the order cache and the job queue. Both degrade without it.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, order cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	inventoryRepo := inventory.NewRepository(transactor)
	inventoryService := inventory.NewService(
		inventoryRepo,
		auditLogger,
		idempotencyStore,
		inventory.ServiceConfig{AllowNegativeStock: cfg.InventoryAllowNegativeStock},
		metrics,
		logger,
	)

	orderOpts := workorders.Options{
		Audit:   auditLogger,
		Metrics: metrics,
		Logger:  logger,
	}

	var jobHandler *jobs.Handler
	if redisClient != nil {
		orderOpts.Cache = workorders.NewCache(redisClient, cfg.OrderCacheTTL)

		jobClient, err := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr))
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		orderOpts.Notifier = jobClient

		inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	orderService := workorders.NewService(
		workorders.NewRepository(transactor),
		inventoryService.Adjuster(),
		workorders.ServiceConfig{MaxDiscountPercent: cfg.MaxDiscountPercent},
		orderOpts,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		OrdersHandler:    workorders.NewHandler(logger, orderService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		JobHandler:       jobHandler,
		Pool:             pool,
		Redis:            redisClient,
		Metrics:          metrics,
	})

	server := app.NewServer(cfg, router)
	if err := app.Serve(ctx, cfg, server, logger); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
