package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/payrecon-backend/internal/ledger"
	"github.com/angelmondragon/payrecon-backend/internal/payments"
	"github.com/angelmondragon/payrecon-backend/internal/reconciliation"
	"github.com/angelmondragon/payrecon-backend/pkg/config"
	"github.com/angelmondragon/payrecon-backend/pkg/db"
	"github.com/angelmondragon/payrecon-backend/pkg/instance"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
	"github.com/angelmondragon/payrecon-backend/pkg/metrics"
	"github.com/angelmondragon/payrecon-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	queue, err := reconciliation.NewQueue(reconciliation.QueueParams{
		DB:          dbClient.DB(),
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation queue", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo: ledger.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	reconMetrics := metrics.NewReconMetrics(registry)

	instanceID := instance.GetID()

	pool, err := reconciliation.NewPool(reconciliation.PoolParams{
		Size: cfg.Worker.PoolSize,
		Worker: reconciliation.WorkerParams{
			ID:                instanceID,
			Queue:             queue,
			Payments:          payments.NewRepository(dbClient.DB()),
			Ledger:            ledgerService,
			Matcher:           newMatcher(cfg),
			Tx:                dbClient,
			Logger:            logg,
			Metrics:           reconMetrics,
			PollInterval:      cfg.Worker.PollInterval,
			LeaseDuration:     cfg.Worker.LeaseDuration,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		},
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker pool", err)
		os.Exit(1)
	}

	go serveMetrics(cfg.Worker.MetricsPort, registry, logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"instance":  instanceID,
		"pool_size": cfg.Worker.PoolSize,
	})
	logg.Info(ctx, "starting reconciliation workers")

	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker pool stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

func serveMetrics(port string, registry *prometheus.Registry, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if err := http.ListenAndServe(":"+port, mux); err != nil && err != http.ErrServerClosed {
		logg.Error(context.Background(), "metrics server stopped unexpectedly", err)
	}
}
