package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/go-fulfillment/internal/config"
	"github.com/safar/go-fulfillment/internal/courier"
	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/events"
	"github.com/safar/go-fulfillment/internal/fulfillment"
	"github.com/safar/go-fulfillment/internal/httpx"
	"github.com/safar/go-fulfillment/internal/idempotency"
	"github.com/safar/go-fulfillment/internal/logging"
	"github.com/safar/go-fulfillment/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Service.LogLevel,
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	m := metrics.New(metrics.DefaultConfig(cfg.Service.Name))

	courierClient := courier.NewClient(cfg.Courier,
		courier.WithLogger(logger),
		courier.WithMetrics(m),
	)

	publisher := newPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	opts := []fulfillment.Option{
		fulfillment.WithPublisher(publisher, cfg.Service.Name),
		fulfillment.WithMetrics(m),
	}
	if cfg.Redis.Addr != "" {
		rdb := idempotency.NewClient(cfg.Redis.Addr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, in-flight guard will fail open", "addr", cfg.Redis.Addr, "error", err)
		}
		opts = append(opts, fulfillment.WithGuard(idempotency.NewRedisGuard(rdb, cfg.Fulfillment.GuardTTL)))
	}

	planner := fulfillment.NewPlanner(db,
		fulfillment.Policy{ForceBranchID: cfg.Fulfillment.ForceBranchID},
		database.TxOptions{
			IsolationLevel: sql.LevelReadCommitted,
			MaxRetries:     cfg.Fulfillment.MaxRetries,
			LockTimeout:    cfg.Fulfillment.LockTimeout,
		},
		logger,
		m,
	)
	if cfg.Fulfillment.ForceBranchID != nil {
		logger.Warn("branch selection forced", "branch_id", *cfg.Fulfillment.ForceBranchID)
	}

	orchestrator := fulfillment.NewOrchestrator(planner, courierClient, fulfillment.NewPostgresRepository(db), logger, opts...)

	router := httpx.NewRouter(logger, db, m.Handler())
	httpx.NewHandler(
		orchestrator,
		httpx.NewPostgresStore(db),
		fulfillment.NewServiceability(db, courierClient),
		fulfillment.NewPickupSync(db, courierClient, logger),
		logger,
	).Register(router)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newPublisher(cfg config.KafkaConfig, logger *slog.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka brokers not configured, fulfillment events disabled")
		return events.NopPublisher{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.FulfillmentTopic, logger)
}
