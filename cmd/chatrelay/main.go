package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/chatrelay/chatrelay/internal/messenger"
	"github.com/chatrelay/chatrelay/internal/platform/config"
	"github.com/chatrelay/chatrelay/internal/platform/database"
	"github.com/chatrelay/chatrelay/internal/platform/logger"
	"github.com/chatrelay/chatrelay/internal/platform/messagebroker"
	"github.com/chatrelay/chatrelay/internal/scheduler/app"
	"github.com/chatrelay/chatrelay/internal/scheduler/repository/postgres"
	httptransport "github.com/chatrelay/chatrelay/internal/transport/http"
)

const serviceName = "chatrelay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("ChatRelay starting...", "port", cfg.HTTPPort, "dispatch_backend", cfg.DispatchBackend)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(rootCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	jobStore := postgres.NewPgJobRepository(dbPool, appLogger)

	var client messenger.Client
	if cfg.MessengerAPIURL == "mock" {
		appLogger.Warn("Using the mock messaging client; messages will not leave this process")
		client = messenger.NewMockClient(appLogger, 0, 10, 50)
	} else {
		client = messenger.NewHTTPClient(appLogger, cfg.MessengerAPIURL, cfg.MessengerAPIKey, nil)
	}

	resolver, err := app.NewScheduleResolver(cfg.Timezone, nil)
	if err != nil {
		appLogger.Error("Invalid timezone configuration", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	executor := app.NewDeliveryExecutor(client, appLogger, app.ExecutorConfig{
		MaxRetries:  cfg.DeliveryMaxRetries,
		BaseDelay:   cfg.DeliveryRetryBaseDelay,
		SendTimeout: cfg.DeliverySendTimeout,
	})
	tracker := app.NewStatusTracker(jobStore, appLogger)

	var backend app.Backend
	switch cfg.DispatchBackend {
	case app.BackendJetStream:
		natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		appLogger.Info("Connected to NATS")

		backend = app.NewJetStreamBackend(natsClient, jobStore, executor, tracker, appLogger, app.BrokerConfig{
			Stream:     cfg.BrokerStream,
			MaxDeliver: cfg.BrokerMaxDeliver,
			AckWait:    cfg.BrokerAckWait,
		})
	case app.BackendPoller:
		backend = app.NewPollerBackend(jobStore, executor, tracker, appLogger, app.PollerConfig{
			PollingInterval: cfg.PollingInterval,
			JobBatchSize:    cfg.JobBatchSize,
			Concurrency:     cfg.PollConcurrency,
		})
	default:
		appLogger.Error("Unknown dispatch backend", "dispatch_backend", cfg.DispatchBackend)
		os.Exit(1)
	}

	service := app.NewDispatchService(jobStore, resolver, executor, backend, appLogger)
	handler := httptransport.NewMessageHandler(service, appLogger, validator.New())
	router := httptransport.NewRouter(handler, client, cfg.APIKey, appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return backend.Start(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, stopping...")

		backend.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("ChatRelay shut down gracefully.")
}
