// cmd/delivery-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notification-engine/internal/common/aws"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/database"
	commonhttp "notification-engine/internal/common/http"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/observability"
	"notification-engine/internal/engine"
	"notification-engine/internal/events"
	"notification-engine/internal/provider"
	"notification-engine/internal/queue"
	"notification-engine/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting delivery engine...")

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Build channel providers from enabled channels ---
	registry := provider.NewRegistry()

	if cfg.Channels.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Channels.AWS.Region)
		if err != nil {
			zapLog.Fatal("SES client init failed", zap.Error(err))
		}
		registry.Register(provider.NewEmailProvider(sesClient, cfg.Channels.Email.FromEmail, log))
		zapLog.Info("email provider registered")
	}

	if cfg.Channels.SMS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Channels.AWS.Region)
		if err != nil {
			zapLog.Fatal("SNS client init failed", zap.Error(err))
		}
		registry.Register(provider.NewSMSProvider(snsClient, cfg.Channels.SMS.SenderID, log))
		zapLog.Info("sms provider registered")
	}

	if cfg.Channels.Push.Enabled {
		client := commonhttp.NewClient(config.GetDuration(cfg.Channels.Push.Timeout))
		registry.Register(provider.NewPushProvider(client, cfg.Channels.Push.Endpoint, cfg.Channels.Push.APIKey, log))
		zapLog.Info("push provider registered")
	}

	if cfg.Channels.Webhook.Enabled {
		client := commonhttp.NewClient(config.GetDuration(cfg.Channels.Webhook.Timeout))
		registry.Register(provider.NewWebhookProvider(client, cfg.Channels.Webhook.SigningSecret, log))
		zapLog.Info("webhook provider registered")
	}

	if cfg.Channels.InApp.Enabled {
		registry.Register(provider.NewInAppProvider(
			redis.Client,
			time.Duration(cfg.Channels.InApp.InboxTTL)*time.Second,
			cfg.Channels.InApp.MaxInboxLen,
			log,
		))
		zapLog.Info("in-app provider registered")
	}

	if len(registry.Channels()) == 0 {
		zapLog.Fatal("no channel providers enabled")
	}

	// --- Wire the delivery pipeline ---
	notifStore := store.NewPostgresNotificationStore(pg.DB, log)
	queueStore := queue.NewPostgresQueueStore(pg.DB, log)
	publisher := events.NewRedisPublisher(redis.Client, log)

	circuits := queue.NewCircuitSet(
		cfg.Engine.Circuit.FailureThreshold,
		cfg.Engine.Circuit.SuccessThreshold,
		config.GetDuration(cfg.Engine.Circuit.RecoveryTimeout),
	)
	backoff := queue.NewExponentialBackoff(
		config.GetDuration(cfg.Engine.Backoff.InitialDelay),
		config.GetDuration(cfg.Engine.Backoff.MaxDelay),
		cfg.Engine.Backoff.Multiplier,
		cfg.Engine.Backoff.JitterFactor,
	)

	processor := engine.NewDeliveryProcessor(
		notifStore, queueStore, registry, circuits, backoff, publisher, obs, log,
	)

	pool := queue.NewWorkerPool(queueStore, processor, queue.WorkerPoolConfig{
		Concurrency:    cfg.Engine.Workers,
		PollInterval:   config.GetDuration(cfg.Engine.PollInterval),
		AttemptTimeout: config.GetDuration(cfg.Engine.AttemptTimeout),
	}, log)

	if err := pool.Start(ctx); err != nil {
		zapLog.Fatal("worker pool start failed", zap.Error(err))
	}
	zapLog.Info("worker pool started", zap.Int("workers", cfg.Engine.Workers))

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle(cfg.Metrics.Path, promhttp.Handler())
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining workers...")
	if err := pool.Stop(); err != nil {
		zapLog.Error("worker pool stop failed", zap.Error(err))
	}
	zapLog.Info("Delivery engine stopped gracefully")
}
