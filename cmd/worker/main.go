package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/logging"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker drains the scan audit queue into the scan_attempts table.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs QUEUE_BACKEND=redis; the memory queue is drained by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()
	if err := store.Migrate(ctx, db.Client); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for scan attempts", zap.String("queue", queue.DefaultKey))
	attendance.ConsumeAttempts(ctx, messages, attendance.NewRepository(db.Client), logger.Named("audit"))
	logger.Info("worker stopped")
}
