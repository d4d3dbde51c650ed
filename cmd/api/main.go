package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/cloudinary"
	"qrattend/internal/config"
	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/logging"
	"qrattend/internal/queue"
	"qrattend/internal/sessions"
	"qrattend/internal/store"
	"qrattend/internal/users"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if db == nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err != nil {
		logger.Warn("db not reachable, schema not applied", zap.Error(err))
	} else if err := store.Migrate(ctx, db.Client); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	attRepo := attendance.NewRepository(db.Client)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// no separate worker: store audit rows from this process
		mem := queue.NewInMemory(256)
		msgs, _ := mem.Consume(ctx)
		go attendance.ConsumeAttempts(ctx, msgs, attRepo, logger.Named("audit"))
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	userSvc := users.NewService(users.NewRepository(db.Client), 0)
	if cfg.SeedDemoUsers {
		seeded, err := userSvc.SeedDemo(ctx)
		if err != nil {
			logger.Warn("seed demo users failed", zap.Error(err))
		} else if seeded {
			logger.Info("demo users created", zap.String("teacher", "teacher@school.com"), zap.String("student", "S12345"))
		}
	}

	opts := []sessions.Option{sessions.WithQRSize(cfg.QRSize)}
	if cfg.CloudinaryEnabled() {
		opts = append(opts, sessions.WithPublisher(
			cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)))
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	}
	manager := sessions.NewManager(sessions.NewRepository(db.Client), logger.Named("sessions"), opts...)
	recorder := attendance.NewRecorder(attRepo, q, logger.Named("attendance"))
	reports := attendance.NewReports(attRepo)
	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "qrattend:ratelimit:", cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, logger.Named("ratelimit")))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handler.New(userSvc, manager, recorder, reports, signer, logger.Named("http"))
	h.AddHealthCheck("db", db.Healthy)
	if cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis" {
		h.AddHealthCheck("redis", redisClient.Healthy)
	}
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
