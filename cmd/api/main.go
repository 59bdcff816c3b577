package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixeldesk/internal/api"
	"github.com/dunamismax/pixeldesk/internal/config"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"github.com/dunamismax/pixeldesk/internal/queue"
	"github.com/dunamismax/pixeldesk/internal/ratelimit"
	"github.com/dunamismax/pixeldesk/internal/storage"
	"github.com/dunamismax/pixeldesk/internal/store"
	"github.com/dunamismax/pixeldesk/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixeldesk-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("start image runtime: %v", err)
	}
	defer pipeline.Shutdown()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	opts := api.Options{
		Queue:          queueClient,
		PresignTTL:     cfg.API.PresignTTL,
		UserIDHeader:   cfg.API.UserIDHeader,
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		MaxPixels:      cfg.Render.MaxPixels,
		PreviewDelay:   cfg.Render.PreviewDelay,
		PreviewTTL:     cfg.Render.PreviewTTL,
	}

	jobStore, closeStore := openJobStore(ctx, cfg.Database, logger)
	defer closeStore()
	opts.Jobs = jobStore

	if cfg.Storage.Enabled() {
		storageClient, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatalf("storage client: %v", err)
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			logger.Printf("ensure bucket failed bucket=%s err=%v", storageClient.Bucket(), err)
		}
		opts.Storage = storageClient
	}

	if cfg.RateLimit.Enabled {
		limiter, closeLimiter, err := newRateLimiter(cfg)
		if err != nil {
			logger.Fatalf("rate limiter: %v", err)
		}
		defer closeLimiter()
		opts.RateLimiter = limiter
	}

	app := api.NewServer(logger, opts)
	go app.Previews().Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s runtime=%s store=%s", cfg.API.Addr, pipeline.RuntimeName, cfg.Database.Driver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func openJobStore(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (store.JobStore, func()) {
	if cfg.Driver != "postgres" {
		return store.NewMemoryJobStore(), func() {}
	}
	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		logger.Fatalf("postgres store: %v", err)
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}
}

func newRateLimiter(cfg config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.Backend == "memory" {
		l, err := ratelimit.NewMemoryTokenBucket(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		return l, func() {}, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	l, err := ratelimit.NewRedisTokenBucket(client, cfg.RateLimit.Requests, cfg.RateLimit.Window, "")
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return l, func() { _ = client.Close() }, nil
}
