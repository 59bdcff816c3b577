package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/pixeldesk/internal/config"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"github.com/dunamismax/pixeldesk/internal/storage"
	"github.com/dunamismax/pixeldesk/internal/store"
	"github.com/dunamismax/pixeldesk/internal/telemetry"
	"github.com/dunamismax/pixeldesk/internal/webhook"
	"github.com/dunamismax/pixeldesk/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixeldesk-worker",
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

	opts := worker.Options{
		Queue:  cfg.Queue,
		Worker: cfg.Worker,
		Render: cfg.Render,
		Prefix: cfg.Storage.OutputPrefix,
		Webhook: webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.Secret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxRetries + 1,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     8 * time.Second,
		}),
	}

	if cfg.Storage.Enabled() {
		storageClient, err := storage.NewClient(storage.Config{
			Endpoint:     cfg.Storage.Endpoint,
			Access:       cfg.Storage.AccessKey,
			Secret:       cfg.Storage.SecretKey,
			Bucket:       cfg.Storage.Bucket,
			UseSSL:       cfg.Storage.UseSSL,
			MaxReadBytes: cfg.API.MaxUploadBytes,
		})
		if err != nil {
			logger.Fatalf("storage client: %v", err)
		}
		opts.Storage = storageClient
	}

	if cfg.Database.Driver == "postgres" {
		pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatalf("postgres store: %v", err)
		}
		defer pg.Close()
		opts.Jobs = pg
	} else {
		logger.Printf("no shared job store configured; status and usage updates are skipped")
	}

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s runtime=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		pipeline.RuntimeName,
	)

	srv, err := worker.NewServer(logger, opts)
	if err != nil {
		logger.Fatalf("worker init failed: %v", err)
	}

	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		metricsServer := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server failed: %v", err)
			}
		}()
		defer metricsServer.Close()
	}

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
