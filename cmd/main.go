package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedutinova/narrator/internal/backend"
	appconfig "github.com/fedutinova/narrator/internal/config"
	"github.com/fedutinova/narrator/internal/metrics"
	"github.com/fedutinova/narrator/internal/pipeline"
	"github.com/fedutinova/narrator/internal/redis"
	"github.com/fedutinova/narrator/internal/registry"
	"github.com/fedutinova/narrator/internal/server"
	"github.com/fedutinova/narrator/internal/storage"
	"github.com/fedutinova/narrator/internal/supervisor"
	httpapi "github.com/fedutinova/narrator/internal/transport/http"
	"github.com/fedutinova/narrator/internal/workers"
)

func main() {
	cfg := appconfig.Load()
	setupLogger(cfg)
	slog.Info("starting narrator", "addr", cfg.HTTPAddr, "max_worker_processes", cfg.MaxWorkerProcesses)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	jobs := registry.New(registry.WithMetrics(m))

	storageService, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	slog.Info("storage initialized", "type", storage.Describe(cfg))
	publisher := storage.NewPublisher(storageService, jobs, cfg.ArtifactURLTTL)

	var redisService *redis.Service
	if cfg.RedisURL != "" {
		redisService, err = redis.New(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisService.Close()

		mirror := redisService.NewMirror(cfg.RedisChannel, cfg.StreamBuffer)
		unsubscribe := jobs.Subscribe(mirror.Handle)
		defer unsubscribe()
		go mirror.Run(ctx)
	}

	sup := supervisor.New(jobs,
		supervisor.WithMetrics(m),
		supervisor.WithMaxProcesses(cfg.MaxWorkerProcesses),
		supervisor.WithKillGrace(cfg.KillGrace),
		supervisor.WithStderrLevel(cfg.WorkerStderrLevel),
		supervisor.WithCompletionHook(publisher.Hook),
	)
	catalog := workers.CatalogFromConfig(cfg)
	if len(catalog.Kinds()) == 0 {
		slog.Warn("no worker commands configured; job submission will be rejected")
	}

	b, err := backend.FromConfig(cfg, m)
	if err != nil {
		slog.Error("failed to configure transform backend", "err", err)
		os.Exit(1)
	}
	preset, err := pipeline.LoadPreset(cfg.PipelinePreset)
	if err != nil {
		slog.Error("failed to load pipeline preset", "path", cfg.PipelinePreset, "err", err)
		os.Exit(1)
	}

	handlers := &httpapi.Handlers{
		Jobs:       jobs,
		Dispatcher: workers.NewDispatcher(jobs, sup, catalog),
		Processes:  sup,
		Pipeline:   pipeline.New(b, pipeline.WithMetrics(m)),
		Defaults:   preset,
		Storage:    storageService,
		Redis:      redisService,
		Metrics:    m,
		Config:     cfg,
	}
	r := server.NewRouter(handlers, m, cfg.CORSOrigins)

	// no WriteTimeout: event streams and pipeline runs stay open
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shCancel()
	if err := sup.Shutdown(shCtx); err != nil {
		slog.Warn("workers did not stop in time", "err", err, "running", sup.Running())
	}
	_ = srv.Shutdown(shCtx)
	cancel()
}

func setupLogger(cfg appconfig.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
