package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/formpilot/fieldmap/internal/async"
	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/export"
	"github.com/formpilot/fieldmap/internal/orchestrator"
	"github.com/formpilot/fieldmap/internal/profiles"
	"github.com/formpilot/fieldmap/internal/repository"
	"github.com/formpilot/fieldmap/internal/server"
	"github.com/formpilot/fieldmap/internal/service"
)

func main() {
	// Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(slogger)

	// Env
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Checkpoint store
	var (
		inner repository.Store
		err   error
	)
	switch cfg.Store.Backend {
	case "postgres":
		inner, err = repository.NewPostgresStore(ctx, cfg.Store, slogger)
	default:
		inner, err = repository.NewSQLiteStore(cfg.Store.DSN, slogger)
	}
	if err != nil {
		log.Fatalf("opening %s store: %v", cfg.Store.Backend, err)
	}
	store := repository.NewBreakerStore(inner, slogger)
	defer store.Close()
	log.Infow("store ready", "backend", cfg.Store.Backend)

	// Mapping profiles
	registry := profiles.Defaults()
	if cfg.Pipeline.ProfilesPath != "" {
		registry, err = profiles.LoadFile(cfg.Pipeline.ProfilesPath)
		if err != nil {
			log.Fatalf("loading profiles: %v", err)
		}
		log.Infow("profiles loaded", "path", cfg.Pipeline.ProfilesPath)
	}

	// Pipeline + workers
	orch := orchestrator.New(store, registry, orchestrator.Config{
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		StageTimeout: cfg.Pipeline.StageTimeout,
	}, slogger)

	queue := async.NewWorkerQueue(orch, store, slogger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.QueueSize),
		async.WithJobTimeout(cfg.Queue.Timeout),
		async.WithLeaseTTL(cfg.Store.LeaseTTL),
	)

	// HTTP API
	svc := service.NewService(store, queue, slogger)
	exp := export.NewService(store, slogger)
	api := server.NewJobAPI(svc, exp, slogger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Infof("fieldmapd serving on :%s with %d workers", port, cfg.Queue.Workers)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	queue.Shutdown(shutdownCtx)
	fmt.Println("stopped.")
}
