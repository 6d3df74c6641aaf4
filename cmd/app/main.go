package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"async-import-export/internal/config"
	pg "async-import-export/internal/infra/db/postgres"
	"async-import-export/internal/infra/logging"
	"async-import-export/internal/infra/metrics"
	"async-import-export/internal/infra/queue"
	red "async-import-export/internal/infra/redis"
	"async-import-export/internal/infra/storage"
	"async-import-export/internal/infra/web"
	"async-import-export/internal/infra/worker"
	"async-import-export/internal/resource"
	"async-import-export/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging, sample resource)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Resource registry ----
	registry := resource.NewRegistry()
	if cfg.Runtime.Dev {
		if err := registry.Register("sample", resource.SampleFactory()); err != nil {
			logger.Fatal().Err(err).Msg("register sample resource")
		}
	}
	adapter := resource.NewAdapter(registry, cfg.Jobs.MaxRows)

	// ---- Storage ----
	store, err := storage.NewLocalStore(cfg.Jobs.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	// ---- Repositories (progress reads go through the redis cache) ----
	exportRepo := pg.NewExportJobRepoCacheDecorator(pg.NewExportJobRepo(pool), redisClient, cfg.Redis.TTL)
	importRepo := pg.NewImportJobRepoCacheDecorator(pg.NewImportJobRepo(pool), redisClient, cfg.Redis.TTL)

	// ---- Task queue ----
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue client")
	}
	defer queueClient.Close()

	runner := worker.NewRunner(exportRepo, importRepo, adapter, store, cfg.Jobs.ChunkSize, *logger)
	queueServer, err := queue.NewServer(&cfg.Queue, runner, *logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue server")
	}
	queueServer.Start()
	defer queueServer.Shutdown()

	// ---- Use cases ----
	txm := pg.NewTxManager(pool)
	exportUC := usecase.NewExportJobUseCase(exportRepo, txm, queueClient, adapter, store, *logger)
	importUC := usecase.NewImportJobUseCase(importRepo, txm, queueClient, adapter, store, *logger)

	// ---- Admin API ----
	var auth *web.AuthManager
	if cfg.Admin.JWTSecret != "" {
		auth = web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, 30*time.Minute)
	}
	srv := web.NewServer(exportUC, importUC, registry, cfg.Admin.APIKey, auth, cfg.Admin.PageSize, logger)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: mux}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("admin api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
