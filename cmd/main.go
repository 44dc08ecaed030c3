package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timoknapp/gulfer/pkg/api"
	"github.com/timoknapp/gulfer/pkg/autosave"
	"github.com/timoknapp/gulfer/pkg/backup"
	"github.com/timoknapp/gulfer/pkg/config"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/merge"
	"github.com/timoknapp/gulfer/pkg/metrics"
	"github.com/timoknapp/gulfer/pkg/roundio"
	"github.com/timoknapp/gulfer/pkg/scheduler"
	"github.com/timoknapp/gulfer/pkg/storage"
	"github.com/timoknapp/gulfer/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	logger.SetLogLevelFromString(cfg.LogLevel)
	logger.SetFormat(cfg.LogFormat)
	logger.Info("Starting Gulfer backend server...")

	backend, err := storage.Open(cfg.DB)
	if err != nil {
		logger.Error("Failed to open %s database at %s: %v", cfg.DB.Driver, cfg.DB.Path, err)
		os.Exit(1)
	}
	defer backend.Close()

	policy := storage.RetryPolicy{Attempts: cfg.Storage.Retries, Delay: cfg.Storage.RetryDelay}
	registry := merge.New(backend, policy)
	stores := store.New(backend, policy, registry)

	settings, err := stores.Settings.Load(context.Background())
	if err != nil {
		logger.Error("Failed to load settings: %v", err)
		os.Exit(1)
	}
	logger.Info("Local storage id %s", settings.StorageID)

	codec := roundio.NewCodec(stores, registry)
	debouncer := autosave.New(stores.Rounds, cfg.AutosaveDelay)

	sched, err := scheduler.New(cfg.Backup, &backup.Job{Rounds: stores.Rounds, Exporter: codec})
	if err != nil {
		logger.Error("Failed to create backup scheduler: %v", err)
		os.Exit(1)
	}
	sched.Start()
	metrics.Init()
	metrics.SetReloadCallback(sched.Reload)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware(), api.Cors())
	api.Register(r, api.Deps{
		Backend:   backend,
		Stores:    stores,
		Codec:     codec,
		Debouncer: debouncer,
	})
	r.GET(metrics.StatsPath, metrics.StatsHandler)
	r.GET(metrics.DebugVarsPath, gin.WrapH(expvar.Handler()))
	r.GET(metrics.PrometheusPath, gin.WrapH(metrics.PrometheusHandler()))
	r.GET(metrics.EnvPath, metrics.GetEnvHandler)
	r.POST(metrics.EnvPath, metrics.SetEnvHandler)

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	go func() {
		logger.Info("Starting HTTP server on %s...", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown failed: %v", err)
	}
	if err := debouncer.Stop(ctx); err != nil {
		logger.Error("Failed to flush pending rounds: %v", err)
	}
	sched.Stop()
}
