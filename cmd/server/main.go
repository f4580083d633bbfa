package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slide-sync/internal/platform/config"
	"slide-sync/internal/platform/logger"
	"slide-sync/internal/platform/metrics"
	"slide-sync/internal/session"
	"slide-sync/internal/slidesync"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	syncCfg := syncConfigFromEnv()

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	repo := session.NewInMemoryRepository()
	svc := session.NewService(repo, syncCfg, log, met)
	h := session.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetActiveSessions(svc.ActiveSessionCount())
			met.SetStaleSessions(svc.StaleSessionCount())
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"log_level", logLevel,
		"sync_interval", syncCfg.SyncInterval,
		"preload", syncCfg.PreloadTime,
		"delay", syncCfg.DelayTime,
		"max_deck_bytes", syncCfg.MaxDeckBytes,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, closing sessions")
	svc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// syncConfigFromEnv builds the engine configuration from SYNC_* and DECK_*
// variables, starting from slidesync.DefaultSyncConfig.
func syncConfigFromEnv() slidesync.SyncConfig {
	def := slidesync.DefaultSyncConfig()
	return slidesync.SyncConfig{
		SyncInterval:              config.GetEnvMillis("SYNC_INTERVAL_MS", def.SyncInterval),
		PreloadTime:               config.GetEnvMillis("SYNC_PRELOAD_MS", def.PreloadTime),
		DelayTime:                 config.GetEnvMillis("SYNC_DELAY_MS", def.DelayTime),
		SmoothTransition:          config.GetEnvBool("SYNC_SMOOTH_TRANSITION", def.SmoothTransition),
		DefaultTransitionDuration: config.GetEnvMillis("SYNC_TRANSITION_MS", def.DefaultTransitionDuration),
		StaleAfter:                config.GetEnvMillis("SYNC_STALE_AFTER_MS", def.StaleAfter),
		FetchTimeout:              config.GetEnvMillis("DECK_FETCH_TIMEOUT_MS", def.FetchTimeout),
		MaxDeckBytes:              config.GetEnvInt64("DECK_MAX_BYTES", def.MaxDeckBytes),
	}
}
