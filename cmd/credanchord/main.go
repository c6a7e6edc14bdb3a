// Command credanchord serves the credential anchoring API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credanchor/internal/config"
	"credanchor/internal/infra/db"
	httpinfra "credanchor/internal/infra/http"

	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.PostgresDSN, logger.Named("db"))
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	srv, err := httpinfra.NewServer(ctx, cfg, store, logger.Named("http"))
	if err != nil {
		logger.Fatal("failed to init server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
