package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"citymeet/mobile/internal/app"
	"citymeet/mobile/internal/config"
	"citymeet/mobile/internal/logging"
	"citymeet/mobile/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With("service", "client")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("app error", "error", err)
		os.Exit(1)
	}

	a.Search.OnResults(func(events []models.Event) {
		logger.Info("events_loaded", "count", len(events))
	})
	a.Search.OnError(func(err error) {
		logger.Warn("action", "action", "search", "status", "failed", "error", err)
	})

	a.Start(ctx)
	logger.Info("client_ready", "user_id", a.UserID())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown", "service", "client")
	a.Close()
}
