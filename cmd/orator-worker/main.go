// cmd/orator-worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/as3contender/alex-orator-bot/pkg/config"
	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/delivery"
	"github.com/as3contender/alex-orator-bot/pkg/gateway/telegram"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
)

func main() {
	if err := run(); err != nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadConfig(configPath()); err != nil {
		return err
	}
	cfg := config.AppConfig
	if err := logger.Configure(logger.Options{Level: cfg.Logging.Level, File: cfg.Logging.File}); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}

	if err := db.InitDB(cfg.Database, cfg.Logging); err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	gateway, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.RateLimitPerSecond)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	q := queue.New(db.DB,
		queue.WithClaimTTL(cfg.Worker.ClaimTTL()),
		queue.WithMaxAttempts(cfg.Worker.MaxAttempts),
	)
	worker := delivery.NewWorker(q, gateway, delivery.OptionsFrom(cfg.Worker))
	return worker.Run(ctx)
}

func configPath() string {
	if p := os.Getenv("ORATOR_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}
