// cmd/orator-settings/main.go
package main

import (
	"context"
	"os"

	"github.com/as3contender/alex-orator-bot/pkg/config"
	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/settings"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logger.Error("settings command failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := config.LoadConfig(configPath()); err != nil {
		return err
	}
	cfg := config.AppConfig
	if err := db.InitDB(cfg.Database, cfg.Logging); err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	return settings.RunCommand(context.Background(), settings.NewStore(db.DB), args, os.Stdout)
}

func configPath() string {
	if p := os.Getenv("ORATOR_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}
