// cmd/orator-bot/main.go
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/as3contender/alex-orator-bot/pkg/bot/handlers"
	"github.com/as3contender/alex-orator-bot/pkg/config"
	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/flowstate"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/matching"
	"github.com/as3contender/alex-orator-bot/pkg/pairing"
	"github.com/as3contender/alex-orator-bot/pkg/proposals"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/as3contender/alex-orator-bot/pkg/settings"
	"github.com/as3contender/alex-orator-bot/pkg/topics"
	"github.com/go-telegram/bot"
)

func main() {
	if err := run(); err != nil {
		logger.Error("bot exited with error", "error", err)
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state, err := flowstate.Open(cfg.FlowState, cfg.Redis, db.DB)
	if err != nil {
		return err
	}
	switch s := state.(type) {
	case *flowstate.MemoryStore:
		go s.StartSweeper(ctx, db.FlowStateCleanupInterval)
	case io.Closer:
		defer s.Close()
	default:
		go db.StartFlowStateCleanup(ctx, db.DB, db.FlowStateCleanupInterval)
	}

	store := settings.NewStore(db.DB)
	regs := registration.NewService(db.DB, topics.NewStore(db.DB))
	q := queue.New(db.DB)
	matcher := matching.NewMatcher(matching.NewDBSnapshot(db.DB, regs), nil)
	pairs := pairing.NewManager(db.DB, q, pairing.WithQuota(func(ctx context.Context) int {
		return store.MaxPairsPerUser(ctx, cfg.Pairing.MaxPairsPerUser)
	}))
	offers := proposals.NewService(db.DB, matcher, regs, pairs, q, state,
		proposals.WithLimits(store),
		proposals.WithDefaults(proposals.Defaults{
			MaxPairsPerUser:         cfg.Pairing.MaxPairsPerUser,
			MaxCandidatesPerRequest: cfg.Pairing.MaxCandidatesPerRequest,
		}),
		proposals.WithOfferTTL(cfg.Pairing.OfferTTL()),
	)

	h := handlers.New(handlers.Deps{
		DB:            db.DB,
		Registrations: regs,
		Pairs:         pairs,
		Proposals:     offers,
		Matcher:       matcher,
	})
	b, err := bot.New(cfg.Telegram.Token, bot.WithDefaultHandler(h.HandleDefault))
	if err != nil {
		return err
	}
	h.Register(b)

	logger.Info("Starting bot...")
	b.Start(ctx)
	return nil
}

func configPath() string {
	if p := os.Getenv("ORATOR_CONFIG"); p != "" {
		return p
	}
	return "config.json"
}
