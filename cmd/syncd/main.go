package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"catalog_sync/internal/app"
	"catalog_sync/internal/bot"
	"catalog_sync/internal/config"
	"catalog_sync/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.LogLevel)

	catalog, err := config.LoadCatalog(cfg.SuppliersFile)
	if err != nil {
		log.Error("load supplier catalog", "path", cfg.SuppliersFile, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Error("open database", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	runner, err := app.NewRunner(ctx, cfg, catalog, store, log)
	if err != nil {
		log.Error("create runner", "error", err)
		os.Exit(1)
	}

	var sender scheduler.Sender
	var b *bot.Bot
	if cfg.TelegramBotToken != "" {
		b, err = bot.New(cfg.TelegramBotToken, store, runner, catalog, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		sender = b
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN is not set, running without the operator bot")
	}

	sched := scheduler.New(store, runner, sender, cfg.ReportChatID, log)

	log.Info("starting catalog sync", "suppliers", len(catalog.Suppliers))

	if b != nil {
		go sched.Run(ctx)
		b.Run(ctx)
	} else {
		sched.Run(ctx)
	}

	log.Info("catalog sync stopped")
}
