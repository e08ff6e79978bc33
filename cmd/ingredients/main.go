// Command ingredients imports the canonical ingredient vocabulary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"catalog_sync/internal/app"
	"catalog_sync/internal/config"
	"catalog_sync/internal/fetcher"
	"catalog_sync/internal/vocabulary"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ingredients <file or URL>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Reads a headerless CSV with one ingredient name per line.")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	source := flag.Arg(0)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Error("open database", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	f := fetcher.New(&http.Client{Timeout: cfg.FetchTimeout}, cfg.FeedMaxBytes)
	found, added, err := vocabulary.Import(ctx, f, store, source)
	if err != nil {
		log.Error("import ingredients", "source", source, "error", err)
		os.Exit(1)
	}

	log.Info("ingredients imported", "source", source, "found", found, "added", added)
}
