// Command import runs supplier imports once and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"catalog_sync/internal/app"
	"catalog_sync/internal/bot"
	"catalog_sync/internal/config"
	"catalog_sync/internal/model"
)

func main() {
	supplier := flag.String("supplier", "", "import only this supplier (default: all active suppliers)")
	flag.Parse()

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

	names, err := selectSuppliers(ctx, store, catalog, *supplier)
	if err != nil {
		log.Error("select suppliers", "error", err)
		os.Exit(1)
	}

	failed := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		report, err := runner.Run(ctx, name)
		if report != nil {
			fmt.Println(bot.FormatReport(report))
		}
		if err != nil {
			failed++
			if report == nil {
				log.Error("run supplier", "supplier", name, "error", err)
			}
		}
	}

	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

type supplierLister interface {
	ListSuppliers(ctx context.Context) ([]model.Supplier, error)
}

// selectSuppliers returns the single requested supplier, or every active one.
func selectSuppliers(ctx context.Context, store supplierLister, catalog *config.Catalog, only string) ([]string, error) {
	if only != "" {
		if _, ok := catalog.Lookup(only); !ok {
			return nil, fmt.Errorf("supplier %q is not in the catalog", only)
		}
		return []string{only}, nil
	}

	states, err := store.ListSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range states {
		if !s.IsActive {
			continue
		}
		if _, ok := catalog.Lookup(s.Name); ok {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("no active suppliers")
	}
	return names, nil
}
