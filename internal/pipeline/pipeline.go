// Package pipeline reconciles supplier feeds into the product catalog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"catalog_sync/internal/config"
	"catalog_sync/internal/extract"
	"catalog_sync/internal/fetcher"
	"catalog_sync/internal/filter"
	"catalog_sync/internal/matcher"
	"catalog_sync/internal/model"
	"catalog_sync/internal/storage"
)

var errNoIngredientMatch = errors.New("no ingredient match")

// Fetcher downloads a supplier feed.
type Fetcher interface {
	Fetch(ctx context.Context, src fetcher.Source) (*fetcher.Feed, error)
}

// Archiver keeps a copy of each downloaded feed.
type Archiver interface {
	Store(ctx context.Context, supplier string, feed *fetcher.Feed) (string, error)
}

// Settings are the catalog-wide knobs of a run.
type Settings struct {
	MatchCutoff        float64
	MacroPolicy        model.MacroPolicy
	ExcludedCategories []string
}

// SettingsFromCatalog extracts run settings from the supplier catalog.
func SettingsFromCatalog(c *config.Catalog) Settings {
	return Settings{
		MatchCutoff:        c.MatchCutoff,
		MacroPolicy:        c.MalformedMacroPolicy,
		ExcludedCategories: c.ExcludedCategories,
	}
}

// Pipeline fetches a supplier feed and replaces that supplier's products with
// the rows that pass filtering, extraction and matching.
type Pipeline struct {
	store    storage.Storage
	fetcher  Fetcher
	archive  Archiver
	settings Settings
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Pipeline.
func New(store storage.Storage, f Fetcher, settings Settings, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		fetcher:  f,
		settings: settings,
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// SetArchive enables raw feed archiving. Archive failures never fail a run.
func (p *Pipeline) SetArchive(a Archiver) {
	p.archive = a
}

// Run imports one supplier. The returned report is never nil; a non-nil error
// means the run was aborted and the supplier's products are unchanged.
func (p *Pipeline) Run(ctx context.Context, sup config.Supplier) (*model.RunReport, error) {
	report := &model.RunReport{
		ID:        p.newID(),
		Supplier:  sup.Name,
		StartedAt: p.now().UTC(),
		Skipped:   make(map[model.SkipReason]int),
	}
	log := p.log.With("supplier", sup.Name, "run_id", report.ID)

	err := p.run(ctx, sup, report, log)
	report.FinishedAt = p.now().UTC()
	if err != nil {
		report.Status = model.RunAborted
		report.Error = err.Error()
		log.Error("run aborted", "rows_seen", report.RowsSeen, "error", err)
		return report, err
	}

	report.Status = model.RunDone
	log.Info("run finished",
		"rows_seen", report.RowsSeen,
		"persisted", report.RowsPersisted,
		"skipped", report.SkippedTotal(),
		"categories_created", report.CategoriesCreated,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, sup config.Supplier, report *model.RunReport, log *slog.Logger) error {
	// Snapshots are taken before the import transaction opens: the SQLite store
	// has a single connection.
	ingredients, err := p.store.ListIngredients(ctx)
	if err != nil {
		return fmt.Errorf("list ingredients: %w", err)
	}
	rules, err := p.store.ListCategoryRules(ctx)
	if err != nil {
		return fmt.Errorf("list category rules: %w", err)
	}

	feed, err := p.fetcher.Fetch(ctx, sup.Source())
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}
	log.Debug("feed fetched", "bytes", len(feed.Body))
	p.archiveFeed(ctx, sup.Name, feed, log)

	tx, err := p.store.BeginImport(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted, err := tx.DeleteProducts(ctx, sup.Name)
	if err != nil {
		return fmt.Errorf("clear products: %w", err)
	}
	log.Debug("products cleared", "count", deleted)

	imp := newImporter(tx, sup, ingredients, rules, p.settings, log)
	persisted := 0
	row := 0
	for rec, err := range feed.Rows() {
		row++
		if err != nil && !errors.Is(err, fetcher.ErrMalformedRow) {
			return fmt.Errorf("read feed: %w", err)
		}
		report.RowsSeen++
		if err == nil {
			err = imp.importRow(ctx, rec)
		}
		if err != nil {
			reason, ok := skipReason(err)
			if !ok {
				return fmt.Errorf("import row %d: %w", row, err)
			}
			report.Skipped[reason]++
			log.Debug("row skipped", "row", row, "reason", reason, "error", err)
			continue
		}
		persisted++
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	report.RowsPersisted = persisted
	report.CategoriesCreated = imp.categories.Created()
	return nil
}

func (p *Pipeline) archiveFeed(ctx context.Context, supplier string, feed *fetcher.Feed, log *slog.Logger) {
	if p.archive == nil {
		return
	}
	key, err := p.archive.Store(ctx, supplier, feed)
	if err != nil {
		log.Warn("archive feed", "error", err)
		return
	}
	log.Debug("feed archived", "key", key)
}

func skipReason(err error) (model.SkipReason, bool) {
	switch {
	case errors.Is(err, filter.ErrCategoryExcluded):
		return model.SkipCategoryExcluded, true
	case errors.Is(err, extract.ErrAmbiguousQuantity):
		return model.SkipAmbiguousQuantity, true
	case errors.Is(err, extract.ErrNoQuantity):
		return model.SkipNoQuantity, true
	case errors.Is(err, extract.ErrMalformedMacro):
		return model.SkipMalformedMacro, true
	case errors.Is(err, errNoIngredientMatch):
		return model.SkipNoIngredientMatch, true
	case errors.Is(err, fetcher.ErrMalformedRow), errors.Is(err, filter.ErrEmptyCategory):
		return model.SkipMalformedRow, true
	}
	return "", false
}

// importer turns canonical rows into products inside one import transaction.
type importer struct {
	tx            storage.ImportTx
	supplier      config.Supplier
	engine        *filter.Engine
	categories    *filter.Categories
	matcher       *matcher.Matcher
	ingredientIDs map[string]int64
	macroPolicy   model.MacroPolicy
	log           *slog.Logger
}

func newImporter(tx storage.ImportTx, sup config.Supplier, ingredients []model.Ingredient,
	rules []model.CategoryRule, settings Settings, log *slog.Logger) *importer {
	names := make([]string, 0, len(ingredients))
	ids := make(map[string]int64, len(ingredients))
	for _, ing := range ingredients {
		names = append(names, ing.Name)
		ids[ing.Name] = ing.ID
	}
	return &importer{
		tx:            tx,
		supplier:      sup,
		engine:        filter.New(settings.ExcludedCategories, rules),
		categories:    filter.NewCategories(tx),
		matcher:       matcher.New(names, settings.MatchCutoff),
		ingredientIDs: ids,
		macroPolicy:   settings.MacroPolicy,
		log:           log,
	}
}

func (imp *importer) importRow(ctx context.Context, row model.SupplierRow) error {
	if err := imp.engine.Check(row.Category); err != nil {
		return err
	}
	cat, err := imp.categories.Ensure(ctx, row.Category, imp.supplier.Name)
	if err != nil {
		return err
	}

	qty, err := extract.ParseQuantity(row.Name)
	if err != nil {
		return err
	}

	var macros [4]float64
	for i, raw := range []string{row.Proteins, row.Fats, row.Carbohydrates, row.Calories} {
		v, err := extract.ParseMacro(raw)
		if err != nil {
			if imp.macroPolicy == model.MacroSkip {
				return err
			}
			imp.log.Warn("macro coerced to zero", "product", row.Name, "error", err)
		}
		macros[i] = v
	}

	price, err := imp.price(row.Price)
	if err != nil {
		return err
	}
	supplierID, err := strconv.ParseInt(strings.TrimSpace(row.SupplierID), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: supplier id %q", fetcher.ErrMalformedRow, row.SupplierID)
	}

	p := &model.Product{
		Shop:          imp.supplier.Name,
		CategoryID:    cat.ID,
		SupplierID:    supplierID,
		Name:          strings.TrimSpace(row.Name),
		Picture:       row.Picture,
		Proteins:      macros[0],
		Fats:          macros[1],
		Carbohydrates: macros[2],
		Calories:      macros[3],
		QtyPerItem:    qty.Magnitude.InexactFloat64(),
		Unit:          qty.Unit,
		Price:         price,
	}

	res := imp.matcher.Match(row.Name)
	switch {
	case res.Matched:
		id := imp.ingredientIDs[res.Name]
		p.IngredientID = &id
		p.Ingredient = res.Name
	case imp.supplier.RequiresMatch():
		return fmt.Errorf("%w for %q", errNoIngredientMatch, row.Name)
	}

	if err := imp.tx.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (imp *importer) price(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return imp.supplier.Price(), nil
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil || price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q", fetcher.ErrMalformedRow, raw)
	}
	return price, nil
}
