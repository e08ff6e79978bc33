package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"catalog_sync/internal/config"
	"catalog_sync/internal/model"
	"catalog_sync/internal/storage"
)

var (
	// ErrRunInProgress is returned when a run is requested while another one is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrUnknownSupplier is returned for a supplier missing from the catalog.
	ErrUnknownSupplier = errors.New("unknown supplier")
)

// Runner serialises pipeline runs and records their outcome.
type Runner struct {
	pipeline *Pipeline
	catalog  *config.Catalog
	store    storage.Storage
	sem      *semaphore.Weighted
	log      *slog.Logger
	now      func() time.Time
}

// NewRunner creates a Runner over the suppliers of catalog.
func NewRunner(p *Pipeline, catalog *config.Catalog, store storage.Storage, log *slog.Logger) *Runner {
	return &Runner{
		pipeline: p,
		catalog:  catalog,
		store:    store,
		sem:      semaphore.NewWeighted(1),
		log:      log,
		now:      time.Now,
	}
}

// Catalog returns the supplier catalog the runner serves.
func (r *Runner) Catalog() *config.Catalog {
	return r.catalog
}

// SyncSuppliers creates scheduling state for catalog suppliers that have none yet.
func (r *Runner) SyncSuppliers(ctx context.Context) error {
	for _, s := range r.catalog.Suppliers {
		if err := r.store.EnsureSupplier(ctx, &model.Supplier{
			Name:            s.Name,
			IntervalMinutes: s.IntervalMinutes,
			IsActive:        true,
		}); err != nil {
			return fmt.Errorf("ensure supplier %q: %w", s.Name, err)
		}
	}
	return nil
}

// Run imports the named supplier unless another run is active. The report is
// saved and returned for every run that started; err is non-nil if it aborted.
func (r *Runner) Run(ctx context.Context, name string) (*model.RunReport, error) {
	sup, ok := r.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSupplier, name)
	}
	if !r.sem.TryAcquire(1) {
		return nil, ErrRunInProgress
	}
	defer r.sem.Release(1)

	report, runErr := r.pipeline.Run(ctx, sup)

	// Bookkeeping must survive a cancelled run context.
	bctx := context.WithoutCancel(ctx)
	if err := r.store.SaveRunReport(bctx, report); err != nil {
		r.log.Error("save run report", "supplier", name, "run_id", report.ID, "error", err)
	}
	r.markRun(bctx, name)

	return report, runErr
}

func (r *Runner) markRun(ctx context.Context, name string) {
	state, err := r.store.GetSupplier(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		sup, _ := r.catalog.Lookup(name)
		state = &model.Supplier{Name: name, IntervalMinutes: sup.IntervalMinutes, IsActive: true}
		if err := r.store.EnsureSupplier(ctx, state); err != nil {
			r.log.Error("ensure supplier", "supplier", name, "error", err)
			return
		}
	} else if err != nil {
		r.log.Error("get supplier", "supplier", name, "error", err)
		return
	}

	now := r.now().UTC()
	state.LastRunAt = &now
	if err := r.store.UpdateSupplier(ctx, state); err != nil {
		r.log.Error("update last run", "supplier", name, "error", err)
	}
}
