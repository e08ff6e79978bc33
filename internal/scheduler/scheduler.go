// Package scheduler runs supplier imports whose interval has elapsed.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"catalog_sync/internal/bot"
	"catalog_sync/internal/model"
	"catalog_sync/internal/pipeline"
	"catalog_sync/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Runner starts a supplier import.
type Runner interface {
	Run(ctx context.Context, supplier string) (*model.RunReport, error)
}

// Scheduler periodically imports due suppliers and reports the outcome.
type Scheduler struct {
	store  storage.Storage
	runner Runner
	sender Sender
	chatID int64
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler. Reports go to chatID through sender; a nil sender
// or a zero chatID disables them.
func New(store storage.Storage, runner Runner, sender Sender, chatID int64, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		sender: sender,
		chatID: chatID,
		log:    log,
		tick:   1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	suppliers, err := s.store.ListDueSuppliers(ctx)
	if err != nil {
		s.log.Error("list due suppliers", "error", err)
		return
	}

	for _, sup := range suppliers {
		if ctx.Err() != nil {
			return
		}
		s.runSupplier(ctx, sup)
	}
}

func (s *Scheduler) runSupplier(ctx context.Context, sup model.Supplier) {
	s.log.Debug("supplier due", "supplier", sup.Name, "interval_minutes", sup.IntervalMinutes)

	report, err := s.runner.Run(ctx, sup.Name)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		// A manual run holds the lock; the next tick picks the supplier up again.
		s.log.Debug("run in progress, supplier postponed", "supplier", sup.Name)
		return
	case errors.Is(err, pipeline.ErrUnknownSupplier):
		s.log.Warn("supplier removed from catalog", "supplier", sup.Name)
		return
	case report == nil:
		s.log.Error("run supplier", "supplier", sup.Name, "error", err)
		return
	}

	s.notify(report)
}

func (s *Scheduler) notify(report *model.RunReport) {
	if s.sender == nil || s.chatID == 0 {
		return
	}
	s.sender.SendMessage(s.chatID, bot.FormatReport(report))
}
