package bot

import (
	"context"
	"errors"
	"fmt"

	"catalog_sync/internal/filter"
	"catalog_sync/internal/model"
	"catalog_sync/internal/pipeline"
	"catalog_sync/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Catalog Sync!

This bot imports supplier feeds into the product catalog.

Quick start:
1. /suppliers — see configured suppliers
2. /run <supplier> — import a supplier now
3. /report <supplier> — see the last import

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Suppliers:
/suppliers — list suppliers and their schedule
/report <supplier> — last import report
/run <supplier> — import now
/pause <supplier> — stop scheduled imports
/resume <supplier> — resume scheduled imports
/interval <supplier> <min> — set import interval (1-10080)

Category rules:
/rules — show excluded categories
/exclude <category> — exclude a category by name
/exclude_re <regex> — exclude categories matching a regex
/rmrule <rule_id> — remove a rule`)
}

func (b *Bot) handleSuppliers(ctx context.Context, chatID int64) {
	states, err := b.store.ListSuppliers(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, s.Name)
	}
	b.replyWithKeyboard(chatID, FormatSupplierList(states, b.catalog), supplierKeyboard(names))
}

func (b *Bot) handleReport(ctx context.Context, chatID int64, args string) {
	name, err := ParseSupplierArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /report <supplier>")
		return
	}

	report, err := b.store.LatestRunReport(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("No imports of \"%s\" yet.", name))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatReport(report))
}

func (b *Bot) handleRun(ctx context.Context, chatID int64, args string) {
	name, err := ParseSupplierArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /run <supplier>")
		return
	}

	b.reply(chatID, fmt.Sprintf("Importing \"%s\"...", name))
	report, err := b.runner.Run(ctx, name)
	switch {
	case errors.Is(err, pipeline.ErrUnknownSupplier):
		b.reply(chatID, fmt.Sprintf("Supplier \"%s\" not found.", name))
		return
	case errors.Is(err, pipeline.ErrRunInProgress):
		b.reply(chatID, "Another import is running. Try again later.")
		return
	case report == nil:
		b.reply(chatID, fmt.Sprintf("Import failed: %v", err))
		return
	}
	b.reply(chatID, FormatReport(report))
}

func (b *Bot) handleSetActive(ctx context.Context, chatID int64, args string, active bool) {
	name, err := ParseSupplierArg(args)
	if err != nil {
		if active {
			b.reply(chatID, "Usage: /resume <supplier>")
		} else {
			b.reply(chatID, "Usage: /pause <supplier>")
		}
		return
	}

	sup, err := b.store.GetSupplier(ctx, name)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Supplier \"%s\" not found.", name))
		return
	}

	sup.IsActive = active
	if err := b.store.UpdateSupplier(ctx, sup); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if active {
		b.reply(chatID, fmt.Sprintf("Supplier \"%s\" resumed.", name))
	} else {
		b.reply(chatID, fmt.Sprintf("Supplier \"%s\" paused.", name))
	}
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	name, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	sup, err := b.store.GetSupplier(ctx, name)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Supplier \"%s\" not found.", name))
		return
	}

	sup.IntervalMinutes = mins
	if err := b.store.UpdateSupplier(ctx, sup); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Supplier \"%s\" interval set to %d min.", name, mins))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.store.ListCategoryRules(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	var denylist []string
	if b.catalog != nil {
		denylist = b.catalog.ExcludedCategories
	}
	b.replyWithKeyboard(chatID, FormatRuleList(denylist, rules), ruleKeyboard(rules))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, args string, kind model.CategoryRuleKind) {
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <%s>", kind, ruleArgName(kind)))
		return
	}

	if kind == model.RuleExcludeRe {
		if err := filter.ValidateRegex(args); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	r := &model.CategoryRule{Kind: kind, Value: args}
	if err := b.store.CreateCategoryRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Rule R%d added: %s %s\nIt applies from the next import.", r.ID, kind, args))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}

	err = b.store.DeleteCategoryRule(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d removed.", id))
}

func ruleArgName(kind model.CategoryRuleKind) string {
	if kind == model.RuleExcludeRe {
		return "regex"
	}
	return "category"
}
