package bot

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"catalog_sync/internal/config"
	"catalog_sync/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"

	timeFormat = "2006-01-02 15:04 UTC"
)

// FormatReport formats a run report as a Telegram message.
func FormatReport(r *model.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] import %s\n\n", r.Supplier, r.Status)
	fmt.Fprintf(&b, "Run: %s\n", r.ID)
	fmt.Fprintf(&b, "Started: %s (took %s)\n", r.StartedAt.UTC().Format(timeFormat), r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Rows: %d seen, %d persisted, %d skipped\n", r.RowsSeen, r.RowsPersisted, r.SkippedTotal())
	fmt.Fprintf(&b, "Categories created: %d\n", r.CategoriesCreated)

	reasons := make([]model.SkipReason, 0, len(r.Skipped))
	for reason, n := range r.Skipped {
		if n > 0 {
			reasons = append(reasons, reason)
		}
	}
	slices.Sort(reasons)
	if len(reasons) > 0 {
		b.WriteString("\nSkipped:\n")
		for _, reason := range reasons {
			fmt.Fprintf(&b, "  %s: %d\n", reason, r.Skipped[reason])
		}
	}

	if r.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", r.Error)
	}
	return b.String()
}

// FormatSupplierList formats supplier scheduling state for display. The catalog,
// when given, adds each supplier's feed format.
func FormatSupplierList(states []model.Supplier, catalog *config.Catalog) string {
	if len(states) == 0 {
		return "No suppliers yet. Add them to the supplier catalog and restart."
	}
	var b strings.Builder
	b.WriteString("Suppliers:\n")
	for _, s := range states {
		status := statusActive
		if !s.IsActive {
			status = statusPaused
		}
		format := "not in catalog"
		if catalog != nil {
			if c, ok := catalog.Lookup(s.Name); ok {
				format = string(c.Format)
			}
		}
		fmt.Fprintf(&b, "\n%s  (%s, every %d min) [%s]\n", s.Name, format, s.IntervalMinutes, status)
		if s.LastRunAt != nil {
			fmt.Fprintf(&b, "   last run %s\n", s.LastRunAt.UTC().Format(timeFormat))
		} else {
			b.WriteString("   never run\n")
		}
	}
	return b.String()
}

// FormatRuleList formats the configured denylist and the operator rules.
func FormatRuleList(denylist []string, rules []model.CategoryRule) string {
	if len(denylist) == 0 && len(rules) == 0 {
		return "No excluded categories.\nUse /exclude or /exclude_re to add rules."
	}

	var b strings.Builder
	b.WriteString("Excluded categories:\n")
	if len(denylist) > 0 {
		b.WriteString("\nConfigured:\n")
		for _, name := range denylist {
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}

	groups := []struct {
		title string
		kind  model.CategoryRuleKind
	}{
		{"By name", model.RuleExclude},
		{"By regex", model.RuleExcludeRe},
	}
	for _, g := range groups {
		var lines []string
		for _, r := range rules {
			if r.Kind == g.kind {
				lines = append(lines, fmt.Sprintf("  R%d: %s\n", r.ID, r.Value))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", g.title)
		for _, l := range lines {
			b.WriteString(l)
		}
	}
	return b.String()
}
