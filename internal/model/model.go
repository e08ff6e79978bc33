// Package model defines the domain types used across the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedFormat identifies the shape of a supplier feed.
type FeedFormat string

// Supported feed formats.
const (
	FormatCSV   FeedFormat = "csv"
	FormatYML   FeedFormat = "yml"
	FormatGoods FeedFormat = "goods"
)

// Unit is the unit of measure of a product package.
type Unit string

// Supported units. The set is closed: the extractor never produces anything else.
const (
	UnitMilliliter Unit = "мл"
	UnitLiter      Unit = "л"
	UnitGram       Unit = "г"
	UnitKilogram   Unit = "кг"
	UnitPiece      Unit = "шт"
)

// Valid reports whether u is one of the supported units.
func (u Unit) Valid() bool {
	switch u {
	case UnitMilliliter, UnitLiter, UnitGram, UnitKilogram, UnitPiece:
		return true
	}
	return false
}

// SupplierRow is one record of a supplier feed in the canonical shape shared by all adapters.
// Macro and price fields are kept as the raw text found in the feed.
type SupplierRow struct {
	SupplierID    string
	Name          string
	Category      string
	Shop          string
	Picture       string
	Price         string
	Proteins      string
	Fats          string
	Carbohydrates string
	Calories      string
}

// ParsedQuantity is the package size extracted from a product name.
type ParsedQuantity struct {
	Magnitude decimal.Decimal
	Unit      Unit
}

// CategoryProduct is a supplier product category.
type CategoryProduct struct {
	ID   int64
	Shop string
	Name string
}

// Ingredient is an entry of the canonical ingredient vocabulary.
type Ingredient struct {
	ID   int64
	Name string
}

// Product is a supplier product reconciled against the ingredient vocabulary.
type Product struct {
	ID            int64
	IngredientID  *int64
	Ingredient    string
	Shop          string
	CategoryID    int64
	SupplierID    int64
	Name          string
	Picture       string
	Proteins      float64
	Fats          float64
	Carbohydrates float64
	Calories      float64
	QtyPerItem    float64
	Unit          Unit
	Price         decimal.Decimal
}

// Supplier is the persisted scheduling state of a configured supplier.
type Supplier struct {
	Name            string
	IntervalMinutes int
	IsActive        bool
	LastRunAt       *time.Time
}

// CategoryRuleKind defines the type of category rule.
type CategoryRuleKind string

// Supported category rule kinds.
const (
	RuleExclude   CategoryRuleKind = "exclude"
	RuleExcludeRe CategoryRuleKind = "exclude_re"
)

// CategoryRule is an operator-managed denylist entry for supplier categories.
type CategoryRule struct {
	ID        int64
	Kind      CategoryRuleKind
	Value     string
	CreatedAt time.Time
}

// SkipReason explains why a feed row was not persisted.
type SkipReason string

// Row-local skip reasons.
const (
	SkipCategoryExcluded  SkipReason = "category_excluded"
	SkipNoQuantity        SkipReason = "no_quantity"
	SkipAmbiguousQuantity SkipReason = "ambiguous_quantity"
	SkipMalformedMacro    SkipReason = "malformed_macro"
	SkipMalformedRow      SkipReason = "malformed_row"
	SkipNoIngredientMatch SkipReason = "no_ingredient_match"
)

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

// Terminal run states.
const (
	RunDone    RunStatus = "done"
	RunAborted RunStatus = "aborted"
)

// RunReport summarises a single pipeline run for one supplier.
type RunReport struct {
	ID                string
	Supplier          string
	Status            RunStatus
	StartedAt         time.Time
	FinishedAt        time.Time
	RowsSeen          int
	RowsPersisted     int
	CategoriesCreated int
	Skipped           map[SkipReason]int
	Error             string
}

// SkippedTotal returns the number of rows skipped for any reason.
func (r *RunReport) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

// MacroPolicy decides what happens to a row whose macro field is non-empty but unparsable.
type MacroPolicy string

// Supported macro policies.
const (
	MacroZero MacroPolicy = "zero"
	MacroSkip MacroPolicy = "skip"
)
