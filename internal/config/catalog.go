package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"catalog_sync/internal/fetcher"
	"catalog_sync/internal/matcher"
	"catalog_sync/internal/model"
)

// DefaultIntervalMinutes is how often a supplier is imported unless configured otherwise.
const DefaultIntervalMinutes = 1440

// Catalog is the supplier catalog file.
type Catalog struct {
	MatchCutoff          float64           `yaml:"match_cutoff"`
	MalformedMacroPolicy model.MacroPolicy `yaml:"malformed_macro_policy"`
	ExcludedCategories   []string          `yaml:"excluded_categories"`
	Suppliers            []Supplier        `yaml:"suppliers"`
}

// Supplier configures one supplier feed.
type Supplier struct {
	Name                   string           `yaml:"name"`
	URL                    string           `yaml:"url"`
	Format                 model.FeedFormat `yaml:"format"`
	IntervalMinutes        int              `yaml:"interval_minutes"`
	RequireIngredientMatch *bool            `yaml:"require_ingredient_match"`
	DefaultPrice           string           `yaml:"default_price"`
	Delimiter              string           `yaml:"delimiter"`
	Encoding               string           `yaml:"encoding"`
	Columns                map[string]int   `yaml:"columns"`

	price decimal.Decimal
}

// RequiresMatch reports whether rows without an ingredient match are dropped.
func (s Supplier) RequiresMatch() bool {
	return s.RequireIngredientMatch == nil || *s.RequireIngredientMatch
}

// Price returns the price used for rows that carry none.
func (s Supplier) Price() decimal.Decimal {
	return s.price
}

// Source returns where and how to fetch the supplier feed.
func (s Supplier) Source() fetcher.Source {
	src := fetcher.Source{URL: s.URL, Format: s.Format}
	if s.Format == model.FormatCSV {
		delim, _ := utf8.DecodeRuneInString(s.Delimiter)
		src.CSV = fetcher.CSVLayout{
			Delimiter: delim,
			Encoding:  s.Encoding,
			Columns:   s.Columns,
		}
	}
	return src
}

// Lookup returns the supplier called name.
func (c *Catalog) Lookup(name string) (Supplier, bool) {
	for _, s := range c.Suppliers {
		if s.Name == name {
			return s, true
		}
	}
	return Supplier{}, false
}

// LoadCatalog reads, defaults and validates the supplier catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a supplier catalog, applies defaults and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if c.MatchCutoff == 0 {
		c.MatchCutoff = matcher.DefaultCutoff
	}
	if c.MatchCutoff < 0 || c.MatchCutoff > 1 {
		return nil, fmt.Errorf("match_cutoff must be in (0, 1], got %v", c.MatchCutoff)
	}

	switch c.MalformedMacroPolicy {
	case "":
		c.MalformedMacroPolicy = model.MacroZero
	case model.MacroZero, model.MacroSkip:
	default:
		return nil, fmt.Errorf("malformed_macro_policy must be %q or %q, got %q",
			model.MacroZero, model.MacroSkip, c.MalformedMacroPolicy)
	}

	if len(c.Suppliers) == 0 {
		return nil, fmt.Errorf("no suppliers configured")
	}
	seen := make(map[string]bool, len(c.Suppliers))
	for i := range c.Suppliers {
		s := &c.Suppliers[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return nil, fmt.Errorf("supplier %d: name is required", i+1)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("supplier %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("supplier %q: %w", s.Name, err)
		}
	}

	return &c, nil
}

func (s *Supplier) validate() error {
	if s.URL == "" {
		return fmt.Errorf("url is required")
	}

	switch s.Format {
	case model.FormatCSV:
		if s.Delimiter == "" {
			s.Delimiter = ";"
		}
		if utf8.RuneCountInString(s.Delimiter) != 1 {
			return fmt.Errorf("delimiter must be a single character, got %q", s.Delimiter)
		}
		if len(s.Columns) == 0 {
			s.Columns = fetcher.DefaultColumns
		}
		if err := fetcher.ValidateColumns(s.Columns); err != nil {
			return fmt.Errorf("columns: %w", err)
		}
	case model.FormatYML, model.FormatGoods:
		if s.Delimiter != "" || s.Encoding != "" || len(s.Columns) != 0 {
			return fmt.Errorf("delimiter, encoding and columns apply to csv feeds only")
		}
	default:
		return fmt.Errorf("unknown format %q", s.Format)
	}

	if s.IntervalMinutes == 0 {
		s.IntervalMinutes = DefaultIntervalMinutes
	}
	if s.IntervalMinutes < 0 {
		return fmt.Errorf("interval_minutes must be positive, got %d", s.IntervalMinutes)
	}

	s.price = decimal.Zero
	if s.DefaultPrice != "" {
		p, err := decimal.NewFromString(s.DefaultPrice)
		if err != nil {
			return fmt.Errorf("default_price: %w", err)
		}
		if p.IsNegative() {
			return fmt.Errorf("default_price must not be negative, got %s", s.DefaultPrice)
		}
		s.price = p
	}
	return nil
}
