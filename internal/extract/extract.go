// Package extract parses package sizes and macro-nutrient values out of supplier free text.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"catalog_sync/internal/model"
)

// Extraction errors. They are row-local: callers skip the row and keep going.
var (
	ErrNoQuantity        = errors.New("no quantity found")
	ErrAmbiguousQuantity = errors.New("ambiguous quantity")
	ErrMalformedMacro    = errors.New("malformed macro value")
)

var (
	// A number of at most three trailing digits, an optional space and a unit token.
	// RE2 has no unicode \b, so the unit must be followed by a non-word rune or the end.
	quantityPattern = regexp.MustCompile(`([0-9]*[.,]?[0-9]{1,3}) ?(кг|гр|г|ГР|л|мл|шт|штук)(?:[^\p{L}\p{N}_]|$)`)

	macroPattern = regexp.MustCompile(`\d+\.?\d*`)
)

var unitTokens = map[string]model.Unit{
	"кг":   model.UnitKilogram,
	"гр":   model.UnitGram,
	"г":    model.UnitGram,
	"ГР":   model.UnitGram,
	"л":    model.UnitLiter,
	"мл":   model.UnitMilliliter,
	"шт":   model.UnitPiece,
	"штук": model.UnitPiece,
}

const (
	dozenPhrase  = "1 десяток"
	weightMarker = "вес"
)

// DefaultQuantity is used for goods sold by weight without an explicit package size.
var DefaultQuantity = model.ParsedQuantity{Magnitude: decimal.NewFromInt(1), Unit: model.UnitKilogram}

// ParseQuantity extracts the package size from a product name.
//
// Exactly one quantity token must be present; two or more make the name ambiguous.
// Without a token, "1 десяток" means 10 pieces (the supplier market sells eggs
// in tens) and a name mentioning "вес" is sold by the kilogram.
func ParseQuantity(name string) (model.ParsedQuantity, error) {
	matches := quantityPattern.FindAllStringSubmatch(name, -1)
	switch {
	case len(matches) == 1:
		return quantityFromMatch(matches[0][1], matches[0][2])
	case len(matches) > 1:
		return model.ParsedQuantity{}, fmt.Errorf("%w: %d tokens in %q", ErrAmbiguousQuantity, len(matches), name)
	}

	lower := strings.ToLower(name)
	if strings.Contains(lower, dozenPhrase) {
		return model.ParsedQuantity{Magnitude: decimal.NewFromInt(10), Unit: model.UnitPiece}, nil
	}
	if strings.Contains(lower, weightMarker) {
		return DefaultQuantity, nil
	}
	return model.ParsedQuantity{}, fmt.Errorf("%w in %q", ErrNoQuantity, name)
}

func quantityFromMatch(number, token string) (model.ParsedQuantity, error) {
	// A bare leading point is dropped, not read as a fraction: ".5" is 5.
	number = strings.TrimPrefix(number, ".")
	number = strings.ReplaceAll(number, ",", ".")

	magnitude, err := decimal.NewFromString(number)
	if err != nil {
		return model.ParsedQuantity{}, fmt.Errorf("%w: parse %q: %v", ErrNoQuantity, number, err)
	}
	unit, ok := unitTokens[token]
	if !ok {
		return model.ParsedQuantity{}, fmt.Errorf("%w: unknown unit %q", ErrNoQuantity, token)
	}
	return model.ParsedQuantity{Magnitude: magnitude, Unit: unit}, nil
}

// ParseMacro extracts the first decimal number of a macro-nutrient field such as "8,3 г.".
// An empty field is 0. A non-empty field without a number returns ErrMalformedMacro.
func ParseMacro(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}

	found := macroPattern.FindString(strings.ReplaceAll(text, ",", "."))
	if found == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedMacro, text)
	}
	v, err := strconv.ParseFloat(found, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedMacro, text, err)
	}
	return v, nil
}
