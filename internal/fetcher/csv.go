package fetcher

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"golang.org/x/net/html/charset"

	"catalog_sync/internal/model"
)

// Row field names usable in a CSV column mapping.
const (
	ColumnID            = "id"
	ColumnName          = "name"
	ColumnShop          = "shop"
	ColumnPrice         = "price"
	ColumnPicture       = "picture"
	ColumnProteins      = "proteins"
	ColumnFats          = "fats"
	ColumnCarbohydrates = "carbohydrates"
	ColumnCalories      = "calories"
	ColumnCategory      = "category"
)

// DefaultColumns is the positional layout of the EcoMarket kitchen export.
var DefaultColumns = map[string]int{
	ColumnID:            4,
	ColumnName:          5,
	ColumnShop:          7,
	ColumnPrice:         12,
	ColumnPicture:       14,
	ColumnProteins:      16,
	ColumnFats:          17,
	ColumnCarbohydrates: 18,
	ColumnCalories:      19,
	ColumnCategory:      20,
}

var utf8BOM = []byte("\xef\xbb\xbf")

// CSVLayout describes a headerless delimited feed.
type CSVLayout struct {
	Delimiter rune
	Encoding  string
	Columns   map[string]int
}

// ValidateColumns checks that a mapping names only known fields, uses non-negative
// positions and includes the name and category columns.
func ValidateColumns(columns map[string]int) error {
	for field, pos := range columns {
		if !knownColumn(field) {
			return fmt.Errorf("unknown column %q", field)
		}
		if pos < 0 {
			return fmt.Errorf("column %q: negative position %d", field, pos)
		}
	}
	for _, required := range []string{ColumnName, ColumnCategory} {
		if _, ok := columns[required]; !ok {
			return fmt.Errorf("column %q is required", required)
		}
	}
	return nil
}

func knownColumn(field string) bool {
	switch field {
	case ColumnID, ColumnName, ColumnShop, ColumnPrice, ColumnPicture,
		ColumnProteins, ColumnFats, ColumnCarbohydrates, ColumnCalories, ColumnCategory:
		return true
	}
	return false
}

// ReadCSV yields the records of a headerless delimited feed mapped through layout.
func ReadCSV(body []byte, layout CSVLayout) iter.Seq2[model.SupplierRow, error] {
	return func(yield func(model.SupplierRow, error) bool) {
		columns := layout.Columns
		if len(columns) == 0 {
			columns = DefaultColumns
		}

		var r io.Reader = bytes.NewReader(bytes.TrimPrefix(body, utf8BOM))
		if enc := strings.ToLower(strings.TrimSpace(layout.Encoding)); enc != "" && enc != "utf-8" && enc != "utf8" {
			dec, err := charset.NewReaderLabel(enc, r)
			if err != nil {
				yield(model.SupplierRow{}, fmt.Errorf("%w: encoding %q: %v", ErrMalformedFeed, layout.Encoding, err))
				return
			}
			r = dec
		}

		cr := csv.NewReader(r)
		cr.Comma = layout.Delimiter
		if cr.Comma == 0 {
			cr.Comma = ';'
		}
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true

		for {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if !yield(model.SupplierRow{}, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, parseErr.Line, parseErr.Err)) {
					return
				}
				continue
			}
			if err != nil {
				yield(model.SupplierRow{}, fmt.Errorf("%w: read csv: %v", ErrMalformedFeed, err))
				return
			}

			row, err := mapRecord(record, columns)
			if !yield(row, err) {
				return
			}
		}
	}
}

func mapRecord(record []string, columns map[string]int) (model.SupplierRow, error) {
	for field, pos := range columns {
		if (field == ColumnName || field == ColumnCategory) && pos >= len(record) {
			return model.SupplierRow{}, fmt.Errorf("%w: %d fields, %s expected at %d", ErrMalformedRow, len(record), field, pos)
		}
	}

	get := func(field string) string {
		pos, ok := columns[field]
		if !ok || pos >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[pos])
	}

	return model.SupplierRow{
		SupplierID:    get(ColumnID),
		Name:          get(ColumnName),
		Category:      get(ColumnCategory),
		Shop:          get(ColumnShop),
		Picture:       get(ColumnPicture),
		Price:         get(ColumnPrice),
		Proteins:      get(ColumnProteins),
		Fats:          get(ColumnFats),
		Carbohydrates: get(ColumnCarbohydrates),
		Calories:      get(ColumnCalories),
	}, nil
}
