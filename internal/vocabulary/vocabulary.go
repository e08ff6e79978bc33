// Package vocabulary imports the canonical ingredient names.
package vocabulary

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"catalog_sync/internal/fetcher"
	"catalog_sync/internal/model"
)

// deleteMarker flags export rows that were marked for removal.
const deleteMarker = "удалить"

// Fetcher downloads a remote vocabulary file.
type Fetcher interface {
	Fetch(ctx context.Context, src fetcher.Source) (*fetcher.Feed, error)
}

// Store receives the parsed names.
type Store interface {
	AddIngredients(ctx context.Context, names []string) (int, error)
}

// Parse reads a headerless CSV whose first column holds ingredient names.
// Blank names and removal markers are dropped; duplicates keep their first position.
func Parse(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	seen := make(map[string]struct{})
	var names []string
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(record) == 0 {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff"))
		if name == "" || strings.EqualFold(name, deleteMarker) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Read loads the vocabulary file at source, an http(s) URL or a local path.
func Read(ctx context.Context, f Fetcher, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		feed, err := f.Fetch(ctx, fetcher.Source{URL: source, Format: model.FormatCSV})
		if err != nil {
			return nil, fmt.Errorf("fetch vocabulary: %w", err)
		}
		return feed.Body, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return data, nil
}

// Import reads source and adds its names to store. It returns the number of
// names found and the number actually added.
func Import(ctx context.Context, f Fetcher, store Store, source string) (found, added int, err error) {
	data, err := Read(ctx, f, source)
	if err != nil {
		return 0, 0, err
	}
	names, err := Parse(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("parse vocabulary: %w", err)
	}
	added, err = store.AddIngredients(ctx, names)
	if err != nil {
		return len(names), 0, fmt.Errorf("add ingredients: %w", err)
	}
	return len(names), added, nil
}
