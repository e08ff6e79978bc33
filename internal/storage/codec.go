package storage

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"catalog_sync/internal/model"
)

func encodeSkipped(skipped map[model.SkipReason]int) (string, error) {
	if len(skipped) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(skipped)
	if err != nil {
		return "", fmt.Errorf("encode skip counts: %w", err)
	}
	return string(b), nil
}

func decodeSkipped(b []byte) (map[model.SkipReason]int, error) {
	skipped := make(map[model.SkipReason]int)
	if len(b) == 0 {
		return skipped, nil
	}
	if err := json.Unmarshal(b, &skipped); err != nil {
		return nil, fmt.Errorf("decode skip counts: %w", err)
	}
	return skipped, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	return d, nil
}
