package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalog_sync/internal/model"
	"catalog_sync/internal/storage"
)

// ErrEmptyCategory marks a row without a category name.
var ErrEmptyCategory = errors.New("empty category name")

// CategoryStore is the part of an import transaction the category cache needs.
type CategoryStore interface {
	FindCategory(ctx context.Context, shop, name string) (*model.CategoryProduct, error)
	CreateCategory(ctx context.Context, c *model.CategoryProduct) error
}

// Categories is the working set of categories for one run. Names are the dedup key.
type Categories struct {
	store   CategoryStore
	seen    map[string]*model.CategoryProduct
	created int
}

// NewCategories creates an empty working set backed by store.
func NewCategories(store CategoryStore) *Categories {
	return &Categories{
		store: store,
		seen:  make(map[string]*model.CategoryProduct),
	}
}

// Ensure returns the category called name, creating it for shop on first use.
func (c *Categories) Ensure(ctx context.Context, name, shop string) (*model.CategoryProduct, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyCategory
	}
	if cat, ok := c.seen[name]; ok {
		return cat, nil
	}

	cat, err := c.store.FindCategory(ctx, shop, name)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		cat = &model.CategoryProduct{Shop: shop, Name: name}
		if err := c.store.CreateCategory(ctx, cat); err != nil {
			return nil, fmt.Errorf("create category %q: %w", name, err)
		}
		c.created++
	default:
		return nil, fmt.Errorf("find category %q: %w", name, err)
	}

	c.seen[name] = cat
	return cat, nil
}

// Created returns how many categories this working set inserted.
func (c *Categories) Created() int {
	return c.created
}
