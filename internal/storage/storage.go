// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"catalog_sync/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	ListIngredients(ctx context.Context) ([]model.Ingredient, error)
	AddIngredients(ctx context.Context, names []string) (int, error)

	BeginImport(ctx context.Context) (ImportTx, error)
	ListProducts(ctx context.Context, shop string) ([]model.Product, error)
	ListCategories(ctx context.Context, shop string) ([]model.CategoryProduct, error)

	CreateCategoryRule(ctx context.Context, r *model.CategoryRule) error
	ListCategoryRules(ctx context.Context) ([]model.CategoryRule, error)
	DeleteCategoryRule(ctx context.Context, id int64) error

	EnsureSupplier(ctx context.Context, s *model.Supplier) error
	GetSupplier(ctx context.Context, name string) (*model.Supplier, error)
	ListSuppliers(ctx context.Context) ([]model.Supplier, error)
	ListDueSuppliers(ctx context.Context) ([]model.Supplier, error)
	UpdateSupplier(ctx context.Context, s *model.Supplier) error

	SaveRunReport(ctx context.Context, r *model.RunReport) error
	LatestRunReport(ctx context.Context, supplier string) (*model.RunReport, error)

	Close() error
}

// ImportTx is the write path of one supplier import. Nothing it does is visible
// to other readers until Commit; Rollback after Commit is a no-op.
type ImportTx interface {
	DeleteProducts(ctx context.Context, shop string) (int64, error)
	FindCategory(ctx context.Context, shop, name string) (*model.CategoryProduct, error)
	CreateCategory(ctx context.Context, c *model.CategoryProduct) error
	CreateProduct(ctx context.Context, p *model.Product) error
	Commit() error
	Rollback() error
}
