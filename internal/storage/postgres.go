package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"catalog_sync/internal/model"
	"catalog_sync/migrations"
)

// Postgres implements Storage backed by a PostgreSQL connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and runs pending migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrations.Run(db, migrations.Postgres)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// ListIngredients returns the whole ingredient vocabulary in insertion order.
func (p *Postgres) ListIngredients(ctx context.Context) ([]model.Ingredient, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name FROM ingredients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ingredients: %w", err)
	}
	defer rows.Close()

	var out []model.Ingredient
	for rows.Next() {
		var ing model.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name); err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// AddIngredients inserts the names not yet in the vocabulary and returns how many were added.
func (p *Postgres) AddIngredients(ctx context.Context, names []string) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	added := 0
	for _, name := range names {
		tag, err := tx.Exec(ctx,
			`INSERT INTO ingredients (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return 0, fmt.Errorf("insert ingredient %q: %w", name, err)
		}
		added += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

// BeginImport starts the transaction of one supplier import.
func (p *Postgres) BeginImport(ctx context.Context) (ImportTx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &postgresImport{tx: tx}, nil
}

// ListProducts returns the products of a shop, or of every shop when shop is empty.
func (p *Postgres) ListProducts(ctx context.Context, shop string) ([]model.Product, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT p.id, p.ingredient_id, COALESCE(i.name, ''), p.shop, p.category_id, p.supplier_id,
		        p.name, p.picture, p.proteins, p.fats, p.carbohydrates, p.calories,
		        p.qty_per_item, p.unit, p.price::text
		 FROM products p LEFT JOIN ingredients i ON i.id = p.ingredient_id
		 WHERE $1::text = '' OR p.shop = $1
		 ORDER BY p.id`, shop,
	)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, prod)
	}
	return products, rows.Err()
}

// ListCategories returns the categories of a shop, or of every shop when shop is empty.
func (p *Postgres) ListCategories(ctx context.Context, shop string) ([]model.CategoryProduct, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, shop, name FROM category_products WHERE $1::text = '' OR shop = $1 ORDER BY id`, shop,
	)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []model.CategoryProduct
	for rows.Next() {
		var c model.CategoryProduct
		if err := rows.Scan(&c.ID, &c.Shop, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CreateCategoryRule inserts a new rule and populates its ID and CreatedAt.
func (p *Postgres) CreateCategoryRule(ctx context.Context, r *model.CategoryRule) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO category_rules (kind, value) VALUES ($1, $2) RETURNING id, created_at`,
		string(r.Kind), r.Value,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert category rule: %w", err)
	}
	return nil
}

// ListCategoryRules returns all operator category rules.
func (p *Postgres) ListCategoryRules(ctx context.Context) ([]model.CategoryRule, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, kind, value, created_at FROM category_rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query category rules: %w", err)
	}
	defer rows.Close()

	var rules []model.CategoryRule
	for rows.Next() {
		var r model.CategoryRule
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Value, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category rule: %w", err)
		}
		r.Kind = model.CategoryRuleKind(kind)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteCategoryRule removes a rule by its ID.
func (p *Postgres) DeleteCategoryRule(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM category_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureSupplier inserts scheduling state for a supplier seen for the first time.
// Existing rows keep their operator-set interval and active flag.
func (p *Postgres) EnsureSupplier(ctx context.Context, sup *model.Supplier) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO suppliers (name, interval_minutes, is_active) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		sup.Name, sup.IntervalMinutes, sup.IsActive,
	)
	if err != nil {
		return fmt.Errorf("insert supplier: %w", err)
	}
	return nil
}

// GetSupplier returns the scheduling state of one supplier.
func (p *Postgres) GetSupplier(ctx context.Context, name string) (*model.Supplier, error) {
	var sup model.Supplier
	err := p.pool.QueryRow(ctx,
		`SELECT name, interval_minutes, is_active, last_run_at FROM suppliers WHERE name = $1`, name,
	).Scan(&sup.Name, &sup.IntervalMinutes, &sup.IsActive, &sup.LastRunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan supplier: %w", err)
	}
	return &sup, nil
}

// ListSuppliers returns all suppliers ordered by name.
func (p *Postgres) ListSuppliers(ctx context.Context) ([]model.Supplier, error) {
	return p.querySuppliers(ctx,
		`SELECT name, interval_minutes, is_active, last_run_at FROM suppliers ORDER BY name`)
}

// ListDueSuppliers returns all active suppliers whose interval has elapsed.
func (p *Postgres) ListDueSuppliers(ctx context.Context) ([]model.Supplier, error) {
	return p.querySuppliers(ctx,
		`SELECT name, interval_minutes, is_active, last_run_at
		 FROM suppliers
		 WHERE is_active
		   AND (last_run_at IS NULL
		        OR last_run_at + make_interval(mins => interval_minutes) <= now())
		 ORDER BY name`)
}

func (p *Postgres) querySuppliers(ctx context.Context, query string) ([]model.Supplier, error) {
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []model.Supplier
	for rows.Next() {
		var sup model.Supplier
		if err := rows.Scan(&sup.Name, &sup.IntervalMinutes, &sup.IsActive, &sup.LastRunAt); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

// UpdateSupplier persists changes to an existing supplier.
func (p *Postgres) UpdateSupplier(ctx context.Context, sup *model.Supplier) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE suppliers SET interval_minutes = $1, is_active = $2, last_run_at = $3 WHERE name = $4`,
		sup.IntervalMinutes, sup.IsActive, sup.LastRunAt, sup.Name,
	)
	if err != nil {
		return fmt.Errorf("update supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRunReport stores the report of a finished run.
func (p *Postgres) SaveRunReport(ctx context.Context, r *model.RunReport) error {
	skipped, err := encodeSkipped(r.Skipped)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO import_runs (id, supplier, status, started_at, finished_at, rows_seen,
		                          rows_persisted, categories_created, skipped, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Supplier, string(r.Status), r.StartedAt, r.FinishedAt,
		r.RowsSeen, r.RowsPersisted, r.CategoriesCreated, skipped, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run report: %w", err)
	}
	return nil
}

// LatestRunReport returns the most recent report of a supplier.
func (p *Postgres) LatestRunReport(ctx context.Context, supplier string) (*model.RunReport, error) {
	var r model.RunReport
	var status, skipped string
	err := p.pool.QueryRow(ctx,
		`SELECT id, supplier, status, started_at, finished_at, rows_seen, rows_persisted,
		        categories_created, skipped::text, error
		 FROM import_runs WHERE supplier = $1
		 ORDER BY started_at DESC LIMIT 1`, supplier,
	).Scan(&r.ID, &r.Supplier, &status, &r.StartedAt, &r.FinishedAt, &r.RowsSeen,
		&r.RowsPersisted, &r.CategoriesCreated, &skipped, &r.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run report: %w", err)
	}
	r.Status = model.RunStatus(status)
	if r.Skipped, err = decodeSkipped([]byte(skipped)); err != nil {
		return nil, err
	}
	return &r, nil
}

type postgresImport struct {
	tx pgx.Tx
}

func (t *postgresImport) DeleteProducts(ctx context.Context, shop string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM products WHERE shop = $1`, shop)
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *postgresImport) FindCategory(ctx context.Context, shop, name string) (*model.CategoryProduct, error) {
	var c model.CategoryProduct
	err := t.tx.QueryRow(ctx,
		`SELECT id, shop, name FROM category_products WHERE shop = $1 AND name = $2`, shop, name,
	).Scan(&c.ID, &c.Shop, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &c, nil
}

func (t *postgresImport) CreateCategory(ctx context.Context, c *model.CategoryProduct) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO category_products (shop, name) VALUES ($1, $2) RETURNING id`, c.Shop, c.Name,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (t *postgresImport) CreateProduct(ctx context.Context, prod *model.Product) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO products (ingredient_id, shop, category_id, supplier_id, name, picture,
		                       proteins, fats, carbohydrates, calories, qty_per_item, unit, price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric)
		 RETURNING id`,
		prod.IngredientID, prod.Shop, prod.CategoryID, prod.SupplierID, prod.Name, prod.Picture,
		prod.Proteins, prod.Fats, prod.Carbohydrates, prod.Calories, prod.QtyPerItem,
		string(prod.Unit), prod.Price.String(),
	).Scan(&prod.ID)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (t *postgresImport) Commit() error {
	if err := t.tx.Commit(context.Background()); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func (t *postgresImport) Rollback() error {
	if err := t.tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback import: %w", err)
	}
	return nil
}
