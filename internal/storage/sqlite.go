package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"catalog_sync/internal/model"
	"catalog_sync/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListIngredients returns the whole ingredient vocabulary in insertion order.
func (s *SQLite) ListIngredients(ctx context.Context) ([]model.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM ingredients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ingredients: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLite) AddIngredients(ctx context.Context, names []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, name := range names {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ingredients (name) VALUES (?)`, name)
		if err != nil {
			return 0, fmt.Errorf("insert ingredient %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		added += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return added, nil
}

// BeginImport starts the transaction of one supplier import.
func (s *SQLite) BeginImport(ctx context.Context) (ImportTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqliteImport{tx: tx}, nil
}

// ListProducts returns the products of a shop, or of every shop when shop is empty.
func (s *SQLite) ListProducts(ctx context.Context, shop string) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.ingredient_id, COALESCE(i.name, ''), p.shop, p.category_id, p.supplier_id,
		        p.name, p.picture, p.proteins, p.fats, p.carbohydrates, p.calories,
		        p.qty_per_item, p.unit, p.price
		 FROM products p LEFT JOIN ingredients i ON i.id = p.ingredient_id
		 WHERE ? = '' OR p.shop = ?
		 ORDER BY p.id`, shop, shop,
	)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListCategories returns the categories of a shop, or of every shop when shop is empty.
func (s *SQLite) ListCategories(ctx context.Context, shop string) ([]model.CategoryProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shop, name FROM category_products WHERE ? = '' OR shop = ? ORDER BY id`, shop, shop,
	)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLite) CreateCategoryRule(ctx context.Context, r *model.CategoryRule) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO category_rules (kind, value, created_at) VALUES (?, ?, ?)`,
		string(r.Kind), r.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert category rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListCategoryRules returns all operator category rules.
func (s *SQLite) ListCategoryRules(ctx context.Context) ([]model.CategoryRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, value, created_at FROM category_rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query category rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategoryRule
	for rows.Next() {
		var r model.CategoryRule
		var kind, created string
		if err := rows.Scan(&r.ID, &kind, &r.Value, &created); err != nil {
			return nil, fmt.Errorf("scan category rule: %w", err)
		}
		r.Kind = model.CategoryRuleKind(kind)
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteCategoryRule removes a rule by its ID.
func (s *SQLite) DeleteCategoryRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureSupplier inserts scheduling state for a supplier seen for the first time.
// Existing rows keep their operator-set interval and active flag.
func (s *SQLite) EnsureSupplier(ctx context.Context, sup *model.Supplier) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppliers (name, interval_minutes, is_active) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		sup.Name, sup.IntervalMinutes, boolToInt(sup.IsActive),
	)
	if err != nil {
		return fmt.Errorf("insert supplier: %w", err)
	}
	return nil
}

// GetSupplier returns the scheduling state of one supplier.
func (s *SQLite) GetSupplier(ctx context.Context, name string) (*model.Supplier, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, interval_minutes, is_active, last_run_at FROM suppliers WHERE name = ?`, name,
	)
	return scanSupplier(row)
}

// ListSuppliers returns all suppliers ordered by name.
func (s *SQLite) ListSuppliers(ctx context.Context) ([]model.Supplier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, interval_minutes, is_active, last_run_at FROM suppliers ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSuppliers(rows)
}

// ListDueSuppliers returns all active suppliers whose interval has elapsed.
func (s *SQLite) ListDueSuppliers(ctx context.Context) ([]model.Supplier, error) {
	now := time.Now().UTC().Format(timeLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, interval_minutes, is_active, last_run_at
		 FROM suppliers
		 WHERE is_active = 1
		   AND (last_run_at IS NULL
		        OR datetime(last_run_at, '+' || interval_minutes || ' minutes') <= datetime(?))
		 ORDER BY name`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due suppliers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSuppliers(rows)
}

// UpdateSupplier persists changes to an existing supplier.
func (s *SQLite) UpdateSupplier(ctx context.Context, sup *model.Supplier) error {
	var lastRun *string
	if sup.LastRunAt != nil {
		v := sup.LastRunAt.UTC().Format(timeLayout)
		lastRun = &v
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE suppliers SET interval_minutes = ?, is_active = ?, last_run_at = ? WHERE name = ?`,
		sup.IntervalMinutes, boolToInt(sup.IsActive), lastRun, sup.Name,
	)
	if err != nil {
		return fmt.Errorf("update supplier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveRunReport stores the report of a finished run.
func (s *SQLite) SaveRunReport(ctx context.Context, r *model.RunReport) error {
	skipped, err := encodeSkipped(r.Skipped)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, supplier, status, started_at, finished_at, rows_seen,
		                          rows_persisted, categories_created, skipped, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Supplier, string(r.Status),
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
		r.RowsSeen, r.RowsPersisted, r.CategoriesCreated, skipped, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run report: %w", err)
	}
	return nil
}

// LatestRunReport returns the most recent report of a supplier.
func (s *SQLite) LatestRunReport(ctx context.Context, supplier string) (*model.RunReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, supplier, status, started_at, finished_at, rows_seen, rows_persisted,
		        categories_created, skipped, error
		 FROM import_runs WHERE supplier = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`, supplier,
	)

	var r model.RunReport
	var status, started, finished, skipped string
	err := row.Scan(&r.ID, &r.Supplier, &status, &started, &finished, &r.RowsSeen,
		&r.RowsPersisted, &r.CategoriesCreated, &skipped, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run report: %w", err)
	}
	r.Status = model.RunStatus(status)
	r.StartedAt, _ = time.Parse(timeLayout, started)
	r.FinishedAt, _ = time.Parse(timeLayout, finished)
	if r.Skipped, err = decodeSkipped([]byte(skipped)); err != nil {
		return nil, err
	}
	return &r, nil
}

type sqliteImport struct {
	tx *sql.Tx
}

func (t *sqliteImport) DeleteProducts(ctx context.Context, shop string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM products WHERE shop = ?`, shop)
	if err != nil {
		return 0, fmt.Errorf("delete products: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (t *sqliteImport) FindCategory(ctx context.Context, shop, name string) (*model.CategoryProduct, error) {
	var c model.CategoryProduct
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, shop, name FROM category_products WHERE shop = ? AND name = ?`, shop, name,
	).Scan(&c.ID, &c.Shop, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &c, nil
}

func (t *sqliteImport) CreateCategory(ctx context.Context, c *model.CategoryProduct) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO category_products (shop, name) VALUES (?, ?)`, c.Shop, c.Name,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (t *sqliteImport) CreateProduct(ctx context.Context, p *model.Product) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO products (ingredient_id, shop, category_id, supplier_id, name, picture,
		                       proteins, fats, carbohydrates, calories, qty_per_item, unit, price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.IngredientID, p.Shop, p.CategoryID, p.SupplierID, p.Name, p.Picture,
		p.Proteins, p.Fats, p.Carbohydrates, p.Calories, p.QtyPerItem, string(p.Unit), p.Price.String(),
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return nil
}

func (t *sqliteImport) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func (t *sqliteImport) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback import: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (model.Product, error) {
	var p model.Product
	var ingredientID sql.NullInt64
	var unit, price string
	err := row.Scan(&p.ID, &ingredientID, &p.Ingredient, &p.Shop, &p.CategoryID, &p.SupplierID,
		&p.Name, &p.Picture, &p.Proteins, &p.Fats, &p.Carbohydrates, &p.Calories,
		&p.QtyPerItem, &unit, &price)
	if err != nil {
		return p, fmt.Errorf("scan product: %w", err)
	}
	if ingredientID.Valid {
		id := ingredientID.Int64
		p.IngredientID = &id
	}
	p.Unit = model.Unit(unit)
	if p.Price, err = parsePrice(price); err != nil {
		return p, err
	}
	return p, nil
}

func scanSupplier(row scannable) (*model.Supplier, error) {
	var sup model.Supplier
	var isActive int
	var lastRun sql.NullString
	err := row.Scan(&sup.Name, &sup.IntervalMinutes, &isActive, &lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan supplier: %w", err)
	}
	sup.IsActive = isActive == 1
	if lastRun.Valid {
		t, _ := time.Parse(timeLayout, lastRun.String)
		sup.LastRunAt = &t
	}
	return &sup, nil
}

func scanSuppliers(rows *sql.Rows) ([]model.Supplier, error) {
	var suppliers []model.Supplier
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, *sup)
	}
	return suppliers, rows.Err()
}
