package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"catalog_sync/internal/model"
)

var ignoreRuleTS = cmpopts.IgnoreFields(model.CategoryRule{}, "CreatedAt")
var ignoreLastRun = cmpopts.IgnoreFields(model.Supplier{}, "LastRunAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func TestAddIngredients(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name      string
		names     []string
		wantAdded int
	}{
		{name: "fresh names", names: []string{"Гречка", "Рис", "Молоко"}, wantAdded: 3},
		{name: "already present", names: []string{"Рис", "Сахар"}, wantAdded: 1},
		{name: "duplicate in batch", names: []string{"Соль", "Соль"}, wantAdded: 1},
		{name: "nothing new", names: []string{"Гречка"}, wantAdded: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AddIngredients(ctx, tt.names)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if diff := cmp.Diff(tt.wantAdded, got); diff != "" {
				t.Errorf("added mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got, err := s.ListIngredients(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, ing := range got {
		names = append(names, ing.Name)
	}
	want := []string{"Гречка", "Рис", "Молоко", "Сахар", "Соль"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ListIngredients mismatch (-want +got):\n%s", diff)
	}
}

func TestImportCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if _, err := s.AddIngredients(ctx, []string{"Гречка"}); err != nil {
		t.Fatalf("add ingredients: %v", err)
	}
	vocab, err := s.ListIngredients(ctx)
	if err != nil {
		t.Fatalf("list ingredients: %v", err)
	}

	tx, err := s.BeginImport(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.FindCategory(ctx, "EcoMarket", "Бакалея"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("find missing category: got %v, want ErrNotFound", err)
	}
	cat := model.CategoryProduct{Shop: "EcoMarket", Name: "Бакалея"}
	if err := tx.CreateCategory(ctx, &cat); err != nil {
		t.Fatalf("create category: %v", err)
	}
	found, err := tx.FindCategory(ctx, "EcoMarket", "Бакалея")
	if err != nil {
		t.Fatalf("find category: %v", err)
	}
	if diff := cmp.Diff(cat, *found); diff != "" {
		t.Errorf("FindCategory mismatch (-want +got):\n%s", diff)
	}

	prod := model.Product{
		IngredientID:  ptr(vocab[0].ID),
		Shop:          "EcoMarket",
		CategoryID:    cat.ID,
		SupplierID:    1042,
		Name:          "Гречка 900 г",
		Picture:       "https://img.example/1042.jpg",
		Proteins:      12.6,
		Fats:          3.3,
		Carbohydrates: 62.1,
		Calories:      313,
		QtyPerItem:    900,
		Unit:          model.UnitGram,
		Price:         decimal.RequireFromString("89.90"),
	}
	if err := tx.CreateProduct(ctx, &prod); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if prod.ID == 0 {
		t.Fatal("expected non-zero product ID")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("rollback after commit: %v", err)
	}

	got, err := s.ListProducts(ctx, "EcoMarket")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	want := prod
	want.Ingredient = "Гречка"
	if diff := cmp.Diff([]model.Product{want}, got); diff != "" {
		t.Errorf("ListProducts mismatch (-want +got):\n%s", diff)
	}

	cats, err := s.ListCategories(ctx, "")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if diff := cmp.Diff([]model.CategoryProduct{cat}, cats); diff != "" {
		t.Errorf("ListCategories mismatch (-want +got):\n%s", diff)
	}
}

func seedProduct(t *testing.T, s *SQLite, shop, name string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.BeginImport(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	cat := model.CategoryProduct{Shop: shop, Name: "Разное"}
	if found, err := tx.FindCategory(ctx, shop, cat.Name); err == nil {
		cat = *found
	} else if err := tx.CreateCategory(ctx, &cat); err != nil {
		t.Fatalf("create category: %v", err)
	}
	p := model.Product{Shop: shop, CategoryID: cat.ID, Name: name, QtyPerItem: 1, Unit: model.UnitKilogram}
	if err := tx.CreateProduct(ctx, &p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func productNames(t *testing.T, s *SQLite, shop string) []string {
	t.Helper()
	products, err := s.ListProducts(context.Background(), shop)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	var names []string
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}

func TestImportRollbackKeepsProducts(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	seedProduct(t, s, "EcoMarket", "Рис 1 кг")

	tx, err := s.BeginImport(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	n, err := tx.DeleteProducts(ctx, "EcoMarket")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if diff := cmp.Diff(int64(1), n); diff != "" {
		t.Errorf("deleted count mismatch (-want +got):\n%s", diff)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if diff := cmp.Diff([]string{"Рис 1 кг"}, productNames(t, s, "EcoMarket")); diff != "" {
		t.Errorf("products after rollback mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteProductsScopedByShop(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	seedProduct(t, s, "EcoMarket", "Рис 1 кг")
	seedProduct(t, s, "Bringston", "Сахар 1 кг")

	tx, err := s.BeginImport(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.DeleteProducts(ctx, "EcoMarket"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if got := productNames(t, s, "EcoMarket"); len(got) != 0 {
		t.Errorf("expected no EcoMarket products, got %v", got)
	}
	if diff := cmp.Diff([]string{"Сахар 1 кг"}, productNames(t, s, "")); diff != "" {
		t.Errorf("remaining products mismatch (-want +got):\n%s", diff)
	}
}

func TestCategoryRules(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	rules := []model.CategoryRule{
		{Kind: model.RuleExclude, Value: "Косметика"},
		{Kind: model.RuleExcludeRe, Value: "для (животных|дома)"},
	}
	for i := range rules {
		if err := s.CreateCategoryRule(ctx, &rules[i]); err != nil {
			t.Fatalf("create rule %d: %v", i, err)
		}
		if rules[i].ID == 0 {
			t.Fatal("expected non-zero ID")
		}
	}

	got, err := s.ListCategoryRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(rules, got, ignoreRuleTS); diff != "" {
		t.Errorf("ListCategoryRules mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteCategoryRule(ctx, rules[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCategoryRule(ctx, rules[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}

	got, err = s.ListCategoryRules(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if diff := cmp.Diff(rules[1:], got, ignoreRuleTS); diff != "" {
		t.Errorf("rules after delete mismatch (-want +got):\n%s", diff)
	}
}

func TestSupplierState(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	sup := model.Supplier{Name: "EcoMarket", IntervalMinutes: 1440, IsActive: true}
	if err := s.EnsureSupplier(ctx, &sup); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	sup.IntervalMinutes = 60
	sup.IsActive = false
	sup.LastRunAt = &now
	if err := s.UpdateSupplier(ctx, &sup); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A second ensure with catalog defaults keeps the operator's changes.
	if err := s.EnsureSupplier(ctx, &model.Supplier{Name: "EcoMarket", IntervalMinutes: 1440, IsActive: true}); err != nil {
		t.Fatalf("ensure again: %v", err)
	}

	got, err := s.GetSupplier(ctx, "EcoMarket")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.Supplier{Name: "EcoMarket", IntervalMinutes: 60, IsActive: false, LastRunAt: &now}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("GetSupplier mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetSupplier(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: got %v, want ErrNotFound", err)
	}
	if err := s.UpdateSupplier(ctx, &model.Supplier{Name: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: got %v, want ErrNotFound", err)
	}
}

func TestListDueSuppliers(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	past := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	recent := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Second)

	suppliers := []struct {
		sup     model.Supplier
		wantDue bool
	}{
		{sup: model.Supplier{Name: "a-never-run", IntervalMinutes: 15, IsActive: true}, wantDue: true},
		{sup: model.Supplier{Name: "b-run-long-ago", IntervalMinutes: 15, IsActive: true, LastRunAt: &past}, wantDue: true},
		{sup: model.Supplier{Name: "c-run-recently", IntervalMinutes: 15, IsActive: true, LastRunAt: &recent}, wantDue: false},
		{sup: model.Supplier{Name: "d-paused", IntervalMinutes: 15, IsActive: false}, wantDue: false},
	}

	var wantNames []string
	for i := range suppliers {
		sup := suppliers[i].sup
		if err := s.EnsureSupplier(ctx, &sup); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if sup.LastRunAt != nil {
			if err := s.UpdateSupplier(ctx, &sup); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
		if suppliers[i].wantDue {
			wantNames = append(wantNames, sup.Name)
		}
	}

	got, err := s.ListDueSuppliers(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	var gotNames []string
	for _, sup := range got {
		gotNames = append(gotNames, sup.Name)
	}
	if diff := cmp.Diff(wantNames, gotNames); diff != "" {
		t.Errorf("due suppliers mismatch (-want +got):\n%s", diff)
	}

	all, err := s.ListSuppliers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(len(suppliers), len(all)); diff != "" {
		t.Errorf("supplier count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.Supplier{Name: "a-never-run", IntervalMinutes: 15, IsActive: true}, all[0], ignoreLastRun); diff != "" {
		t.Errorf("first supplier mismatch (-want +got):\n%s", diff)
	}
}

func TestRunReports(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if _, err := s.LatestRunReport(ctx, "EcoMarket"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest without runs: got %v, want ErrNotFound", err)
	}

	start := time.Now().UTC().Truncate(time.Second)
	first := model.RunReport{
		ID:         "run-1",
		Supplier:   "EcoMarket",
		Status:     model.RunAborted,
		StartedAt:  start,
		FinishedAt: start,
		Skipped:    map[model.SkipReason]int{},
		Error:      "fetch feed: source unavailable",
	}
	second := model.RunReport{
		ID:                "run-2",
		Supplier:          "EcoMarket",
		Status:            model.RunDone,
		StartedAt:         start.Add(time.Minute),
		FinishedAt:        start.Add(2 * time.Minute),
		RowsSeen:          10,
		RowsPersisted:     6,
		CategoriesCreated: 2,
		Skipped: map[model.SkipReason]int{
			model.SkipCategoryExcluded:  3,
			model.SkipNoIngredientMatch: 1,
		},
	}
	for _, r := range []*model.RunReport{&first, &second} {
		if err := s.SaveRunReport(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}

	got, err := s.LatestRunReport(ctx, "EcoMarket")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if diff := cmp.Diff(second, *got); diff != "" {
		t.Errorf("LatestRunReport mismatch (-want +got):\n%s", diff)
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)
