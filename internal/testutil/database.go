// Package testutil provides shared helpers for tests that need a real
// migrated database.
package testutil

import (
	"context"
	"testing"

	"github.com/finanzas-dev/centavo/internal/model"
	"github.com/finanzas-dev/centavo/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite database and registers
// cleanup on the test.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// SeedCatalog creates a category and one subcategory under it, returning both.
func SeedCatalog(t *testing.T, store *storage.SQLiteStorage, tenantID int64, categoryName, subcategoryName string) (*model.Category, *model.Subcategory) {
	t.Helper()

	ctx := context.Background()
	cat, err := store.CreateCategory(ctx, tenantID, categoryName)
	if err != nil {
		t.Fatalf("failed to seed category %q: %v", categoryName, err)
	}
	sub, err := store.CreateSubcategory(ctx, tenantID, cat.ID, subcategoryName)
	if err != nil {
		t.Fatalf("failed to seed subcategory %q: %v", subcategoryName, err)
	}
	return cat, sub
}

// SeedRule inserts an active rule for the tenant and returns it.
func SeedRule(t *testing.T, store *storage.SQLiteStorage, tenantID int64, pattern, patternNorm string, categoryID, subcategoryID int64) *model.Rule {
	t.Helper()

	rule := &model.Rule{
		TenantID:      tenantID,
		Pattern:       pattern,
		PatternNorm:   patternNorm,
		CategoryID:    categoryID,
		SubcategoryID: subcategoryID,
		Priority:      model.PriorityUserDefault,
		Active:        true,
		Confidence:    model.ConfidenceUser,
	}
	if err := store.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("failed to seed rule %q: %v", pattern, err)
	}
	return rule
}
