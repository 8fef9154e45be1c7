package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
)

// ListCategories returns the tenant's categories ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context, tenantID int64) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, name, icon, color, created_at
		FROM categories
		WHERE tenant_id = ?
		ORDER BY name COLLATE NOCASE`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.TenantID, &cat.Name, &cat.Icon, &cat.Color, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// ListSubcategories returns the tenant's subcategories ordered by name.
func (s *SQLiteStorage) ListSubcategories(ctx context.Context, tenantID int64) ([]model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, category_id, name, created_at
		FROM subcategories
		WHERE tenant_id = ?
		ORDER BY name COLLATE NOCASE`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subcategories []model.Subcategory
	for rows.Next() {
		var sub model.Subcategory
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.CategoryID, &sub.Name, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory: %w", err)
		}
		subcategories = append(subcategories, sub)
	}
	return subcategories, rows.Err()
}

// GetCategoryByID returns one category by tenant and ID.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, tenantID, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, icon, color, created_at
		FROM categories WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanCategoryRow(row, fmt.Sprintf("category %d", id))
}

// GetSubcategoryByID returns one subcategory by tenant and ID.
func (s *SQLiteStorage) GetSubcategoryByID(ctx context.Context, tenantID, id int64) (*model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, category_id, name, created_at
		FROM subcategories WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanSubcategoryRow(row, fmt.Sprintf("subcategory %d", id))
}

// GetCategoryByName matches case-insensitively on the trimmed name.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, tenantID int64, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, icon, color, created_at
		FROM categories
		WHERE tenant_id = ? AND name = ? COLLATE NOCASE`,
		tenantID, strings.TrimSpace(name))
	return scanCategoryRow(row, fmt.Sprintf("category %q", name))
}

// GetSubcategoryByName matches case-insensitively within a category.
func (s *SQLiteStorage) GetSubcategoryByName(ctx context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, category_id, name, created_at
		FROM subcategories
		WHERE tenant_id = ? AND category_id = ? AND name = ? COLLATE NOCASE`,
		tenantID, categoryID, strings.TrimSpace(name))
	return scanSubcategoryRow(row, fmt.Sprintf("subcategory %q", name))
}

// CreateCategory inserts a category with display defaults. A name collision
// within the tenant maps to ErrDuplicateEntry.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, tenantID int64, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (tenant_id, name, icon, color)
		VALUES (?, ?, ?, ?)`,
		tenantID, name, model.DefaultCategoryIcon, model.DefaultCategoryColor)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("category %q: %w", name, common.ErrDuplicateEntry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}
	return s.GetCategoryByID(ctx, tenantID, id)
}

// CreateSubcategory inserts a subcategory under an existing category.
func (s *SQLiteStorage) CreateSubcategory(ctx context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	if _, err := s.GetCategoryByID(ctx, tenantID, categoryID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO subcategories (tenant_id, category_id, name)
		VALUES (?, ?, ?)`, tenantID, categoryID, name)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("subcategory %q: %w", name, common.ErrDuplicateEntry)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create subcategory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get subcategory ID: %w", err)
	}
	return s.GetSubcategoryByID(ctx, tenantID, id)
}

func scanCategoryRow(row *sql.Row, what string) (*model.Category, error) {
	var cat model.Category
	err := row.Scan(&cat.ID, &cat.TenantID, &cat.Name, &cat.Icon, &cat.Color, &cat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return &cat, nil
}

func scanSubcategoryRow(row *sql.Row, what string) (*model.Subcategory, error) {
	var sub model.Subcategory
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.CategoryID, &sub.Name, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subcategory: %w", err)
	}
	return &sub, nil
}
