package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
)

// Listing order doubles as the match-precedence order: priority ascending,
// longer normalized patterns first, most recently updated first.
const ruleOrderClause = `ORDER BY r.priority ASC, LENGTH(r.pattern_norm) DESC, r.updated_at DESC, r.id DESC`

// isUniqueViolation reports whether err is a SQLite unique-constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// GetActiveRules returns all active rules for the tenant in match order.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, tenantID int64) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.tenant_id, r.pattern, r.pattern_norm, r.example_descriptor,
		       r.category_id, r.subcategory_id, r.priority, r.active, r.confidence,
		       r.created_at, r.updated_at
		FROM rules r
		WHERE r.tenant_id = ? AND r.active = 1
		` + ruleOrderClause

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// GetRule returns a rule joined to its catalog names.
func (s *SQLiteStorage) GetRule(ctx context.Context, tenantID, id int64) (*model.RuleWithNames, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(id, "id"); err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.tenant_id, r.pattern, r.pattern_norm, r.example_descriptor,
		       r.category_id, r.subcategory_id, r.priority, r.active, r.confidence,
		       r.created_at, r.updated_at,
		       c.name, sc.name
		FROM rules r
		JOIN categories c ON c.id = r.category_id
		JOIN subcategories sc ON sc.id = r.subcategory_id
		WHERE r.tenant_id = ? AND r.id = ?`

	row := s.db.QueryRowContext(ctx, query, tenantID, id)

	var (
		rule       model.RuleWithNames
		descriptor sql.NullString
		active     int
	)
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.Pattern, &rule.PatternNorm, &descriptor,
		&rule.CategoryID, &rule.SubcategoryID, &rule.Priority, &active, &rule.Confidence,
		&rule.CreatedAt, &rule.UpdatedAt,
		&rule.CategoryName, &rule.SubcategoryName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	rule.ExampleDescriptor = descriptor.String
	rule.Active = active == 1

	return &rule, nil
}

// GetRuleByPatternNorm looks a rule up by its normalized pattern.
func (s *SQLiteStorage) GetRuleByPatternNorm(ctx context.Context, tenantID int64, patternNorm string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateString(patternNorm, "patternNorm"); err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.tenant_id, r.pattern, r.pattern_norm, r.example_descriptor,
		       r.category_id, r.subcategory_id, r.priority, r.active, r.confidence,
		       r.created_at, r.updated_at
		FROM rules r
		WHERE r.tenant_id = ? AND r.pattern_norm = ?`

	rows, err := s.db.QueryContext(ctx, query, tenantID, patternNorm)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule by pattern: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("pattern %q: %w", patternNorm, common.ErrNotFound)
	}
	return scanRule(rows)
}

// ListRules returns every rule for the tenant with catalog names.
func (s *SQLiteStorage) ListRules(ctx context.Context, tenantID int64) ([]model.RuleWithNames, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.tenant_id, r.pattern, r.pattern_norm, r.example_descriptor,
		       r.category_id, r.subcategory_id, r.priority, r.active, r.confidence,
		       r.created_at, r.updated_at,
		       c.name, sc.name
		FROM rules r
		JOIN categories c ON c.id = r.category_id
		JOIN subcategories sc ON sc.id = r.subcategory_id
		WHERE r.tenant_id = ?
		` + ruleOrderClause

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.RuleWithNames
	for rows.Next() {
		var (
			rule       model.RuleWithNames
			descriptor sql.NullString
			active     int
		)
		err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Pattern, &rule.PatternNorm, &descriptor,
			&rule.CategoryID, &rule.SubcategoryID, &rule.Priority, &active, &rule.Confidence,
			&rule.CreatedAt, &rule.UpdatedAt,
			&rule.CategoryName, &rule.SubcategoryName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.ExampleDescriptor = descriptor.String
		rule.Active = active == 1
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts a rule and fills its ID.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateRuleInput(ctx, rule); err != nil {
		return err
	}

	query := `
		INSERT INTO rules (tenant_id, pattern, pattern_norm, example_descriptor,
			category_id, subcategory_id, priority, active, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rule.TenantID, rule.Pattern, rule.PatternNorm, nullableString(rule.ExampleDescriptor),
		rule.CategoryID, rule.SubcategoryID, rule.Priority, boolToInt(rule.Active), string(rule.Confidence))
	if isUniqueViolation(err) {
		return fmt.Errorf("pattern %q: %w", rule.PatternNorm, common.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id
	return nil
}

// CreateRuleIfAbsent inserts a rule unless the normalized pattern is already
// taken for the tenant. The unique index on (tenant_id, pattern_norm) makes
// the check-and-insert atomic under concurrent resolvers.
func (s *SQLiteStorage) CreateRuleIfAbsent(ctx context.Context, rule *model.Rule) (bool, int64, error) {
	if err := validateRuleInput(ctx, rule); err != nil {
		return false, 0, err
	}

	query := `
		INSERT OR IGNORE INTO rules (tenant_id, pattern, pattern_norm, example_descriptor,
			category_id, subcategory_id, priority, active, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rule.TenantID, rule.Pattern, rule.PatternNorm, nullableString(rule.ExampleDescriptor),
		rule.CategoryID, rule.SubcategoryID, rule.Priority, boolToInt(rule.Active), string(rule.Confidence))
	if err != nil {
		return false, 0, fmt.Errorf("failed to create rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected > 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return false, 0, fmt.Errorf("failed to get rule ID: %w", err)
		}
		rule.ID = id
		return true, id, nil
	}

	existing, err := s.GetRuleByPatternNorm(ctx, rule.TenantID, rule.PatternNorm)
	if err != nil {
		return false, 0, err
	}
	return false, existing.ID, nil
}

// UpdateRule rewrites a rule row by tenant and ID.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateRuleInput(ctx, rule); err != nil {
		return err
	}
	if err := validateID(rule.ID, "id"); err != nil {
		return err
	}

	query := `
		UPDATE rules
		SET pattern = ?, pattern_norm = ?, example_descriptor = ?,
			category_id = ?, subcategory_id = ?, priority = ?, active = ?,
			confidence = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`

	result, err := s.db.ExecContext(ctx, query,
		rule.Pattern, rule.PatternNorm, nullableString(rule.ExampleDescriptor),
		rule.CategoryID, rule.SubcategoryID, rule.Priority, boolToInt(rule.Active),
		string(rule.Confidence), rule.TenantID, rule.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("pattern %q: %w", rule.PatternNorm, common.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d: %w", rule.ID, common.ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule. Transactions keep their rule_id attribution so
// job history stays interpretable.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, tenantID, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM rules WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func validateRuleInput(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return errors.New("rule cannot be nil")
	}
	if err := validateID(rule.TenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateString(rule.Pattern, "pattern"); err != nil {
		return err
	}
	if err := validateString(rule.PatternNorm, "patternNorm"); err != nil {
		return err
	}
	if err := validateID(rule.CategoryID, "categoryID"); err != nil {
		return err
	}
	return validateID(rule.SubcategoryID, "subcategoryID")
}

func scanRule(rows *sql.Rows) (*model.Rule, error) {
	var (
		rule       model.Rule
		descriptor sql.NullString
		active     int
	)
	err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Pattern, &rule.PatternNorm, &descriptor,
		&rule.CategoryID, &rule.SubcategoryID, &rule.Priority, &active, &rule.Confidence,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	rule.ExampleDescriptor = descriptor.String
	rule.Active = active == 1
	return &rule, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
