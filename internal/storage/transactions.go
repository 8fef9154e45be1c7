package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
)

// SaveTransactions upserts a batch of transactions in one database
// transaction. Transactions without an ID get one assigned.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, tenant_id, date, descriptor, amount,
			category_id, subcategory_id, rule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			descriptor = excluded.descriptor,
			amount = excluded.amount,
			category_id = excluded.category_id,
			subcategory_id = excluded.subcategory_id,
			rule_id = excluded.rule_id`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range transactions {
		txn := &transactions[i]
		if err := validateID(txn.TenantID, "tenantID"); err != nil {
			return err
		}
		if txn.ID == "" {
			txn.ID = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx, txn.ID, txn.TenantID, txn.Date, txn.Descriptor,
			txn.Amount, nullableID(txn.CategoryID), nullableID(txn.SubcategoryID), nullableID(txn.RuleID))
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// GetTransactionsByRule returns the tenant's transactions attributed to a
// rule, newest first.
func (s *SQLiteStorage) GetTransactionsByRule(ctx context.Context, tenantID, ruleID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if err := validateID(ruleID, "ruleID"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, date, descriptor, amount,
		       COALESCE(category_id, 0), COALESCE(subcategory_id, 0), COALESCE(rule_id, 0),
		       created_at
		FROM transactions
		WHERE tenant_id = ? AND rule_id = ?
		ORDER BY date DESC, id`

	rows, err := s.db.QueryContext(ctx, query, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		err := rows.Scan(&txn.ID, &txn.TenantID, &txn.Date, &txn.Descriptor, &txn.Amount,
			&txn.CategoryID, &txn.SubcategoryID, &txn.RuleID, &txn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// UpdateCategoryForRuleSince reassigns every transaction attributed to the
// rule and dated on/after since. One UPDATE statement, so the reassignment is
// atomic and repeat runs with the same arguments touch the same rows.
func (s *SQLiteStorage) UpdateCategoryForRuleSince(ctx context.Context, tenantID, ruleID int64, since time.Time, categoryID, subcategoryID int64) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return 0, err
	}
	if err := validateID(ruleID, "ruleID"); err != nil {
		return 0, err
	}
	if err := validateID(categoryID, "categoryID"); err != nil {
		return 0, err
	}
	if err := validateID(subcategoryID, "subcategoryID"); err != nil {
		return 0, err
	}

	sub, err := s.GetSubcategoryByID(ctx, tenantID, subcategoryID)
	if err != nil {
		return 0, err
	}
	if sub.CategoryID != categoryID {
		return 0, fmt.Errorf("%w: subcategory %d does not belong to category %d",
			common.ErrValidation, subcategoryID, categoryID)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, subcategory_id = ?
		WHERE tenant_id = ? AND rule_id = ? AND date >= ?`,
		categoryID, subcategoryID, tenantID, ruleID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to recategorize transactions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
