package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
)

// maxJobErrorLen caps the persisted error message. Driver stack traces can be
// arbitrarily long and the column is read back into list views.
const maxJobErrorLen = 2000

// defaultJobListLimit applies when ListJobs receives a non-positive limit.
const defaultJobListLimit = 50

// CreateJob inserts a PENDING job and fills its ID.
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *model.RecategorizationJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if job == nil {
		return errors.New("job cannot be nil")
	}
	if err := validateID(job.TenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateID(job.RuleID, "ruleID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO recategorization_jobs (tenant_id, rule_id, since_date, status)
		VALUES (?, ?, ?, ?)`,
		job.TenantID, job.RuleID, job.SinceDate, string(model.JobPending))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job ID: %w", err)
	}
	job.ID = id
	job.Status = model.JobPending
	return nil
}

// GetJob returns one job by tenant and ID.
func (s *SQLiteStorage) GetJob(ctx context.Context, tenantID, id int64) (*model.RecategorizationJob, error) {
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
		SELECT id, tenant_id, rule_id, since_date, status, updated_row_count, error,
		       created_at, updated_at
		FROM recategorization_jobs
		WHERE tenant_id = ? AND id = ?`, tenantID, id)

	var (
		job    model.RecategorizationJob
		errMsg sql.NullString
	)
	err := row.Scan(&job.ID, &job.TenantID, &job.RuleID, &job.SinceDate, &job.Status,
		&job.UpdatedRowCount, &errMsg, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Error = errMsg.String

	return &job, nil
}

// ListJobs returns the tenant's jobs newest first, optionally filtered by
// status.
func (s *SQLiteStorage) ListJobs(ctx context.Context, tenantID int64, status model.JobStatus, limit int) ([]model.RecategorizationJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultJobListLimit
	}

	query := `
		SELECT id, tenant_id, rule_id, since_date, status, updated_row_count, error,
		       created_at, updated_at
		FROM recategorization_jobs
		WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.RecategorizationJob
	for rows.Next() {
		var (
			job    model.RecategorizationJob
			errMsg sql.NullString
		)
		err := rows.Scan(&job.ID, &job.TenantID, &job.RuleID, &job.SinceDate, &job.Status,
			&job.UpdatedRowCount, &errMsg, &job.CreatedAt, &job.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job.Error = errMsg.String
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions PENDING to RUNNING. The status predicate in the
// WHERE clause is the claim: only one worker's update matches the row.
func (s *SQLiteStorage) MarkRunning(ctx context.Context, tenantID, id int64) (bool, error) {
	return s.guardedTransition(ctx, tenantID, id, `
		UPDATE recategorization_jobs
		SET status = 'RUNNING', updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ? AND status = 'PENDING'`)
}

// MarkDone transitions to DONE recording the affected row count.
func (s *SQLiteStorage) MarkDone(ctx context.Context, tenantID, id int64, updatedRows int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE recategorization_jobs
		SET status = 'DONE', updated_row_count = ?, error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`, updatedRows, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return requireAffected(result, id)
}

// MarkFailed records a truncated error message and transitions to FAILED.
func (s *SQLiteStorage) MarkFailed(ctx context.Context, tenantID, id int64, errMsg string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return err
	}
	if err := validateID(id, "id"); err != nil {
		return err
	}

	if len(errMsg) > maxJobErrorLen {
		errMsg = errMsg[:maxJobErrorLen]
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE recategorization_jobs
		SET status = 'FAILED', error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?`, errMsg, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return requireAffected(result, id)
}

// ResetForRetry transitions FAILED or PENDING back to a clean PENDING row.
func (s *SQLiteStorage) ResetForRetry(ctx context.Context, tenantID, id int64) (bool, error) {
	return s.guardedTransition(ctx, tenantID, id, `
		UPDATE recategorization_jobs
		SET status = 'PENDING', error = NULL, updated_row_count = 0, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ? AND status IN ('FAILED', 'PENDING')`)
}

func (s *SQLiteStorage) guardedTransition(ctx context.Context, tenantID, id int64, query string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateID(tenantID, "tenantID"); err != nil {
		return false, err
	}
	if err := validateID(id, "id"); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func requireAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %d: %w", id, common.ErrNotFound)
	}
	return nil
}
