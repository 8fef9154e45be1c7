// Package recat implements the recategorization job pipeline: asynchronous
// re-application of a rule's classification to historical transactions,
// driven by a durable PENDING/RUNNING/DONE/FAILED state machine.
package recat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
	"github.com/finanzas-dev/centavo/internal/service"
)

// DefaultDaysBack bounds how far back a recategorization reaches. Unbounded
// rewrites over a whole history are expensive and risk clobbering
// transactions a user has since recategorized by hand.
const DefaultDaysBack = 30

// Caller-only result statuses, never persisted on a job row.
const (
	StatusNotFound       = "NOT_FOUND"
	StatusAlreadyRunning = "ALREADY_RUNNING"
)

// Result reports the outcome of one Execute or Retry call.
type Result struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	UpdatedRows int    `json:"updated_rows"`
}

// Pipeline creates and executes recategorization jobs. Execute and Retry are
// plain synchronous functions; the caller decides how to schedule them
// (goroutine, worker pool, task queue).
type Pipeline struct {
	jobs         service.JobStore
	rules        service.RuleStore
	transactions service.TransactionStore
}

// New creates a pipeline.
func New(jobs service.JobStore, rules service.RuleStore, transactions service.TransactionStore) *Pipeline {
	return &Pipeline{jobs: jobs, rules: rules, transactions: transactions}
}

// Enqueue creates a PENDING job covering transactions from daysBack days ago
// onward. Pure bookkeeping; it never touches transaction data. A
// non-positive daysBack applies the default window.
func (p *Pipeline) Enqueue(ctx context.Context, tenantID, ruleID int64, daysBack int) (*model.RecategorizationJob, error) {
	if _, err := p.rules.GetRule(ctx, tenantID, ruleID); err != nil {
		return nil, err
	}

	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	since := time.Now().UTC().AddDate(0, 0, -daysBack).Truncate(24 * time.Hour)

	job := &model.RecategorizationJob{
		TenantID:  tenantID,
		RuleID:    ruleID,
		SinceDate: since,
		Status:    model.JobPending,
	}
	if err := p.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create recategorization job: %w", err)
	}

	common.LogInfo("recategorization job enqueued", common.Fields{
		"tenant":  tenantID,
		"job_id":  job.ID,
		"rule_id": ruleID,
		"since":   since.Format("2006-01-02"),
	})

	return job, nil
}

// Execute runs one job. A missing job or a job that is no longer PENDING is
// a no-op reporting the current status; losing the PENDING to RUNNING race
// reports ALREADY_RUNNING. Failures during the bulk update are captured on
// the job row, never returned: execution is asynchronous by design and the
// only way to observe a failure is to read the job.
func (p *Pipeline) Execute(ctx context.Context, tenantID, jobID int64) (*Result, error) {
	job, err := p.jobs.GetJob(ctx, tenantID, jobID)
	if errors.Is(err, common.ErrNotFound) {
		return &Result{Status: StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobPending {
		return &Result{Status: string(job.Status), UpdatedRows: job.UpdatedRowCount, Error: job.Error}, nil
	}

	claimed, err := p.jobs.MarkRunning(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &Result{Status: StatusAlreadyRunning}, nil
	}

	rule, err := p.rules.GetRule(ctx, tenantID, job.RuleID)
	if err != nil {
		return p.fail(ctx, tenantID, jobID, fmt.Errorf("rule %d: %w", job.RuleID, err))
	}

	updated, err := p.transactions.UpdateCategoryForRuleSince(
		ctx, tenantID, job.RuleID, job.SinceDate, rule.CategoryID, rule.SubcategoryID)
	if err != nil {
		return p.fail(ctx, tenantID, jobID, err)
	}

	if err := p.jobs.MarkDone(ctx, tenantID, jobID, int(updated)); err != nil {
		return nil, err
	}

	slog.Info("recategorization job done",
		"tenant", tenantID,
		"job_id", jobID,
		"updated_rows", updated)

	return &Result{Status: string(model.JobDone), UpdatedRows: int(updated)}, nil
}

// Retry resets a FAILED or PENDING job and executes it again. DONE is
// terminal and RUNNING must be left to finish or fail first; both are
// rejected before any state is touched.
func (p *Pipeline) Retry(ctx context.Context, tenantID, jobID int64) (*Result, error) {
	job, err := p.jobs.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobFailed, model.JobPending:
	default:
		return nil, fmt.Errorf("%w: job %d is %s", common.ErrJobNotRetryable, jobID, job.Status)
	}

	reset, err := p.jobs.ResetForRetry(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if !reset {
		// The row left FAILED/PENDING between the read and the guarded update.
		return nil, fmt.Errorf("%w: job %d", common.ErrJobNotRetryable, jobID)
	}

	return p.Execute(ctx, tenantID, jobID)
}

// ProcessPending executes every PENDING job for the tenant, newest first,
// collecting per-job results.
func (p *Pipeline) ProcessPending(ctx context.Context, tenantID int64) ([]Result, error) {
	jobs, err := p.jobs.ListJobs(ctx, tenantID, model.JobPending, 100)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		res, err := p.Execute(ctx, tenantID, job.ID)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// fail records the execution error on the job row and reports FAILED.
func (p *Pipeline) fail(ctx context.Context, tenantID, jobID int64, execErr error) (*Result, error) {
	common.LogError(execErr, "recategorization job failed", common.Fields{
		"tenant": tenantID,
		"job_id": jobID,
	})
	if err := p.jobs.MarkFailed(ctx, tenantID, jobID, execErr.Error()); err != nil {
		return nil, err
	}
	return &Result{Status: string(model.JobFailed), Error: execErr.Error()}, nil
}
