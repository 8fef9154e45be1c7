package recat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockJobStore struct {
	jobs            map[int64]*model.RecategorizationJob
	mu              sync.Mutex
	nextID          int64
	refuseMarkStart bool
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[int64]*model.RecategorizationJob)}
}

func (m *mockJobStore) CreateJob(_ context.Context, job *model.RecategorizationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	job.Status = model.JobPending
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *mockJobStore) GetJob(_ context.Context, tenantID, id int64) (*model.RecategorizationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return nil, fmt.Errorf("%w: job %d", common.ErrNotFound, id)
	}
	job := *j
	return &job, nil
}

func (m *mockJobStore) ListJobs(_ context.Context, tenantID int64, status model.JobStatus, _ int) ([]model.RecategorizationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RecategorizationJob
	for _, j := range m.jobs {
		if j.TenantID == tenantID && (status == "" || j.Status == status) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, nil
}

func (m *mockJobStore) MarkRunning(_ context.Context, tenantID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuseMarkStart {
		return false, nil
	}
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID || j.Status != model.JobPending {
		return false, nil
	}
	j.Status = model.JobRunning
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockJobStore) MarkDone(_ context.Context, tenantID, id int64, updatedRows int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return fmt.Errorf("%w: job %d", common.ErrNotFound, id)
	}
	j.Status = model.JobDone
	j.UpdatedRowCount = updatedRows
	j.UpdatedAt = time.Now()
	return nil
}

func (m *mockJobStore) MarkFailed(_ context.Context, tenantID, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return fmt.Errorf("%w: job %d", common.ErrNotFound, id)
	}
	j.Status = model.JobFailed
	j.Error = errMsg
	j.UpdatedAt = time.Now()
	return nil
}

func (m *mockJobStore) ResetForRetry(_ context.Context, tenantID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.TenantID != tenantID {
		return false, nil
	}
	if j.Status != model.JobFailed && j.Status != model.JobPending {
		return false, nil
	}
	j.Status = model.JobPending
	j.Error = ""
	j.UpdatedRowCount = 0
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockJobStore) setStatus(id int64, status model.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = status
}

type mockRules struct {
	rules map[int64]*model.RuleWithNames
}

func (m *mockRules) GetActiveRules(context.Context, int64) ([]model.Rule, error) { return nil, nil }
func (m *mockRules) GetRuleByPatternNorm(context.Context, int64, string) (*model.Rule, error) {
	return nil, common.ErrNotFound
}
func (m *mockRules) ListRules(context.Context, int64) ([]model.RuleWithNames, error) {
	return nil, nil
}
func (m *mockRules) CreateRule(context.Context, *model.Rule) error { return nil }
func (m *mockRules) CreateRuleIfAbsent(context.Context, *model.Rule) (bool, int64, error) {
	return false, 0, nil
}
func (m *mockRules) UpdateRule(context.Context, *model.Rule) error    { return nil }
func (m *mockRules) DeleteRule(context.Context, int64, int64) error   { return nil }
func (m *mockRules) GetRule(_ context.Context, tenantID, id int64) (*model.RuleWithNames, error) {
	r, ok := m.rules[id]
	if !ok || r.TenantID != tenantID {
		return nil, fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	return r, nil
}

type bulkCall struct {
	since         time.Time
	tenantID      int64
	ruleID        int64
	categoryID    int64
	subcategoryID int64
}

type mockTransactions struct {
	err   error
	calls []bulkCall
	rows  int64
	mu    sync.Mutex
}

func (m *mockTransactions) SaveTransactions(context.Context, []model.Transaction) error { return nil }
func (m *mockTransactions) GetTransactionsByRule(context.Context, int64, int64) ([]model.Transaction, error) {
	return nil, nil
}
func (m *mockTransactions) UpdateCategoryForRuleSince(_ context.Context, tenantID, ruleID int64, since time.Time, categoryID, subcategoryID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, bulkCall{
		tenantID: tenantID, ruleID: ruleID, since: since,
		categoryID: categoryID, subcategoryID: subcategoryID,
	})
	if m.err != nil {
		return 0, m.err
	}
	return m.rows, nil
}

func newTestPipeline() (*Pipeline, *mockJobStore, *mockRules, *mockTransactions) {
	jobs := newMockJobStore()
	rules := &mockRules{rules: map[int64]*model.RuleWithNames{
		10: {Rule: model.Rule{ID: 10, TenantID: 1, CategoryID: 3, SubcategoryID: 4, PatternNorm: "NETFLIX"}},
	}}
	txns := &mockTransactions{rows: 7}
	return New(jobs, rules, txns), jobs, rules, txns
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, job.Status)
	assert.Equal(t, int64(10), job.RuleID)

	wantSince := time.Now().UTC().AddDate(0, 0, -DefaultDaysBack)
	assert.WithinDuration(t, wantSince, job.SinceDate, 24*time.Hour)
}

func TestEnqueueCustomWindow(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 90)
	require.NoError(t, err)
	wantSince := time.Now().UTC().AddDate(0, 0, -90)
	assert.WithinDuration(t, wantSince, job.SinceDate, 24*time.Hour)
}

func TestEnqueueUnknownRule(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline()

	_, err := p.Enqueue(ctx, 1, 99, 30)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestExecuteSuccess(t *testing.T) {
	ctx := context.Background()
	p, jobs, _, txns := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)

	res, err := p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.JobDone), res.Status)
	assert.Equal(t, 7, res.UpdatedRows)

	stored, err := jobs.GetJob(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, stored.Status)
	assert.Equal(t, 7, stored.UpdatedRowCount)

	require.Len(t, txns.calls, 1)
	call := txns.calls[0]
	assert.Equal(t, int64(1), call.tenantID)
	assert.Equal(t, int64(10), call.ruleID)
	assert.Equal(t, int64(3), call.categoryID)
	assert.Equal(t, int64(4), call.subcategoryID)
	assert.Equal(t, job.SinceDate, call.since)
}

func TestExecuteNotFound(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline()

	res, err := p.Execute(ctx, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestExecuteNonPendingIsNoOp(t *testing.T) {
	ctx := context.Background()
	p, jobs, _, txns := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)
	_, err = p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)

	// Second execution sees DONE and does not touch transactions again.
	res, err := p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.JobDone), res.Status)
	assert.Equal(t, 7, res.UpdatedRows)
	assert.Len(t, txns.calls, 1)

	stored, _ := jobs.GetJob(ctx, 1, job.ID)
	assert.Equal(t, model.JobDone, stored.Status)
}

func TestExecuteLostRace(t *testing.T) {
	ctx := context.Background()
	p, jobs, _, txns := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)

	// Another worker claims the row between the read and the guarded update.
	jobs.refuseMarkStart = true

	res, err := p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyRunning, res.Status)
	assert.Empty(t, txns.calls)
}

func TestExecuteFailureCapturedOnJob(t *testing.T) {
	ctx := context.Background()
	p, jobs, _, txns := newTestPipeline()
	txns.err = errors.New("bulk update deadlock")

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)

	res, err := p.Execute(ctx, 1, job.ID)
	require.NoError(t, err, "execution failure is swallowed into job state")
	assert.Equal(t, string(model.JobFailed), res.Status)
	assert.Contains(t, res.Error, "bulk update deadlock")

	stored, err := jobs.GetJob(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, stored.Status)
	assert.Contains(t, stored.Error, "bulk update deadlock")
}

func TestExecuteRuleGoneFails(t *testing.T) {
	ctx := context.Background()
	p, jobs, rules, _ := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)

	delete(rules.rules, int64(10))

	res, err := p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.JobFailed), res.Status)

	stored, _ := jobs.GetJob(ctx, 1, job.ID)
	assert.Equal(t, model.JobFailed, stored.Status)
	assert.Contains(t, stored.Error, "not found")
}

func TestRetryFailedJob(t *testing.T) {
	ctx := context.Background()
	p, jobs, _, txns := newTestPipeline()
	txns.err = errors.New("transient outage")

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)
	_, err = p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)

	txns.err = nil

	res, err := p.Retry(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.JobDone), res.Status)
	assert.Equal(t, 7, res.UpdatedRows)

	stored, _ := jobs.GetJob(ctx, 1, job.ID)
	assert.Equal(t, model.JobDone, stored.Status)
	assert.Empty(t, stored.Error, "retry clears the captured error")
}

func TestRetryDoneRejected(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)
	_, err = p.Execute(ctx, 1, job.ID)
	require.NoError(t, err)

	_, err = p.Retry(ctx, 1, job.ID)
	assert.ErrorIs(t, err, common.ErrJobNotRetryable)
}

func TestRetryRunningRejected(t *testing.T) {
	ctx := context.Background()
	p, jobs, _, _ := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)
	jobs.setStatus(job.ID, model.JobRunning)

	_, err = p.Retry(ctx, 1, job.ID)
	assert.ErrorIs(t, err, common.ErrJobNotRetryable)
}

func TestRetryPendingExecutes(t *testing.T) {
	ctx := context.Background()
	p, _, _, _ := newTestPipeline()

	job, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)

	res, err := p.Retry(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.JobDone), res.Status)
}

func TestProcessPending(t *testing.T) {
	ctx := context.Background()
	p, _, _, txns := newTestPipeline()

	_, err := p.Enqueue(ctx, 1, 10, 30)
	require.NoError(t, err)
	_, err = p.Enqueue(ctx, 1, 10, 60)
	require.NoError(t, err)

	results, err := p.ProcessPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, string(model.JobDone), r.Status)
	}
	assert.Len(t, txns.calls, 2)
}
