package model

import "time"

// JobStatus is the recategorization job state machine. The literal strings
// are persisted and returned verbatim to callers.
type JobStatus string

const (
	// JobPending means the job is created and waiting for a worker.
	JobPending JobStatus = "PENDING"
	// JobRunning means a worker holds the job.
	JobRunning JobStatus = "RUNNING"
	// JobDone means the bulk update committed; terminal and immutable.
	JobDone JobStatus = "DONE"
	// JobFailed means execution raised an error; retryable.
	JobFailed JobStatus = "FAILED"
)

// RecategorizationJob records one attempt at re-applying a rule's
// classification to historical transactions. Retry mutates the same row
// back to PENDING rather than creating a new one.
type RecategorizationJob struct {
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	SinceDate       time.Time `json:"since_date"`
	Status          JobStatus `json:"status"`
	Error           string    `json:"error,omitempty"`
	ID              int64     `json:"id"`
	TenantID        int64     `json:"tenant_id"`
	RuleID          int64     `json:"rule_id"`
	UpdatedRowCount int       `json:"updated_row_count"`
}
