// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/finanzas-dev/centavo/internal/model"
)

// RuleStore defines the contract for merchant-rule persistence.
// Every operation is tenant-scoped; no ambient tenant context exists.
type RuleStore interface {
	// GetActiveRules returns all active rules for the tenant, for matching.
	GetActiveRules(ctx context.Context, tenantID int64) ([]model.Rule, error)
	// GetRule returns a rule joined to its catalog names.
	GetRule(ctx context.Context, tenantID, id int64) (*model.RuleWithNames, error)
	// GetRuleByPatternNorm looks a rule up by its normalized pattern.
	GetRuleByPatternNorm(ctx context.Context, tenantID int64, patternNorm string) (*model.Rule, error)
	// ListRules returns every rule for the tenant with catalog names,
	// ordered by priority, pattern length and recency.
	ListRules(ctx context.Context, tenantID int64) ([]model.RuleWithNames, error)
	// CreateRule inserts a rule and fills its ID and timestamps.
	CreateRule(ctx context.Context, rule *model.Rule) error
	// CreateRuleIfAbsent inserts a rule unless one with the same
	// (tenant, patternNorm) already exists. It reports whether a row was
	// inserted and returns the ID of the rule that now holds the pattern.
	CreateRuleIfAbsent(ctx context.Context, rule *model.Rule) (created bool, id int64, err error)
	// UpdateRule rewrites a rule row by tenant and ID.
	UpdateRule(ctx context.Context, rule *model.Rule) error
	// DeleteRule removes a rule. Historical transaction assignments keep
	// their rule attribution.
	DeleteRule(ctx context.Context, tenantID, id int64) error
}

// CatalogStore defines the contract for category/subcategory persistence.
type CatalogStore interface {
	ListCategories(ctx context.Context, tenantID int64) ([]model.Category, error)
	ListSubcategories(ctx context.Context, tenantID int64) ([]model.Subcategory, error)
	GetCategoryByID(ctx context.Context, tenantID, id int64) (*model.Category, error)
	GetSubcategoryByID(ctx context.Context, tenantID, id int64) (*model.Subcategory, error)
	// GetCategoryByName matches case-insensitively on the trimmed name.
	GetCategoryByName(ctx context.Context, tenantID int64, name string) (*model.Category, error)
	// GetSubcategoryByName matches case-insensitively within a category.
	GetSubcategoryByName(ctx context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error)
	CreateCategory(ctx context.Context, tenantID int64, name string) (*model.Category, error)
	CreateSubcategory(ctx context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error)
}

// JobStore defines the contract for recategorization-job persistence.
// Guarded transitions are the pipeline's concurrency control: job rows live
// in a durable store shared across process instances, where in-memory locks
// would not suffice.
type JobStore interface {
	// CreateJob inserts a PENDING job and fills its ID and timestamps.
	CreateJob(ctx context.Context, job *model.RecategorizationJob) error
	GetJob(ctx context.Context, tenantID, id int64) (*model.RecategorizationJob, error)
	// ListJobs returns the tenant's jobs newest first. An empty status
	// means no filter; limit <= 0 applies the store default.
	ListJobs(ctx context.Context, tenantID int64, status model.JobStatus, limit int) ([]model.RecategorizationJob, error)
	// MarkRunning transitions PENDING to RUNNING. It reports false when the
	// row was no longer PENDING, which means another worker won the race.
	MarkRunning(ctx context.Context, tenantID, id int64) (bool, error)
	MarkDone(ctx context.Context, tenantID, id int64, updatedRows int) error
	// MarkFailed records a truncated error message and transitions to FAILED.
	MarkFailed(ctx context.Context, tenantID, id int64, errMsg string) error
	// ResetForRetry transitions FAILED or PENDING back to PENDING, clearing
	// the error and row count. It reports false when the row was in neither
	// state.
	ResetForRetry(ctx context.Context, tenantID, id int64) (bool, error)
}

// TransactionStore defines the contract for transaction persistence consumed
// by the recategorization pipeline.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactionsByRule(ctx context.Context, tenantID, ruleID int64) ([]model.Transaction, error)
	// UpdateCategoryForRuleSince reassigns every transaction of the tenant
	// attributed to ruleID and dated on/after since. Atomic per invocation
	// and idempotent: re-running with the same arguments is a no-op count.
	UpdateCategoryForRuleSince(ctx context.Context, tenantID, ruleID int64, since time.Time, categoryID, subcategoryID int64) (int64, error)
}

// Resolution is the outcome of resolving a descriptor against a tenant's
// rules. RuleID is zero when the default bucket was assigned without rule
// attribution.
type Resolution struct {
	CategoryName    string `json:"category_name"`
	SubcategoryName string `json:"subcategory_name"`
	CategoryID      int64  `json:"category_id"`
	SubcategoryID   int64  `json:"subcategory_id"`
	RuleID          int64  `json:"rule_id,omitempty"`
	CreatedAuto     bool   `json:"created_auto"`
}
