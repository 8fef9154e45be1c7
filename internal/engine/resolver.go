// Package engine implements the rule resolution engine: CONTAINS matching of
// normalized merchant descriptors against tenant rules, deterministic
// ranking, default-bucket fallback and idempotent auto-learning.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finanzas-dev/centavo/internal/catalog"
	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
	"github.com/finanzas-dev/centavo/internal/normalize"
	"github.com/finanzas-dev/centavo/internal/service"
)

// Field length bounds carried over from the rule schema.
const (
	maxPatternLen    = 120
	maxDescriptorLen = 300
)

// Resolver matches descriptors against a tenant's rules and manages rule
// mutations.
type Resolver struct {
	rules   service.RuleStore
	catalog *catalog.Service
}

// New creates a resolver.
func New(rules service.RuleStore, cat *catalog.Service) *Resolver {
	return &Resolver{rules: rules, catalog: cat}
}

// Resolve assigns a category/subcategory to a raw merchant descriptor.
// When no active rule matches it falls back to the tenant's default bucket,
// and if createAutoIfNoMatch is set it learns an AUTO rule for the
// descriptor, idempotently per normalized pattern.
func (r *Resolver) Resolve(ctx context.Context, tenantID int64, rawDescriptor string, createAutoIfNoMatch bool) (*service.Resolution, error) {
	merchantNorm := normalize.Normalize(rawDescriptor)
	if merchantNorm == "" {
		return r.defaultResolution(ctx, tenantID)
	}

	rules, err := r.rules.GetActiveRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	if best := bestMatch(rules, merchantNorm); best != nil {
		categoryName, err := r.catalog.CategoryName(ctx, tenantID, best.CategoryID)
		if err != nil {
			return nil, err
		}
		subcategoryName, err := r.catalog.SubcategoryName(ctx, tenantID, best.SubcategoryID)
		if err != nil {
			return nil, err
		}
		return &service.Resolution{
			CategoryID:      best.CategoryID,
			SubcategoryID:   best.SubcategoryID,
			RuleID:          best.ID,
			CategoryName:    categoryName,
			SubcategoryName: subcategoryName,
		}, nil
	}

	categoryID, subcategoryID, err := r.catalog.DefaultBucket(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	resolution := &service.Resolution{
		CategoryID:      categoryID,
		SubcategoryID:   subcategoryID,
		CategoryName:    model.DefaultCategoryName,
		SubcategoryName: model.DefaultSubcategoryName,
	}

	if createAutoIfNoMatch {
		ruleID, created, err := r.learnAutoRule(ctx, tenantID, merchantNorm, rawDescriptor, categoryID, subcategoryID)
		if err != nil {
			return nil, err
		}
		resolution.RuleID = ruleID
		resolution.CreatedAuto = created
	}

	return resolution, nil
}

// CreateRuleInput describes a user-authored rule. Priority zero applies the
// user default; the category is derived from the subcategory, never trusted
// from the caller.
type CreateRuleInput struct {
	Pattern           string
	ExampleDescriptor string
	SubcategoryID     int64
	Priority          int
	Inactive          bool
}

// CreateRule creates a USER rule.
func (r *Resolver) CreateRule(ctx context.Context, tenantID int64, in CreateRuleInput) (*model.RuleWithNames, error) {
	pattern := strings.TrimSpace(in.Pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: pattern is required", common.ErrValidation)
	}
	patternNorm := normalize.Normalize(pattern)
	if patternNorm == "" {
		return nil, fmt.Errorf("%w: pattern normalizes to nothing", common.ErrValidation)
	}

	sub, err := r.catalog.Subcategory(ctx, tenantID, in.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up subcategory: %w", err)
	}

	priority := in.Priority
	if priority == 0 {
		priority = model.PriorityUserDefault
	}

	rule := &model.Rule{
		TenantID:          tenantID,
		Pattern:           pattern,
		PatternNorm:       patternNorm,
		ExampleDescriptor: clip(strings.TrimSpace(in.ExampleDescriptor), maxDescriptorLen),
		CategoryID:        sub.CategoryID,
		SubcategoryID:     sub.ID,
		Priority:          priority,
		Active:            !in.Inactive,
		Confidence:        model.ConfidenceUser,
	}
	if err := r.rules.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	return r.rules.GetRule(ctx, tenantID, rule.ID)
}

// UpdateRuleInput carries partial rule edits; nil fields are untouched.
type UpdateRuleInput struct {
	Pattern       *string
	SubcategoryID *int64
	Priority      *int
	Active        *bool
}

// UpdateRule applies a partial edit. Any user edit forces confidence USER and
// pattern edits recompute the normalized form. The returned flag reports
// whether the rule's classification changed, which is the caller's cue to
// enqueue a recategorization job.
func (r *Resolver) UpdateRule(ctx context.Context, tenantID, ruleID int64, in UpdateRuleInput) (*model.RuleWithNames, bool, error) {
	existing, err := r.rules.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, false, err
	}

	updated := existing.Rule
	classificationChanged := false

	if in.Pattern != nil {
		pattern := strings.TrimSpace(*in.Pattern)
		if pattern == "" {
			return nil, false, fmt.Errorf("%w: pattern cannot be empty", common.ErrValidation)
		}
		patternNorm := normalize.Normalize(pattern)
		if patternNorm == "" {
			return nil, false, fmt.Errorf("%w: pattern normalizes to nothing", common.ErrValidation)
		}
		updated.Pattern = pattern
		updated.PatternNorm = patternNorm
	}

	if in.SubcategoryID != nil {
		sub, err := r.catalog.Subcategory(ctx, tenantID, *in.SubcategoryID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up subcategory: %w", err)
		}
		classificationChanged = sub.CategoryID != existing.CategoryID || sub.ID != existing.SubcategoryID
		updated.CategoryID = sub.CategoryID
		updated.SubcategoryID = sub.ID
	}

	if in.Priority != nil {
		updated.Priority = *in.Priority
	}
	if in.Active != nil {
		updated.Active = *in.Active
	}

	updated.Confidence = model.ConfidenceUser

	if err := r.rules.UpdateRule(ctx, &updated); err != nil {
		return nil, false, err
	}

	withNames, err := r.rules.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, false, err
	}
	return withNames, classificationChanged, nil
}

// DeleteRule removes a rule. Historical transaction assignments are kept.
func (r *Resolver) DeleteRule(ctx context.Context, tenantID, ruleID int64) error {
	return r.rules.DeleteRule(ctx, tenantID, ruleID)
}

// defaultResolution is the short-circuit for descriptors that normalize to
// nothing: the default bucket, no rule attribution, no learning.
func (r *Resolver) defaultResolution(ctx context.Context, tenantID int64) (*service.Resolution, error) {
	categoryID, subcategoryID, err := r.catalog.DefaultBucket(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &service.Resolution{
		CategoryID:      categoryID,
		SubcategoryID:   subcategoryID,
		CategoryName:    model.DefaultCategoryName,
		SubcategoryName: model.DefaultSubcategoryName,
	}, nil
}

// learnAutoRule derives a pattern from the normalized descriptor and creates
// an AUTO rule unless one already holds that normalized pattern. The store's
// conditional insert carries the idempotence: two concurrent misses for the
// same merchant produce one rule.
func (r *Resolver) learnAutoRule(ctx context.Context, tenantID int64, merchantNorm, rawDescriptor string, categoryID, subcategoryID int64) (int64, bool, error) {
	pattern := normalize.SuggestPattern(merchantNorm, normalize.DefaultPatternMaxChars)
	patternNorm := normalize.Normalize(pattern)
	if patternNorm == "" {
		return 0, false, nil
	}

	rule := &model.Rule{
		TenantID:          tenantID,
		Pattern:           clip(pattern, maxPatternLen),
		PatternNorm:       patternNorm,
		ExampleDescriptor: clip(strings.TrimSpace(rawDescriptor), maxDescriptorLen),
		CategoryID:        categoryID,
		SubcategoryID:     subcategoryID,
		Priority:          model.PriorityAuto,
		Active:            true,
		Confidence:        model.ConfidenceAuto,
	}

	created, ruleID, err := r.rules.CreateRuleIfAbsent(ctx, rule)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create auto rule: %w", err)
	}
	if created {
		slog.Info("learned auto rule",
			"tenant", tenantID,
			"rule_id", ruleID,
			"pattern_norm", patternNorm)
	}
	return ruleID, created, nil
}

// bestMatch returns the winning candidate rule, or nil when none match.
// A candidate is an active rule whose non-empty normalized pattern is a
// substring of the normalized descriptor.
func bestMatch(rules []model.Rule, merchantNorm string) *model.Rule {
	var best *model.Rule
	for i := range rules {
		rule := &rules[i]
		if !rule.Active || rule.PatternNorm == "" {
			continue
		}
		if !strings.Contains(merchantNorm, rule.PatternNorm) {
			continue
		}
		if best == nil || ruleLess(rule, best) {
			best = rule
		}
	}
	return best
}

// ruleLess is the candidate ranking: priority ascending, pattern length
// descending, USER before AUTO, most recently updated first. The order is
// total in practice, so the winner is independent of slice order.
func ruleLess(a, b *model.Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if len(a.PatternNorm) != len(b.PatternNorm) {
		return len(a.PatternNorm) > len(b.PatternNorm)
	}
	if a.Confidence != b.Confidence {
		return a.Confidence == model.ConfidenceUser
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

// clip truncates s to max bytes' worth of runes.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// IsNotFound reports whether err is the store's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
