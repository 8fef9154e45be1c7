// Package model defines the core data structures for the centavo application.
package model

import "time"

// Confidence indicates how a merchant rule came to exist.
type Confidence string

const (
	// ConfidenceUser marks rules created or edited by a human.
	ConfidenceUser Confidence = "USER"
	// ConfidenceAuto marks rules inferred by the resolver from an unmatched descriptor.
	ConfidenceAuto Confidence = "AUTO"
)

// Default priorities. Lower number means higher precedence.
const (
	PriorityUserDefault = 100
	PriorityAuto        = 200
)

// Rule maps a merchant descriptor substring to a category/subcategory.
// PatternNorm is derived from Pattern and is the sole basis for matching.
type Rule struct {
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Pattern           string     `json:"pattern"`
	PatternNorm       string     `json:"pattern_norm"`
	ExampleDescriptor string     `json:"example_descriptor,omitempty"`
	Confidence        Confidence `json:"confidence"`
	ID                int64      `json:"id"`
	TenantID          int64      `json:"tenant_id"`
	CategoryID        int64      `json:"category_id"`
	SubcategoryID     int64      `json:"subcategory_id"`
	Priority          int        `json:"priority"`
	Active            bool       `json:"active"`
}

// RuleWithNames is a Rule joined to its category/subcategory names for listing.
type RuleWithNames struct {
	Rule
	CategoryName    string `json:"category_name"`
	SubcategoryName string `json:"subcategory_name"`
}
