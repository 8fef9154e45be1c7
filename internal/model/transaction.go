package model

import "time"

// Transaction is a bank movement with its current classification.
// RuleID records which rule produced the classification, if any; the
// recategorization pipeline keys its bulk updates on it.
type Transaction struct {
	Date          time.Time `json:"date"`
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	Descriptor    string    `json:"descriptor"`
	TenantID      int64     `json:"tenant_id"`
	CategoryID    int64     `json:"category_id"`
	SubcategoryID int64     `json:"subcategory_id"`
	RuleID        int64     `json:"rule_id,omitempty"`
	Amount        float64   `json:"amount"`
}
