package model

import "time"

// Well-known default bucket names. Auto-created per tenant on first
// resolver miss; part of the observable contract.
const (
	DefaultCategoryName    = "Other"
	DefaultSubcategoryName = "Uncategorized expenses"
)

// Display defaults for auto-created categories.
const (
	DefaultCategoryIcon  = "📁"
	DefaultCategoryColor = "#6b7280"
)

// Category represents a top-level spending category owned by a tenant.
type Category struct {
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
}

// Subcategory represents a subdivision of a Category.
type Subcategory struct {
	CreatedAt  time.Time `json:"created_at"`
	Name       string    `json:"name"`
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	CategoryID int64     `json:"category_id"`
}
