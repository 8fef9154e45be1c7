// Package catalog provides cached, tenant-scoped access to categories and
// subcategories. Reads go through the process-wide read-through cache;
// writes invalidate the tenant's entries.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finanzas-dev/centavo/internal/cache"
	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
	"github.com/finanzas-dev/centavo/internal/service"
)

// Cache table names. Part of the cache key space together with the tenant.
const (
	tableCategories    = "categories"
	tableSubcategories = "subcategories"
)

// Service fronts a CatalogStore with TTL caching for the read-heavy lookups
// the resolver performs on every transaction.
type Service struct {
	store         service.CatalogStore
	categories    *cache.Cache[[]model.Category]
	subcategories *cache.Cache[[]model.Subcategory]
	ttl           time.Duration
}

// New creates a catalog service. A non-positive ttl disables caching.
func New(store service.CatalogStore, ttl time.Duration) *Service {
	return &Service{
		store:         store,
		categories:    cache.New[[]model.Category](),
		subcategories: cache.New[[]model.Subcategory](),
		ttl:           ttl,
	}
}

// Categories returns the tenant's categories, cached.
func (s *Service) Categories(ctx context.Context, tenantID int64) ([]model.Category, error) {
	key := cache.Key{TenantID: tenantID, Table: tableCategories}
	return s.categories.GetOrFetch(ctx, key, s.ttl, func(ctx context.Context) ([]model.Category, error) {
		return s.store.ListCategories(ctx, tenantID)
	})
}

// Subcategories returns the tenant's subcategories, cached.
func (s *Service) Subcategories(ctx context.Context, tenantID int64) ([]model.Subcategory, error) {
	key := cache.Key{TenantID: tenantID, Table: tableSubcategories}
	return s.subcategories.GetOrFetch(ctx, key, s.ttl, func(ctx context.Context) ([]model.Subcategory, error) {
		return s.store.ListSubcategories(ctx, tenantID)
	})
}

// CategoryName returns the display name for a category ID, or "" when the
// category is unknown.
func (s *Service) CategoryName(ctx context.Context, tenantID, categoryID int64) (string, error) {
	cats, err := s.Categories(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, c := range cats {
		if c.ID == categoryID {
			return c.Name, nil
		}
	}
	return "", nil
}

// SubcategoryName returns the display name for a subcategory ID, or "" when
// the subcategory is unknown.
func (s *Service) SubcategoryName(ctx context.Context, tenantID, subcategoryID int64) (string, error) {
	subs, err := s.Subcategories(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, sc := range subs {
		if sc.ID == subcategoryID {
			return sc.Name, nil
		}
	}
	return "", nil
}

// Subcategory returns a subcategory by ID, bypassing the cache. Mutation
// paths use it so validation never trusts a stale read.
func (s *Service) Subcategory(ctx context.Context, tenantID, subcategoryID int64) (*model.Subcategory, error) {
	return s.store.GetSubcategoryByID(ctx, tenantID, subcategoryID)
}

// CreateCategory creates a category and invalidates the tenant's cache.
func (s *Service) CreateCategory(ctx context.Context, tenantID int64, name string) (*model.Category, error) {
	cat, err := s.store.CreateCategory(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	s.invalidateTenant(tenantID)
	return cat, nil
}

// CreateSubcategory creates a subcategory and invalidates the tenant's cache.
func (s *Service) CreateSubcategory(ctx context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error) {
	sub, err := s.store.CreateSubcategory(ctx, tenantID, categoryID, name)
	if err != nil {
		return nil, err
	}
	s.invalidateTenant(tenantID)
	return sub, nil
}

// DefaultBucket returns the tenant's catch-all category/subcategory pair,
// creating "Other" / "Uncategorized expenses" on first use. Lookups go to
// the store directly so a stale cache cannot cause duplicate creates; a
// concurrent create losing the store's uniqueness race falls back to the
// winner's row.
func (s *Service) DefaultBucket(ctx context.Context, tenantID int64) (categoryID, subcategoryID int64, err error) {
	cat, err := s.store.GetCategoryByName(ctx, tenantID, model.DefaultCategoryName)
	if errors.Is(err, common.ErrNotFound) {
		cat, err = s.createOrGetCategory(ctx, tenantID, model.DefaultCategoryName)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve default category: %w", err)
	}

	sub, err := s.store.GetSubcategoryByName(ctx, tenantID, cat.ID, model.DefaultSubcategoryName)
	if errors.Is(err, common.ErrNotFound) {
		sub, err = s.createOrGetSubcategory(ctx, tenantID, cat.ID, model.DefaultSubcategoryName)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve default subcategory: %w", err)
	}

	return cat.ID, sub.ID, nil
}

func (s *Service) createOrGetCategory(ctx context.Context, tenantID int64, name string) (*model.Category, error) {
	cat, err := s.CreateCategory(ctx, tenantID, name)
	if errors.Is(err, common.ErrDuplicateEntry) {
		return s.store.GetCategoryByName(ctx, tenantID, name)
	}
	return cat, err
}

func (s *Service) createOrGetSubcategory(ctx context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error) {
	sub, err := s.CreateSubcategory(ctx, tenantID, categoryID, name)
	if errors.Is(err, common.ErrDuplicateEntry) {
		return s.store.GetSubcategoryByName(ctx, tenantID, categoryID, name)
	}
	return sub, err
}

func (s *Service) invalidateTenant(tenantID int64) {
	s.categories.InvalidateTenant(tenantID)
	s.subcategories.InvalidateTenant(tenantID)
}
