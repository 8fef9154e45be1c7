package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finanzas-dev/centavo/internal/common"
	"github.com/finanzas-dev/centavo/internal/model"
)

// mockRuleStore is an in-memory RuleStore with the same uniqueness guarantee
// on (tenant, patternNorm) the real store enforces.
type mockRuleStore struct {
	rules  map[int64]*model.Rule
	mu     sync.Mutex
	nextID int64
}

func newMockRuleStore() *mockRuleStore {
	return &mockRuleStore{rules: make(map[int64]*model.Rule)}
}

func (m *mockRuleStore) GetActiveRules(_ context.Context, tenantID int64) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Rule
	for _, r := range m.rules {
		if r.TenantID == tenantID && r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRuleStore) GetRule(_ context.Context, tenantID, id int64) (*model.RuleWithNames, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.TenantID != tenantID {
		return nil, fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	return &model.RuleWithNames{Rule: *r}, nil
}

func (m *mockRuleStore) GetRuleByPatternNorm(_ context.Context, tenantID int64, patternNorm string) (*model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.TenantID == tenantID && r.PatternNorm == patternNorm {
			rule := *r
			return &rule, nil
		}
	}
	return nil, fmt.Errorf("%w: pattern %q", common.ErrNotFound, patternNorm)
}

func (m *mockRuleStore) ListRules(_ context.Context, tenantID int64) ([]model.RuleWithNames, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RuleWithNames
	for _, r := range m.rules {
		if r.TenantID == tenantID {
			out = append(out, model.RuleWithNames{Rule: *r})
		}
	}
	return out, nil
}

func (m *mockRuleStore) CreateRule(_ context.Context, rule *model.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rule.ID = m.nextID
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	stored := *rule
	m.rules[rule.ID] = &stored
	return nil
}

func (m *mockRuleStore) CreateRuleIfAbsent(_ context.Context, rule *model.Rule) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.TenantID == rule.TenantID && r.PatternNorm == rule.PatternNorm {
			return false, r.ID, nil
		}
	}
	m.nextID++
	rule.ID = m.nextID
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	stored := *rule
	m.rules[rule.ID] = &stored
	return true, rule.ID, nil
}

func (m *mockRuleStore) UpdateRule(_ context.Context, rule *model.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rules[rule.ID]
	if !ok || existing.TenantID != rule.TenantID {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, rule.ID)
	}
	updated := *rule
	updated.UpdatedAt = time.Now()
	m.rules[rule.ID] = &updated
	return nil
}

func (m *mockRuleStore) DeleteRule(_ context.Context, tenantID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.TenantID != tenantID {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	delete(m.rules, id)
	return nil
}

func (m *mockRuleStore) count(tenantID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rules {
		if r.TenantID == tenantID {
			n++
		}
	}
	return n
}

// mockCatalogStore is an in-memory CatalogStore.
type mockCatalogStore struct {
	categories    map[int64]*model.Category
	subcategories map[int64]*model.Subcategory
	mu            sync.Mutex
	nextID        int64
	listCalls     int
}

func newMockCatalogStore() *mockCatalogStore {
	return &mockCatalogStore{
		categories:    make(map[int64]*model.Category),
		subcategories: make(map[int64]*model.Subcategory),
	}
}

func (m *mockCatalogStore) seed(tenantID int64, category, subcategory string) (int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	catID := m.nextID
	m.categories[catID] = &model.Category{ID: catID, TenantID: tenantID, Name: category}
	m.nextID++
	subID := m.nextID
	m.subcategories[subID] = &model.Subcategory{ID: subID, TenantID: tenantID, CategoryID: catID, Name: subcategory}
	return catID, subID
}

func (m *mockCatalogStore) ListCategories(_ context.Context, tenantID int64) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []model.Category
	for _, c := range m.categories {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCatalogStore) ListSubcategories(_ context.Context, tenantID int64) ([]model.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subcategory
	for _, s := range m.subcategories {
		if s.TenantID == tenantID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockCatalogStore) GetCategoryByID(_ context.Context, tenantID, id int64) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok || c.TenantID != tenantID {
		return nil, fmt.Errorf("%w: category %d", common.ErrNotFound, id)
	}
	cat := *c
	return &cat, nil
}

func (m *mockCatalogStore) GetSubcategoryByID(_ context.Context, tenantID, id int64) (*model.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subcategories[id]
	if !ok || s.TenantID != tenantID {
		return nil, fmt.Errorf("%w: subcategory %d", common.ErrNotFound, id)
	}
	sub := *s
	return &sub, nil
}

func (m *mockCatalogStore) GetCategoryByName(_ context.Context, tenantID int64, name string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.TenantID == tenantID && strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			cat := *c
			return &cat, nil
		}
	}
	return nil, fmt.Errorf("%w: category %q", common.ErrNotFound, name)
}

func (m *mockCatalogStore) GetSubcategoryByName(_ context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subcategories {
		if s.TenantID == tenantID && s.CategoryID == categoryID &&
			strings.EqualFold(strings.TrimSpace(s.Name), strings.TrimSpace(name)) {
			sub := *s
			return &sub, nil
		}
	}
	return nil, fmt.Errorf("%w: subcategory %q", common.ErrNotFound, name)
}

func (m *mockCatalogStore) CreateCategory(_ context.Context, tenantID int64, name string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &model.Category{ID: m.nextID, TenantID: tenantID, Name: name, Icon: model.DefaultCategoryIcon, Color: model.DefaultCategoryColor}
	m.categories[c.ID] = c
	cat := *c
	return &cat, nil
}

func (m *mockCatalogStore) CreateSubcategory(_ context.Context, tenantID, categoryID int64, name string) (*model.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &model.Subcategory{ID: m.nextID, TenantID: tenantID, CategoryID: categoryID, Name: name}
	m.subcategories[s.ID] = s
	sub := *s
	return &sub, nil
}
