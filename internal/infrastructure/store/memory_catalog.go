package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-store/internal/model"
)

// MemoryCatalog is an in-memory Catalog. A single RWMutex serialises writers, so
// Reserve checks and decrements every line atomically.
type MemoryCatalog struct {
	mu         sync.RWMutex
	categories map[string]model.Category
	products   map[int64]model.Product // Category holds only the ID
	byToken    map[string]int64
	nextID     int64
	now        func() time.Time
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		categories: make(map[string]model.Category),
		products:   make(map[int64]model.Product),
		byToken:    make(map[string]int64),
		now:        time.Now,
	}
}

// Categories

func (s *MemoryCatalog) GetCategory(_ context.Context, id string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryCatalog) FindCategoryByName(_ context.Context, name string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.activeCategoryByName(name); ok {
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryCatalog) activeCategoryByName(name string) (model.Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range s.categories {
		if !c.IsDeleted && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return model.Category{}, false
}

func (s *MemoryCatalog) ListCategories(_ context.Context, filter CategoryFilter) ([]model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryCatalog) UpsertCategory(_ context.Context, c *model.Category) (*model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	saved := *c
	if saved.ID == "" {
		saved.ID = uuid.New().String()
		saved.CreatedAt = now
	} else {
		existing, ok := s.categories[saved.ID]
		if !ok {
			return nil, ErrNotFound
		}
		saved.CreatedAt = existing.CreatedAt
	}
	if !saved.IsDeleted {
		if other, ok := s.activeCategoryByName(saved.Name); ok && other.ID != saved.ID {
			return nil, ErrConflict
		}
	}
	saved.UpdatedAt = now
	s.categories[saved.ID] = saved
	return &saved, nil
}

func (s *MemoryCatalog) RenameCategory(_ context.Context, id, name string) (*model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.IsDeleted {
		return nil, ErrNotFound
	}
	if other, ok := s.activeCategoryByName(name); ok && other.ID != id {
		return nil, ErrConflict
	}
	c.Name = name
	c.UpdatedAt = s.now()
	s.categories[id] = c
	return &c, nil
}

func (s *MemoryCatalog) SoftDeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.IsDeleted {
		return ErrNotFound
	}
	c.IsDeleted = true
	c.UpdatedAt = s.now()
	s.categories[id] = c
	return nil
}

// Products

func (s *MemoryCatalog) resolve(p model.Product) model.Product {
	if c, ok := s.categories[p.Category.ID]; ok {
		p.Category = c
	}
	return p
}

func (s *MemoryCatalog) Get(_ context.Context, id int64) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = s.resolve(p)
	return &p, nil
}

func (s *MemoryCatalog) GetByCorrelationID(ctx context.Context, token string) (*model.Product, error) {
	s.mu.RLock()
	id, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *MemoryCatalog) List(_ context.Context, filter ProductFilter, page PageRequest) (Page[model.Product], error) {
	page = page.Normalize()

	s.mu.RLock()
	matched := make([]model.Product, 0)
	for _, p := range s.products {
		p = s.resolve(p)
		if filter.Matches(p) {
			matched = append(matched, p)
		}
	}
	s.mu.RUnlock()

	sortProducts(matched, page.SortBy, page.Desc)
	return paginate(matched, page), nil
}

func sortProducts(items []model.Product, field string, desc bool) {
	less := func(a, b model.Product) int {
		switch field {
		case SortBrand:
			return strings.Compare(strings.ToLower(a.Brand), strings.ToLower(b.Brand))
		case SortModel:
			return strings.Compare(strings.ToLower(a.Model), strings.ToLower(b.Model))
		case SortPrice:
			return a.Price.Cmp(b.Price)
		case SortStock:
			return a.Stock - b.Stock
		case SortCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return 0
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := less(items[i], items[j])
		if c == 0 {
			c = int(items[i].ID - items[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (s *MemoryCatalog) Upsert(_ context.Context, p *model.Product) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[p.Category.ID]; !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	saved := *p
	saved.Category = model.Category{ID: p.Category.ID}
	if saved.ID == 0 {
		s.nextID++
		saved.ID = s.nextID
		if saved.CorrelationID == "" {
			saved.CorrelationID = uuid.New().String()
		}
		saved.CreatedAt = now
	} else {
		existing, ok := s.products[saved.ID]
		if !ok {
			return nil, ErrNotFound
		}
		saved.CorrelationID = existing.CorrelationID
		saved.CreatedAt = existing.CreatedAt
	}
	saved.UpdatedAt = now
	s.products[saved.ID] = saved
	s.byToken[saved.CorrelationID] = saved.ID

	out := s.resolve(saved)
	return &out, nil
}

func (s *MemoryCatalog) UpdateProduct(_ context.Context, id int64, mutate func(*model.Product) error) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[id]
	if !ok || current.IsDeleted {
		return nil, ErrNotFound
	}
	next := s.resolve(current)
	if err := mutate(&next); err != nil {
		return nil, err
	}
	if _, ok := s.categories[next.Category.ID]; !ok {
		return nil, ErrUnknownCategory
	}

	// identity and lifecycle columns belong to the store
	next.ID = current.ID
	next.CorrelationID = current.CorrelationID
	next.CreatedAt = current.CreatedAt
	next.IsDeleted = false
	next.UpdatedAt = s.now()
	next.Category = model.Category{ID: next.Category.ID}
	s.products[id] = next

	out := s.resolve(next)
	return &out, nil
}

func (s *MemoryCatalog) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.IsDeleted {
		return ErrNotFound
	}
	p.IsDeleted = true
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

func (s *MemoryCatalog) Reserve(_ context.Context, reqs []StockRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := mergeRequests(reqs)
	for _, r := range merged {
		p, ok := s.products[r.ProductID]
		if !ok || p.IsDeleted {
			return &StockError{ProductID: r.ProductID, Err: ErrNotFound}
		}
		if !p.Price.Equal(r.UnitPrice) {
			return &StockError{ProductID: r.ProductID, Err: ErrPriceMismatch}
		}
		if p.Stock < r.Quantity {
			return &StockError{ProductID: r.ProductID, Err: ErrInsufficientStock}
		}
	}

	now := s.now()
	for _, r := range merged {
		p := s.products[r.ProductID]
		p.Stock -= r.Quantity
		p.UpdatedAt = now
		s.products[r.ProductID] = p
	}
	return nil
}

func (s *MemoryCatalog) Release(_ context.Context, reqs []StockRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, r := range reqs {
		p, ok := s.products[r.ProductID]
		if !ok {
			continue
		}
		p.Stock += r.Quantity
		p.UpdatedAt = now
		s.products[r.ProductID] = p
	}
	return nil
}
