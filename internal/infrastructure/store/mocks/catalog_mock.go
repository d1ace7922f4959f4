package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
)

// MockCatalog wraps a real in-memory catalog and lets tests inject failures and
// inspect calls.
type MockCatalog struct {
	*store.MemoryCatalog

	mu sync.Mutex

	UpsertErr  error
	UpdateErr  error
	ReserveErr error
	GetErr     error

	UpsertCalls  []model.Product
	UpdateCalls  []int64
	ReserveCalls [][]store.StockRequest
	ReleaseCalls [][]store.StockRequest
}

// NewMockCatalog creates a MockCatalog over an empty memory catalog
func NewMockCatalog() *MockCatalog {
	return &MockCatalog{MemoryCatalog: store.NewMemoryCatalog()}
}

// Get returns GetErr if set, otherwise the stored product
func (m *MockCatalog) Get(ctx context.Context, id int64) (*model.Product, error) {
	m.mu.Lock()
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryCatalog.Get(ctx, id)
}

// Upsert records the product and returns UpsertErr if set
func (m *MockCatalog) Upsert(ctx context.Context, p *model.Product) (*model.Product, error) {
	m.mu.Lock()
	m.UpsertCalls = append(m.UpsertCalls, *p)
	err := m.UpsertErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryCatalog.Upsert(ctx, p)
}

// UpdateProduct records the id and returns UpdateErr if set
func (m *MockCatalog) UpdateProduct(ctx context.Context, id int64, mutate func(*model.Product) error) (*model.Product, error) {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, id)
	err := m.UpdateErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryCatalog.UpdateProduct(ctx, id, mutate)
}

// Reserve records the requests and returns ReserveErr if set
func (m *MockCatalog) Reserve(ctx context.Context, reqs []store.StockRequest) error {
	m.mu.Lock()
	m.ReserveCalls = append(m.ReserveCalls, reqs)
	err := m.ReserveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryCatalog.Reserve(ctx, reqs)
}

// Release records the requests
func (m *MockCatalog) Release(ctx context.Context, reqs []store.StockRequest) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, reqs)
	m.mu.Unlock()
	return m.MemoryCatalog.Release(ctx, reqs)
}
