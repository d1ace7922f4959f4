package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
)

// MockOrderStore is an in-memory OrderStore with failure injection
type MockOrderStore struct {
	*store.MemoryOrders

	mu sync.Mutex

	SaveErr   error
	SaveCalls []model.Order
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{MemoryOrders: store.NewMemoryOrders()}
}

// SaveOrder records the order and returns SaveErr if set
func (m *MockOrderStore) SaveOrder(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	m.SaveCalls = append(m.SaveCalls, *o)
	err := m.SaveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryOrders.SaveOrder(ctx, o)
}

// SavedCount returns how many SaveOrder calls were made
func (m *MockOrderStore) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SaveCalls)
}
