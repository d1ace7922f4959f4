package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/ec-store/internal/model"
)

// MemoryOrders is an in-memory OrderStore.
type MemoryOrders struct {
	mu     sync.RWMutex
	orders map[string]model.Order
}

// NewMemoryOrders creates an empty order store.
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{orders: make(map[string]model.Order)}
}

func (s *MemoryOrders) SaveOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return ErrConflict
	}
	saved := *o
	saved.Lines = append([]model.OrderLine(nil), o.Lines...)
	s.orders[o.ID] = saved
	return nil
}

func (s *MemoryOrders) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Lines = append([]model.OrderLine(nil), o.Lines...)
	return &o, nil
}

func (s *MemoryOrders) ListOrders(_ context.Context, userID string, page PageRequest) (Page[model.Order], error) {
	page = page.Normalize()

	s.mu.RLock()
	matched := make([]model.Order, 0)
	for _, o := range s.orders {
		if userID == "" || o.UserID == userID {
			matched = append(matched, o)
		}
	}
	s.mu.RUnlock()

	// ULIDs sort by creation time.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginate(matched, page), nil
}

func (s *MemoryOrders) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

// MemoryUsers is an in-memory UserStore.
type MemoryUsers struct {
	mu       sync.RWMutex
	users    map[string]model.User
	sessions map[string]model.Session
}

// NewMemoryUsers creates an empty user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		users:    make(map[string]model.User),
		sessions: make(map[string]model.Session),
	}
}

func (s *MemoryUsers) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryUsers) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryUsers) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUsers) UpdateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryUsers) ReplacePasswordHash(_ context.Context, id, current, next string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.PasswordHash != current {
		return ErrNotFound
	}
	u.PasswordHash = next
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

func (s *MemoryUsers) ListUsers(_ context.Context, page PageRequest) (Page[model.User], error) {
	page = page.Normalize()

	s.mu.RLock()
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return paginate(users, page), nil
}

func (s *MemoryUsers) SaveSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryUsers) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (s *MemoryUsers) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryUsers) DeleteSessionsByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}
