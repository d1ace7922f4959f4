package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-store/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrPriceMismatch     = errors.New("price mismatch")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownCategory   = errors.New("unknown category")
)

// StockError reports which product made a reservation fail.
type StockError struct {
	ProductID int64
	Err       error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %d: %v", e.ProductID, e.Err)
}

func (e *StockError) Unwrap() error { return e.Err }

// StockRequest asks for quantity units of a product at the agreed unit price.
type StockRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// CategoryStore persists categories.
type CategoryStore interface {
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	// FindCategoryByName matches active categories case-insensitively.
	FindCategoryByName(ctx context.Context, name string) (*model.Category, error)
	ListCategories(ctx context.Context, filter CategoryFilter) ([]model.Category, error)
	// UpsertCategory inserts when ID is empty. Returns ErrConflict if another active
	// category already uses the name.
	UpsertCategory(ctx context.Context, c *model.Category) (*model.Category, error)
	// RenameCategory renames an active category. Deleted or missing categories give
	// ErrNotFound; a name taken by another active category gives ErrConflict.
	RenameCategory(ctx context.Context, id, name string) (*model.Category, error)
	SoftDeleteCategory(ctx context.Context, id string) error
}

// ProductStore is the catalog's product side.
type ProductStore interface {
	Get(ctx context.Context, id int64) (*model.Product, error)
	GetByCorrelationID(ctx context.Context, token string) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter, page PageRequest) (Page[model.Product], error)
	// Upsert inserts when ID is zero, otherwise overwrites the whole row.
	// Category.ID must reference an existing category.
	Upsert(ctx context.Context, p *model.Product) (*model.Product, error)
	// UpdateProduct runs mutate on the current row of a live product while holding
	// it, then stores the result. Stock changes and deletions made by others cannot
	// interleave. Missing or soft-deleted products give ErrNotFound, a Category.ID
	// that does not exist gives ErrUnknownCategory, and an error from mutate aborts
	// the update unchanged. mutate must not call back into the catalog.
	UpdateProduct(ctx context.Context, id int64, mutate func(*model.Product) error) (*model.Product, error)
	SoftDelete(ctx context.Context, id int64) error
	// Reserve checks every request against current price and stock and decrements
	// all of them, or none. Failures are *StockError.
	Reserve(ctx context.Context, reqs []StockRequest) error
	// Release returns previously reserved units.
	Release(ctx context.Context, reqs []StockRequest) error
}

// Catalog is the combined category and product store.
type Catalog interface {
	CategoryStore
	ProductStore
}

// OrderStore persists accepted orders.
type OrderStore interface {
	SaveOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	// ListOrders lists orders of userID, or all orders when userID is empty.
	ListOrders(ctx context.Context, userID string, page PageRequest) (Page[model.Order], error)
	DeleteOrder(ctx context.Context, id string) error
}

// UserStore persists accounts and refresh sessions.
type UserStore interface {
	// CreateUser returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	// ReplacePasswordHash swaps the hash only while it still equals current.
	// ErrNotFound means the user is gone or the hash changed since it was read.
	ReplacePasswordHash(ctx context.Context, id, current, next string, at time.Time) error
	ListUsers(ctx context.Context, page PageRequest) (Page[model.User], error)

	SaveSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUserID(ctx context.Context, userID string) error
}

// CategoryFilter narrows ListCategories. Zero values are ignored.
type CategoryFilter struct {
	Name      string
	IsDeleted *bool
}

// Matches reports whether c satisfies every set predicate.
func (f CategoryFilter) Matches(c model.Category) bool {
	if f.Name != "" && !containsFold(c.Name, f.Name) {
		return false
	}
	if f.IsDeleted != nil && c.IsDeleted != *f.IsDeleted {
		return false
	}
	return true
}

// ProductFilter holds the optional list predicates; all set predicates must hold.
type ProductFilter struct {
	Brand     string
	Category  string
	Model     string
	IsDeleted *bool
	MaxPrice  *decimal.Decimal
	MinStock  *int
}

// Matches reports whether p satisfies every set predicate. Text predicates are
// case-insensitive substring matches.
func (f ProductFilter) Matches(p model.Product) bool {
	if f.Brand != "" && !containsFold(p.Brand, f.Brand) {
		return false
	}
	if f.Category != "" && !containsFold(p.Category.Name, f.Category) {
		return false
	}
	if f.Model != "" && !containsFold(p.Model, f.Model) {
		return false
	}
	if f.IsDeleted != nil && p.IsDeleted != *f.IsDeleted {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.MinStock != nil && p.Stock < *f.MinStock {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// mergeRequests sums quantities per product so duplicate lines are checked together.
func mergeRequests(reqs []StockRequest) []StockRequest {
	index := make(map[int64]int, len(reqs))
	merged := make([]StockRequest, 0, len(reqs))
	for _, r := range reqs {
		if i, ok := index[r.ProductID]; ok {
			merged[i].Quantity += r.Quantity
			continue
		}
		index[r.ProductID] = len(merged)
		merged = append(merged, r)
	}
	return merged
}
