// Package model holds the records shared by the stores, services and API.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles carried in access tokens.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Category groups products. Names are unique among active categories.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// Product is a catalog entry. Category is resolved by value at read time.
type Product struct {
	ID            int64           `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Image         string          `json:"image"`
	Stock         int             `json:"stock"`
	Category      Category        `json:"category"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	IsDeleted     bool            `json:"is_deleted"`
}

// OrderStatus is the terminal state of a validated order.
type OrderStatus string

const (
	OrderAccepted OrderStatus = "ACCEPTED"
)

// OrderLine references a product with the unit price agreed at order time.
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Order is a user's purchase request. Accepted orders are immutable.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Lines     []OrderLine     `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	OrderedAt time.Time       `json:"ordered_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TotalItems returns the number of units across all lines.
func (o *Order) TotalItems() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// User is an account able to authenticate against the API.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session binds a refresh token to a user.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"-"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	IPAddress        string    `json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
}
