package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrPriceMismatch     = errors.New("price does not match current catalog price")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyOrder        = errors.New("order has no lines")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidPrice      = errors.New("unit price must not be negative")
)

// RejectionError reports the first order line that failed validation.
type RejectionError struct {
	Line      int
	ProductID int64
	Err       error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("line %d (product %d): %v", e.Line, e.ProductID, e.Err)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// LineInput is one requested line with the price the client agreed to.
type LineInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

type PlaceOrder struct {
	UserID string
	Lines  []LineInput
}

// Service validates and stores orders
type Service struct {
	catalog store.ProductStore
	orders  store.OrderStore
	users   store.UserStore
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new order service. users may be nil, in which case
// order owners are not checked.
func NewService(catalog store.ProductStore, orders store.OrderStore, users store.UserStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog: catalog,
		orders:  orders,
		users:   users,
		logger:  logger.Named("order"),
		now:     time.Now,
	}
}

func checkShape(in PlaceOrder) error {
	if len(in.Lines) == 0 {
		return ErrEmptyOrder
	}
	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return &RejectionError{Line: i, ProductID: l.ProductID, Err: ErrInvalidQuantity}
		}
		if l.UnitPrice.IsNegative() {
			return &RejectionError{Line: i, ProductID: l.ProductID, Err: ErrInvalidPrice}
		}
	}
	return nil
}

// precheck walks the lines in order against the live catalog and stops at the
// first failing one. Quantities for a repeated product accumulate.
func (s *Service) precheck(ctx context.Context, lines []LineInput) error {
	requested := make(map[int64]int, len(lines))
	for i, l := range lines {
		p, err := s.catalog.Get(ctx, l.ProductID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && p.IsDeleted) {
			return &RejectionError{Line: i, ProductID: l.ProductID, Err: ErrProductNotFound}
		}
		if err != nil {
			return err
		}
		if !p.Price.Equal(l.UnitPrice) {
			return &RejectionError{Line: i, ProductID: l.ProductID, Err: ErrPriceMismatch}
		}
		requested[l.ProductID] += l.Quantity
		if p.Stock < requested[l.ProductID] {
			return &RejectionError{Line: i, ProductID: l.ProductID, Err: ErrInsufficientStock}
		}
	}
	return nil
}

// rejection converts a reservation failure into the error of the first line
// for that product.
func rejection(lines []LineInput, err error) error {
	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		return err
	}
	line := 0
	for i, l := range lines {
		if l.ProductID == stockErr.ProductID {
			line = i
			break
		}
	}
	reason := err
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = ErrProductNotFound
	case errors.Is(err, store.ErrPriceMismatch):
		reason = ErrPriceMismatch
	case errors.Is(err, store.ErrInsufficientStock):
		reason = ErrInsufficientStock
	}
	return &RejectionError{Line: line, ProductID: stockErr.ProductID, Err: reason}
}

// ValidateAndAccept checks every line against the catalog, then reserves the
// stock for all lines at once and stores the accepted order. Rejected orders
// change nothing.
func (s *Service) ValidateAndAccept(ctx context.Context, in PlaceOrder) (*model.Order, error) {
	if err := checkShape(in); err != nil {
		return nil, err
	}
	if s.users != nil {
		if _, err := s.users.GetUser(ctx, in.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
	}

	if err := s.precheck(ctx, in.Lines); err != nil {
		s.logger.Info("order rejected", zap.String("user_id", in.UserID), zap.Error(err))
		return nil, err
	}

	reqs := make([]store.StockRequest, len(in.Lines))
	for i, l := range in.Lines {
		reqs[i] = store.StockRequest{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	// The catalog may have changed since precheck; Reserve re-checks under lock.
	if err := s.catalog.Reserve(ctx, reqs); err != nil {
		err = rejection(in.Lines, err)
		s.logger.Info("order rejected", zap.String("user_id", in.UserID), zap.Error(err))
		return nil, err
	}

	o := s.build(in)
	if err := s.orders.SaveOrder(ctx, o); err != nil {
		if relErr := s.catalog.Release(context.WithoutCancel(ctx), reqs); relErr != nil {
			s.logger.Error("release reserved stock failed", zap.String("order_id", o.ID), zap.Error(relErr))
		}
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.logger.Info("order accepted",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int("items", o.TotalItems()),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return o, nil
}

func (s *Service) build(in PlaceOrder) *model.Order {
	now := s.now()
	o := &model.Order{
		ID:        ulid.Make().String(),
		UserID:    in.UserID,
		Lines:     make([]model.OrderLine, len(in.Lines)),
		Total:     decimal.Zero,
		Status:    model.OrderAccepted,
		OrderedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, l := range in.Lines {
		subtotal := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		o.Lines[i] = model.OrderLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  subtotal,
		}
		o.Total = o.Total.Add(subtotal)
	}
	return o
}

// Delete removes an order. Stock is not returned.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	s.logger.Info("order deleted", zap.String("order_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// List returns the orders of userID, or every order when userID is empty.
func (s *Service) List(ctx context.Context, userID string, page store.PageRequest) (store.Page[model.Order], error) {
	return s.orders.ListOrders(ctx, userID, page)
}
