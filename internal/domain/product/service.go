package product

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/infrastructure/blob"
	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
	"github.com/example/ec-store/internal/notification"
)

const (
	maxBrandLength       = 100
	maxModelLength       = 100
	maxDescriptionLength = 2000
	// prices are stored as NUMERIC(12,2)
	maxPriceScale = 2
)

var maxPrice = decimal.New(1, 10) // exclusive

// CreateInput holds the fields of a new product. CategoryName must match an
// active category.
type CreateInput struct {
	Brand        string
	Model        string
	Description  string
	Price        decimal.Decimal
	CategoryName string
	Stock        int
	Image        string
}

// UpdateInput is a partial update: nil fields keep their current value.
type UpdateInput struct {
	Brand        *string
	Model        *string
	Description  *string
	Price        *decimal.Decimal
	CategoryName *string
	Stock        *int
	Image        *string
}

// Service handles product operations
type Service struct {
	catalog   store.Catalog
	blobs     blob.Store
	publisher notification.Publisher
	logger    *zap.Logger
	policy    *bluemonday.Policy
	timeout   time.Duration
}

type Option func(*Service)

// WithCallTimeout bounds image storage and category resolution calls.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService creates a new product service
func NewService(catalog store.Catalog, blobs blob.Store, publisher notification.Publisher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notification.Nop{}
	}
	s := &Service{
		catalog:   catalog,
		blobs:     blobs,
		publisher: publisher,
		logger:    logger.Named("product"),
		policy:    bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// sanitize strips markup and surrounding space from free text.
func (s *Service) sanitize(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func validate(p *model.Product) error {
	switch {
	case p.Brand == "":
		return invalid("brand", "must not be blank")
	case utf8.RuneCountInString(p.Brand) > maxBrandLength:
		return invalid("brand", fmt.Sprintf("must be at most %d characters", maxBrandLength))
	case p.Model == "":
		return invalid("model", "must not be blank")
	case utf8.RuneCountInString(p.Model) > maxModelLength:
		return invalid("model", fmt.Sprintf("must be at most %d characters", maxModelLength))
	case utf8.RuneCountInString(p.Description) > maxDescriptionLength:
		return invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	case p.Price.IsNegative():
		return invalid("price", "must not be negative")
	case !p.Price.Equal(p.Price.Truncate(maxPriceScale)):
		return invalid("price", fmt.Sprintf("must have at most %d decimal places", maxPriceScale))
	case p.Price.GreaterThanOrEqual(maxPrice):
		return invalid("price", "must be less than "+maxPrice.String())
	case p.Stock < 0:
		return invalid("stock", "must not be negative")
	}
	return nil
}

func (s *Service) resolveCategory(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("category", "must not be blank")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := s.catalog.FindCategoryByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, name)
	}
	return c, err
}

// live returns the product unless it is missing or soft-deleted.
func (s *Service) live(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.catalog.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.IsDeleted {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func mapUpdateError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrProductNotFound
	case errors.Is(err, store.ErrUnknownCategory):
		return ErrCategoryNotFound
	}
	return err
}

// save inserts p, translating a vanished category into ErrCategoryNotFound.
func (s *Service) save(ctx context.Context, p *model.Product) (*model.Product, error) {
	saved, err := s.catalog.Upsert(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	return saved, err
}

// Create adds a product with a fresh correlation token
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Product, error) {
	p := &model.Product{
		Brand:       s.sanitize(in.Brand),
		Model:       s.sanitize(in.Model),
		Description: s.sanitize(in.Description),
		Price:       in.Price,
		Stock:       in.Stock,
		Image:       strings.TrimSpace(in.Image),
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	c, err := s.resolveCategory(ctx, in.CategoryName)
	if err != nil {
		return nil, err
	}
	p.Category = *c

	saved, err := s.save(ctx, p)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created",
		zap.Int64("product_id", saved.ID),
		zap.String("correlation_id", saved.CorrelationID),
	)
	notification.Notify(ctx, s.publisher, s.logger, notification.EntityProduct, notification.EventCreate, saved)
	return saved, nil
}

// Update merges the set fields of in into the product. The merge runs against
// the stored row, so stock reserved meanwhile is kept unless in.Stock is set.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*model.Product, error) {
	if _, err := s.live(ctx, id); err != nil {
		return nil, err
	}

	var category *model.Category
	if in.CategoryName != nil {
		c, err := s.resolveCategory(ctx, *in.CategoryName)
		if err != nil {
			return nil, err
		}
		category = c
	}

	saved, err := s.catalog.UpdateProduct(ctx, id, func(p *model.Product) error {
		if in.Brand != nil {
			p.Brand = s.sanitize(*in.Brand)
		}
		if in.Model != nil {
			p.Model = s.sanitize(*in.Model)
		}
		if in.Description != nil {
			p.Description = s.sanitize(*in.Description)
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.Stock != nil {
			p.Stock = *in.Stock
		}
		if in.Image != nil {
			p.Image = strings.TrimSpace(*in.Image)
		}
		if category != nil {
			p.Category = *category
		}
		return validate(p)
	})
	if err != nil {
		return nil, mapUpdateError(err)
	}

	notification.Notify(ctx, s.publisher, s.logger, notification.EntityProduct, notification.EventUpdate, saved)
	return saved, nil
}

// UpdateImage stores data and points the product at it. On any failure the
// previous image reference is left untouched.
func (s *Service) UpdateImage(ctx context.Context, id int64, data []byte, contentType string) (*model.Product, error) {
	if len(data) == 0 {
		return nil, invalid("file", "must not be empty")
	}
	if _, err := s.live(ctx, id); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.withTimeout(ctx)
	ref, err := s.blobs.Store(storeCtx, data, contentType)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var previous string
	saved, err := s.catalog.UpdateProduct(ctx, id, func(p *model.Product) error {
		previous = p.Image
		p.Image = ref
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, ref)
		return nil, mapUpdateError(err)
	}

	if previous != "" && previous != ref {
		s.discardBlob(ctx, previous)
	}

	notification.Notify(ctx, s.publisher, s.logger, notification.EntityProduct, notification.EventUpdate, saved)
	return saved, nil
}

func (s *Service) discardBlob(ctx context.Context, ref string) {
	ctx, cancel := s.withTimeout(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.blobs.Delete(ctx, ref); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.logger.Warn("delete image failed", zap.String("ref", ref), zap.Error(err))
	}
}

// SoftDelete flags the product as deleted. The envelope carries the
// pre-deletion snapshot.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	p, err := s.live(ctx, id)
	if err != nil {
		return err
	}
	if err := s.catalog.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		return err
	}

	s.logger.Info("product deleted", zap.Int64("product_id", id))
	notification.Notify(ctx, s.publisher, s.logger, notification.EntityProduct, notification.EventDelete, p)
	return nil
}

// Get returns the product, including soft-deleted ones
func (s *Service) Get(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.catalog.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (s *Service) GetByCorrelationID(ctx context.Context, token string) (*model.Product, error) {
	p, err := s.catalog.GetByCorrelationID(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// List parses params and returns the matching page
func (s *Service) List(ctx context.Context, params FilterParams) (store.Page[model.Product], error) {
	filter, page, err := params.Build()
	if err != nil {
		return store.Page[model.Product]{}, err
	}
	return s.catalog.List(ctx, filter, page)
}
