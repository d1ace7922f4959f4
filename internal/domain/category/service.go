package category

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
	"github.com/example/ec-store/internal/notification"
)

const MinNameLength = 3

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrNameConflict     = errors.New("category name already in use")
	ErrInvalidName      = errors.New("category name must be at least 3 characters")
)

// Service handles category operations
type Service struct {
	store     store.CategoryStore
	publisher notification.Publisher
	logger    *zap.Logger
}

// NewService creates a new category service
func NewService(s store.CategoryStore, publisher notification.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notification.Nop{}
	}
	return &Service{store: s, publisher: publisher, logger: logger.Named("category")}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrCategoryNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrNameConflict
	}
	return err
}

// Create adds a category. Names are unique among active categories, ignoring case.
func (s *Service) Create(ctx context.Context, name string) (*model.Category, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	c, err := s.store.UpsertCategory(ctx, &model.Category{Name: name})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.logger.Info("category created", zap.String("category_id", c.ID), zap.String("name", c.Name))
	notification.Notify(ctx, s.publisher, s.logger, notification.EntityCategory, notification.EventCreate, c)
	return c, nil
}

// Rename changes the name of an active category
func (s *Service) Rename(ctx context.Context, id, name string) (*model.Category, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	c, err := s.store.RenameCategory(ctx, id, name)
	if err != nil {
		return nil, mapStoreError(err)
	}

	notification.Notify(ctx, s.publisher, s.logger, notification.EntityCategory, notification.EventUpdate, c)
	return c, nil
}

// SoftDelete flags the category as deleted. Products keep referencing it.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	existing, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return mapStoreError(err)
	}
	if err := s.store.SoftDeleteCategory(ctx, id); err != nil {
		return mapStoreError(err)
	}

	s.logger.Info("category deleted", zap.String("category_id", id))
	notification.Notify(ctx, s.publisher, s.logger, notification.EntityCategory, notification.EventDelete, existing)
	return nil
}

// FindByName returns the active category with name, ignoring case
func (s *Service) FindByName(ctx context.Context, name string) (*model.Category, error) {
	c, err := s.store.FindCategoryByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, filter store.CategoryFilter) ([]model.Category, error) {
	return s.store.ListCategories(ctx, filter)
}
