package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/domain/category"
	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/model"
)

// CategoryHandlers handles category-related HTTP requests
type CategoryHandlers struct {
	categories *category.Service
	logger     *zap.Logger
}

// NewCategoryHandlers creates a new CategoryHandlers instance
func NewCategoryHandlers(categories *category.Service, logger *zap.Logger) *CategoryHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryHandlers{categories: categories, logger: logger}
}

// CategoryRequest is the body of create and rename
type CategoryRequest struct {
	Name string `json:"name"`
}

// List returns categories, optionally filtered by name substring and deletion flag
func (h *CategoryHandlers) List(w http.ResponseWriter, r *http.Request) {
	deleted, err := optionalBool(r.URL.Query().Get("isDeleted"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	items, err := h.categories.List(r.Context(), store.CategoryFilter{
		Name:      r.URL.Query().Get("name"),
		IsDeleted: deleted,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Category{}
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *CategoryHandlers) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.categories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Create handles category creation
func (h *CategoryHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.categories.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// Rename handles category rename
func (h *CategoryHandlers) Rename(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	c, err := h.categories.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Delete soft-deletes a category. Products referencing it are untouched.
func (h *CategoryHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
