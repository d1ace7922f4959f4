package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/domain/product"
)

const imageFormField = "file"

// ProductHandlers handles product-related HTTP requests
type ProductHandlers struct {
	products       *product.Service
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewProductHandlers creates a new ProductHandlers instance
func NewProductHandlers(products *product.Service, maxUploadBytes int64, logger *zap.Logger) *ProductHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandlers{products: products, maxUploadBytes: maxUploadBytes, logger: logger}
}

// CreateProductRequest is the body of POST /products
type CreateProductRequest struct {
	Brand       string          `json:"brand"`
	Model       string          `json:"model"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
}

// UpdateProductRequest is the body of PATCH /products/{id}. Omitted fields keep their value.
type UpdateProductRequest struct {
	Brand       *string          `json:"brand"`
	Model       *string          `json:"model"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
	Image       *string          `json:"image"`
}

// List handles GET /products with filters, pagination and sorting
func (h *ProductHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.products.List(r.Context(), product.FilterParams{
		Brand:     q.Get("brand"),
		Category:  q.Get("category"),
		Model:     q.Get("model"),
		IsDeleted: q.Get("isDeleted"),
		MaxPrice:  q.Get("maxPrice"),
		MinStock:  q.Get("minStock"),
		Page:      q.Get("page"),
		Size:      q.Get("size"),
		Sort:      q.Get("sort"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newPageResponse(page))
}

func (h *ProductHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GetByToken looks a product up by its correlation token
func (h *ProductHandlers) GetByToken(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByCorrelationID(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProductHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.products.Create(r.Context(), product.CreateInput{
		Brand:        req.Brand,
		Model:        req.Model,
		Description:  req.Description,
		Price:        req.Price,
		CategoryName: req.Category,
		Stock:        req.Stock,
		Image:        req.Image,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// Update merges the request into the product. Serves both PATCH and PUT.
func (h *ProductHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req UpdateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.products.Update(r.Context(), id, product.UpdateInput{
		Brand:        req.Brand,
		Model:        req.Model,
		Description:  req.Description,
		Price:        req.Price,
		CategoryName: req.Category,
		Stock:        req.Stock,
		Image:        req.Image,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UpdateImage accepts a multipart upload in the "file" field
func (h *ProductHandlers) UpdateImage(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	data, contentType, err := h.readImage(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.products.UpdateImage(r.Context(), id, data, contentType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *ProductHandlers) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(64<<10))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", errPayloadTooLarge
		}
		return nil, "", errBadRequest
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		return nil, "", &product.ValidationError{Field: imageFormField, Reason: "is required"}
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		return nil, "", errPayloadTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, "", errBadRequest
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, "", errPayloadTooLarge
	}

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	} else {
		contentType = ""
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", &product.ValidationError{Field: imageFormField, Reason: "must be an image"}
	}
	return data, contentType, nil
}

// Delete soft-deletes a product
func (h *ProductHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.products.SoftDelete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
