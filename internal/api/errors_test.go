package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/domain/category"
	"github.com/example/ec-store/internal/domain/order"
	"github.com/example/ec-store/internal/domain/product"
	"github.com/example/ec-store/internal/domain/user"
	"github.com/example/ec-store/internal/infrastructure/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"product not found", product.ErrProductNotFound, http.StatusNotFound, CodeNotFound},
		{"wrapped store not found", fmt.Errorf("load: %w", store.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"category conflict", category.ErrNameConflict, http.StatusConflict, CodeConflict},
		{"validation", &product.ValidationError{Field: "brand", Reason: "must not be blank"}, http.StatusBadRequest, CodeValidation},
		{"category missing on product", fmt.Errorf("%w: Toys", product.ErrCategoryNotFound), http.StatusUnprocessableEntity, CodeCategoryNotFound},
		{"storage", fmt.Errorf("%w: disk full", product.ErrStorage), http.StatusBadGateway, CodeStorage},
		{"price mismatch", &order.RejectionError{Line: 2, ProductID: 9, Err: order.ErrPriceMismatch}, http.StatusConflict, CodePriceMismatch},
		{"insufficient stock", &order.RejectionError{Err: order.ErrInsufficientStock}, http.StatusConflict, CodeInsufficientStock},
		{"order line product missing", &order.RejectionError{Err: order.ErrProductNotFound}, http.StatusConflict, CodeProductNotFound},
		{"empty order", order.ErrEmptyOrder, http.StatusBadRequest, CodeValidation},
		{"bad credentials", user.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, CodeUnauthorized},
		{"deactivated", user.ErrUserDeactivated, http.StatusForbidden, CodeForbidden},
		{"too large", errPayloadTooLarge, http.StatusRequestEntityTooLarge, CodePayloadTooLarge},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := classify(tt.err)
			assert.Equal(t, tt.status, he.Status)
			assert.Equal(t, tt.code, he.Code)
		})
	}
}

func TestClassify_Details(t *testing.T) {
	he := classify(&order.RejectionError{Line: 2, ProductID: 9, Err: order.ErrPriceMismatch})
	assert.Equal(t, map[string]any{"line": 2, "product_id": int64(9)}, he.Details)

	he = classify(&product.ValidationError{Field: "price", Reason: "must not be negative"})
	assert.Equal(t, map[string]any{"field": "price"}, he.Details)
	assert.Equal(t, "price: must not be negative", he.Message)
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)

	writeError(rec, req, zap.New(core), errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"INTERNAL_ERROR","message":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "pq")
	assert.Equal(t, 1, logs.FilterMessage("request failed").Len())
}

func TestWriteError_StorageFailureHidesBackendDetail(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/products/1/image", nil)

	writeError(rec, req, zap.New(core), fmt.Errorf("%w: nats: no responders available for request", product.ErrStorage))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"STORAGE_ERROR","message":"image storage failed"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "nats")
	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "no responders")
}

func TestWriteError_ClientErrorsAreNotLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/products/1", nil)

	writeError(rec, req, zap.New(core), product.ErrProductNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"NOT_FOUND","message":"product not found"}`, rec.Body.String())
	assert.Equal(t, 0, logs.Len())
}
