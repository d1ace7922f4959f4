package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/domain/category"
	"github.com/example/ec-store/internal/domain/order"
	"github.com/example/ec-store/internal/domain/product"
	"github.com/example/ec-store/internal/domain/user"
	"github.com/example/ec-store/internal/infrastructure/blob"
	"github.com/example/ec-store/internal/infrastructure/store"
)

// Error codes returned in the "error" field of every failed response.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeCategoryNotFound  = "CATEGORY_NOT_FOUND"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodePriceMismatch     = "PRICE_MISMATCH"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeStorage           = "STORAGE_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeInternal          = "INTERNAL_ERROR"
)

var (
	errBadRequest      = errors.New("malformed request")
	errForbidden       = errors.New("not allowed to access this resource")
	errPayloadTooLarge = errors.New("request body too large")
)

// httpError is a decoded failure: what the client sees.
type httpError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

type errorRule struct {
	target error
	status int
	code   string
}

// Order matters: order rejections are matched before the generic not-found
// rules so an unknown product on an order line reads as a rejection.
var errorRules = []errorRule{
	{order.ErrProductNotFound, http.StatusConflict, CodeProductNotFound},
	{order.ErrPriceMismatch, http.StatusConflict, CodePriceMismatch},
	{order.ErrInsufficientStock, http.StatusConflict, CodeInsufficientStock},

	{product.ErrValidation, http.StatusBadRequest, CodeValidation},
	{product.ErrCategoryNotFound, http.StatusUnprocessableEntity, CodeCategoryNotFound},
	{product.ErrStorage, http.StatusBadGateway, CodeStorage},

	{product.ErrProductNotFound, http.StatusNotFound, CodeNotFound},
	{category.ErrCategoryNotFound, http.StatusNotFound, CodeNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound, CodeNotFound},
	{order.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
	{user.ErrUserNotFound, http.StatusNotFound, CodeNotFound},
	{blob.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{blob.ErrInvalidReference, http.StatusNotFound, CodeNotFound},
	{store.ErrNotFound, http.StatusNotFound, CodeNotFound},

	{category.ErrNameConflict, http.StatusConflict, CodeConflict},
	{user.ErrEmailTaken, http.StatusConflict, CodeConflict},
	{store.ErrConflict, http.StatusConflict, CodeConflict},

	{order.ErrEmptyOrder, http.StatusBadRequest, CodeValidation},
	{order.ErrInvalidQuantity, http.StatusBadRequest, CodeValidation},
	{order.ErrInvalidPrice, http.StatusBadRequest, CodeValidation},
	{category.ErrInvalidName, http.StatusBadRequest, CodeValidation},
	{user.ErrInvalidEmail, http.StatusBadRequest, CodeValidation},
	{user.ErrInvalidName, http.StatusBadRequest, CodeValidation},
	{user.ErrInvalidRole, http.StatusBadRequest, CodeValidation},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, CodeValidation},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, CodeValidation},
	{auth.ErrPasswordBlank, http.StatusBadRequest, CodeValidation},
	{auth.ErrPasswordEncoding, http.StatusBadRequest, CodeValidation},
	{blob.ErrEmpty, http.StatusBadRequest, CodeValidation},
	{errBadRequest, http.StatusBadRequest, CodeBadRequest},
	{errPayloadTooLarge, http.StatusRequestEntityTooLarge, CodePayloadTooLarge},

	{user.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
	{user.ErrSessionNotFound, http.StatusUnauthorized, CodeUnauthorized},
	{auth.ErrInvalidToken, http.StatusUnauthorized, CodeUnauthorized},
	{auth.ErrExpiredToken, http.StatusUnauthorized, CodeUnauthorized},
	{user.ErrUserDeactivated, http.StatusForbidden, CodeForbidden},
	{errForbidden, http.StatusForbidden, CodeForbidden},
}

// classify maps err to the response the client gets. Unknown errors become
// an opaque 500.
func classify(err error) httpError {
	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			he := httpError{Status: rule.status, Code: rule.code, Message: err.Error()}
			if rule.status >= http.StatusInternalServerError {
				// backend detail stays in the log
				he.Message = rule.target.Error()
			}
			var rej *order.RejectionError
			if errors.As(err, &rej) {
				he.Details = map[string]any{"line": rej.Line, "product_id": rej.ProductID}
			}
			var verr *product.ValidationError
			if errors.As(err, &verr) {
				he.Details = map[string]any{"field": verr.Field}
			}
			return he
		}
	}
	return httpError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal server error",
	}
}

// writeError writes err with the JSON error envelope. 5xx responses are logged
// with the underlying error, which is never shown to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	he := classify(err)
	if he.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", he.Status),
			zap.Error(err),
		)
	}
	body := map[string]any{
		"error":   he.Code,
		"message": he.Message,
	}
	for k, v := range he.Details {
		body[k] = v
	}
	respondJSON(w, he.Status, body)
}
