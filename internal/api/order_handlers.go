package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/api/middleware"
	"github.com/example/ec-store/internal/domain/order"
	"github.com/example/ec-store/internal/model"
)

// OrderHandlers handles order-related HTTP requests
type OrderHandlers struct {
	orders *order.Service
	logger *zap.Logger
}

// NewOrderHandlers creates a new OrderHandlers instance
func NewOrderHandlers(orders *order.Service, logger *zap.Logger) *OrderHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandlers{orders: orders, logger: logger}
}

// OrderLineRequest is one line of PlaceOrderRequest. Price is the unit price
// the client saw; it must equal the catalog price exactly.
type OrderLineRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// PlaceOrderRequest is the body of POST /orders
type PlaceOrderRequest struct {
	Lines []OrderLineRequest `json:"lines"`
}

// OrderResponse is an order plus its derived line and item counts
type OrderResponse struct {
	*model.Order
	LineCount  int `json:"line_count"`
	TotalItems int `json:"total_items"`
}

func newOrderResponse(o *model.Order) OrderResponse {
	return OrderResponse{Order: o, LineCount: len(o.Lines), TotalItems: o.TotalItems()}
}

// Place validates an order for the caller and stores it if every line passes
func (h *OrderHandlers) Place(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	in := order.PlaceOrder{
		UserID: middleware.GetUserID(r.Context()),
		Lines:  make([]order.LineInput, len(req.Lines)),
	}
	for i, l := range req.Lines {
		in.Lines[i] = order.LineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.Price}
	}

	o, err := h.orders.ValidateAndAccept(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, newOrderResponse(o))
}

// List returns the caller's orders; admins see every order
func (h *OrderHandlers) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageParams(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if middleware.IsAdmin(r.Context()) {
		userID = r.URL.Query().Get("userId")
	}

	result, err := h.orders.List(r.Context(), userID, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newPageResponse(result))
}

// Get returns one order to its owner or an admin. Other callers get 404.
func (h *OrderHandlers) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if o.UserID != middleware.GetUserID(r.Context()) && !middleware.IsAdmin(r.Context()) {
		writeError(w, r, h.logger, order.ErrOrderNotFound)
		return
	}
	respondJSON(w, http.StatusOK, newOrderResponse(o))
}

// Delete removes an order without returning stock
func (h *OrderHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
